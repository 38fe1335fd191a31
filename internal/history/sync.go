package history

import (
	"context"
	"sort"
	"time"

	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/metrics"
)

// Appender：样本写入目标
type Appender interface {
	Append(ctx context.Context, samples []geo.VisitedSample) error
}

func sortByTime(s []geo.VisitedSample) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp.Before(s[j].Timestamp) })
}

// SyncOnce：拉取一次并写入存储
func (s *Source) SyncOnce(ctx context.Context, accessToken string, dst Appender) error {
	samples, err := s.Fetch(ctx, accessToken)
	if err != nil {
		metrics.HistorySyncTotal.WithLabelValues("fetch_error").Inc()
		return err
	}
	if err := dst.Append(ctx, samples); err != nil {
		metrics.HistorySyncTotal.WithLabelValues("store_error").Inc()
		logger.L().Error("history_store_error", "err", err)
		return err
	}
	metrics.HistorySyncTotal.WithLabelValues("ok").Inc()
	return nil
}

// 文档注释：后台周期同步
// 背景：启动后立即执行一次，之后按固定间隔重复；错误只记录日志，任务继续调度。
// 约束：ctx 取消时退出；返回的通道在协程退出后关闭。
func (s *Source) Start(ctx context.Context, accessToken string, dst Appender, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l := logger.L()
		for {
			l.Info("history_sync_start")
			if err := s.SyncOnce(ctx, accessToken, dst); err == nil {
				l.Info("history_sync_done")
			}
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}
	}()
	return done
}
