// 包 history：从日历事件的地点字段派生到访样本（外部位置历史来源）
package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"factmap/internal/geo"
	"factmap/internal/geocode"
	"factmap/internal/logger"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// 查询参数：与日历接口的分页上限与起始时间对齐
const (
	maxEvents    = 2500
	timeMin      = "2000-01-01T00:00:00Z"
	geocodeLimit = 8
)

// Event：带地点的日历事件
type Event struct {
	Location string
	Start    time.Time
}

// EventLister：按访问令牌列出事件
type EventLister interface {
	ListEvents(ctx context.Context, accessToken string) ([]Event, error)
}

// Geocoder：地点文本到坐标
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocode.Lookup, error)
}

// 文档注释：Google 日历事件列表
// 背景：访问令牌由外部授权流程提供，这里只做静态令牌调用；Endpoint 为空时使用官方地址。
type CalendarLister struct {
	Endpoint string
}

func (c CalendarLister) ListEvents(ctx context.Context, accessToken string) ([]Event, error) {
	opts := []option.ClientOption{
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})),
	}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Events.List("primary").
		MaxResults(maxEvents).
		OrderBy("startTime").
		SingleEvents(true).
		TimeMin(timeMin).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(resp.Items))
	for _, it := range resp.Items {
		if strings.TrimSpace(it.Location) == "" {
			continue
		}
		out = append(out, Event{Location: it.Location, Start: eventStart(it.Start)})
	}
	return out, nil
}

func eventStart(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
		return t
	}
	return time.Time{}
}

// Source：日历位置历史
type Source struct {
	Lister   EventLister
	Geocoder Geocoder
}

// 文档注释：拉取并地理编码事件地点
// 背景：所有事件地点并发编码，单个失败只丢弃该事件。
// 返回：列表拉取失败时返回空切片与 *geo.NetworkError，调用方按全迷雾继续。
func (s *Source) Fetch(ctx context.Context, accessToken string) ([]geo.VisitedSample, error) {
	events, err := s.Lister.ListEvents(ctx, accessToken)
	if err != nil {
		nerr := &geo.NetworkError{Op: "calendar_list", Err: err}
		logger.L().Error("history_fetch_error", "err", nerr)
		return []geo.VisitedSample{}, nerr
	}
	out := make([]geo.VisitedSample, 0, len(events))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(geocodeLimit)
	for _, ev := range events {
		ev := ev
		g.Go(func() error {
			lk, err := s.Geocoder.Geocode(gctx, ev.Location)
			if err != nil || lk.Status != geocode.StatusOK {
				logger.L().Debug("history_geocode_skip", "location", ev.Location, "status", lk.Status, "err", err)
				return nil
			}
			mu.Lock()
			out = append(out, geo.VisitedSample{Lat: lk.Location.Lat, Lng: lk.Location.Lng, Timestamp: ev.Start})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	sortByTime(out)
	logger.L().Info("history_fetch_done", "events", len(events), "samples", len(out))
	return out, nil
}
