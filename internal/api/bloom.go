package api

import (
	"context"
	"hash/fnv"
	"strconv"
	"time"

	"factmap/internal/geo"

	"github.com/redis/go-redis/v9"
)

const (
	bloomKey  = "factmap:samples:bloom"
	bloomBits = 1 << 20
	bloomK    = 4
	bloomTTL  = 24 * time.Hour
)

// 文档注释：计算布隆过滤器位置
// 背景：FNV64a 加索引扰动生成 k 个位置，用于 GetBit/SetBit。
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// 文档注释：检查并写入布隆过滤器位图
// 返回：true 表示首次见到（已写入位图）；false 表示已存在。
// 异常：Redis 交互错误时返回 error 与 true；rc 为 nil 时视为首次见到，不阻断主流程。
func bloomCheckAndSet(ctx context.Context, rc *redis.Client, key string, positions []int64, ttl time.Duration) (bool, error) {
	if rc == nil {
		return true, nil
	}
	seen := true
	for _, p := range positions {
		b, err := rc.GetBit(ctx, key, p).Result()
		if err != nil {
			return true, err
		}
		if b == 0 {
			seen = false
		}
	}
	if seen {
		return false, nil
	}
	for _, p := range positions {
		_, _ = rc.SetBit(ctx, key, p, 1).Result()
	}
	_ = rc.Expire(ctx, key, ttl).Err()
	return true, nil
}

func sampleFingerprint(s geo.VisitedSample) []byte {
	b := strconv.AppendFloat(nil, s.Lat, 'f', 6, 64)
	b = append(b, ':')
	b = strconv.AppendFloat(b, s.Lng, 'f', 6, 64)
	b = append(b, ':')
	return strconv.AppendInt(b, s.Timestamp.UnixMilli(), 10)
}

// 文档注释：过滤短期内重复上传的样本
// 背景：客户端重试或多端同步会重复提交同一批样本；以坐标加时间戳作为指纹在 24 小时窗口内去重。
// 约束：可能误判为重复（布隆特性），误判的样本会被丢弃；Redis 不可用时原样返回。
func dropRecentlySeen(ctx context.Context, rc *redis.Client, samples []geo.VisitedSample) []geo.VisitedSample {
	if rc == nil {
		return samples
	}
	out := samples[:0:0]
	for _, s := range samples {
		first, err := bloomCheckAndSet(ctx, rc, bloomKey, bloomPositions(sampleFingerprint(s), bloomBits, bloomK), bloomTTL)
		if err != nil || first {
			out = append(out, s)
		}
	}
	return out
}
