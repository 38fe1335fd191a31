package visited

import (
	"context"
	"encoding/json"
	"fmt"

	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/metrics"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "factmap:visited"

// 文档注释：Redis 列表存储
// 背景：每条样本为一个 JSON 元素，RPUSH 追加，LRANGE 全量读取。
// 约束：同一键只应有一个写入方，末条样本去重依赖读取到的列表尾。
type RedisStore struct {
	rc  *redis.Client
	key string
}

func NewRedisStore(rc *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rc: rc, key: key}
}

func (s *RedisStore) Load(ctx context.Context) ([]geo.VisitedSample, error) {
	vals, err := s.rc.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load samples: %w", err)
	}
	out := make([]geo.VisitedSample, 0, len(vals))
	for _, v := range vals {
		var smp geo.VisitedSample
		if err := json.Unmarshal([]byte(v), &smp); err != nil {
			logger.L().Warn("sample_decode_error", "store", "redis", "err", err)
			continue
		}
		out = append(out, smp)
	}
	return out, nil
}

func (s *RedisStore) last(ctx context.Context) (*geo.VisitedSample, error) {
	v, err := s.rc.LIndex(ctx, s.key, -1).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var smp geo.VisitedSample
	if err := json.Unmarshal([]byte(v), &smp); err != nil {
		return nil, nil
	}
	return &smp, nil
}

func (s *RedisStore) Append(ctx context.Context, samples []geo.VisitedSample) error {
	last, err := s.last(ctx)
	if err != nil {
		return fmt.Errorf("redis read tail: %w", err)
	}
	added := filterNew(last, samples)
	if len(added) == 0 {
		return nil
	}
	vals := make([]any, 0, len(added))
	for _, smp := range added {
		b, err := json.Marshal(smp)
		if err != nil {
			return err
		}
		vals = append(vals, string(b))
	}
	if err := s.rc.RPush(ctx, s.key, vals...).Err(); err != nil {
		return fmt.Errorf("redis append samples: %w", err)
	}
	metrics.SampleAppendsTotal.WithLabelValues("redis").Add(float64(len(added)))
	logger.L().Debug("sample_append", "store", "redis", "count", len(added))
	return nil
}
