package utils

import (
	"context"
	"fmt"

	"factmap/internal/config"
	"factmap/internal/logger"
	"factmap/internal/visited"

	"github.com/redis/go-redis/v9"
)

// 文档注释：按 SAMPLE_STORE 选择样本存储
// 背景：memory 为默认；redis 复用已打开的客户端；postgres 打开独立连接池并确保表结构。
// 返回：关闭函数总是非空；redis 模式下客户端缺失或未知取值返回错误。
func OpenSampleStore(ctx context.Context, c config.Config, rc *redis.Client) (visited.Store, func(), error) {
	noop := func() {}
	switch c.SampleStore {
	case "", "memory":
		logger.L().Info("sample_store", "kind", "memory")
		return visited.NewMemoryStore(), noop, nil
	case "redis":
		if rc == nil {
			return nil, noop, fmt.Errorf("sample store redis: REDIS_ADDR or REDIS_HOST not set")
		}
		logger.L().Info("sample_store", "kind", "redis")
		return visited.NewRedisStore(rc, ""), noop, nil
	case "postgres":
		db, err := OpenSampleDB(ctx, BuildPostgresDSN(c.PostgresDSN))
		if err != nil {
			return nil, noop, fmt.Errorf("sample store postgres: %w", err)
		}
		logger.L().Info("sample_store", "kind", "postgres")
		return visited.AttachDB(db), func() { _ = db.Close() }, nil
	}
	return nil, noop, fmt.Errorf("unknown SAMPLE_STORE %q", c.SampleStore)
}
