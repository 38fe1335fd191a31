package utils

import (
	"context"

	"factmap/internal/config"
	"factmap/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：按配置打开 Redis 客户端；未配置地址时返回 nil
// 约束：Ping 失败只记录日志，客户端仍返回，命令级错误由调用方降级处理
func OpenRedis(ctx context.Context, c config.Config) *redis.Client {
	if c.RedisAddr == "" {
		logger.L().Info("redis_disabled")
		return nil
	}
	logger.L().Debug("redis_env", "addr", c.RedisAddr, "db", c.RedisDB)
	rc := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPass, DB: c.RedisDB})
	if err := rc.Ping(ctx).Err(); err != nil {
		logger.L().Error("redis_ping_error", "err", err)
	} else {
		logger.L().Info("redis_ping_ok")
	}
	return rc
}
