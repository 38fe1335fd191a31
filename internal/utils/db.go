// 包 utils：外部存储连接与证书等启动期工具
package utils

import (
	"context"
	"database/sql"
	"os"
	"strconv"

	"factmap/internal/logger"
	"factmap/internal/migrate"

	_ "github.com/lib/pq"
)

// 文档注释：由环境变量拼接 Postgres DSN
// 背景：PG_DSN 存在时直接使用；否则按 PG_HOST/PG_PORT/PG_USER/PG_PASSWORD/PG_DB/PG_SSLMODE 拼接。
func BuildPostgresDSN(explicit string) string {
	if explicit != "" {
		return explicit
	}
	host := envOr("PG_HOST", "localhost")
	port := envOr("PG_PORT", "5432")
	user := envOr("PG_USER", "postgres")
	pass := os.Getenv("PG_PASSWORD")
	dsn := "postgres://" + user
	if pass != "" {
		dsn += ":" + pass
	}
	dsn += "@" + host + ":" + port + "/" + envOr("PG_DB", "factmap") + "?sslmode=" + envOr("PG_SSLMODE", "disable")
	return dsn
}

// 文档注释：打开样本库并确保表结构
// 约束：连接池上限来自 PG_MAX_OPEN_CONNS/PG_MAX_IDLE_CONNS，解析失败时回退 10/5；Ping 失败直接返回错误。
func OpenSampleDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(envInt("PG_MAX_OPEN_CONNS", 10))
	db.SetMaxIdleConns(envInt("PG_MAX_IDLE_CONNS", 5))
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.L().Info("db_ping_ok")
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
