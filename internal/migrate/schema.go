package migrate

import (
	"context"
	"database/sql"

	"factmap/internal/logger"
)

// 背景：首次运行自动创建到访样本表与索引
// 约束：使用 IF NOT EXISTS，可重复执行
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _visited_samples (
            id BIGSERIAL PRIMARY KEY,
            lat DOUBLE PRECISION NOT NULL,
            lng DOUBLE PRECISION NOT NULL,
            ts TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_visited_samples_ts ON _visited_samples(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_visited_samples_latlng ON _visited_samples(lat, lng)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
