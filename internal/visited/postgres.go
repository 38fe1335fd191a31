package visited

import (
	"context"
	"database/sql"
	"fmt"

	"factmap/internal/geo"
	"factmap/internal/logger"
	"factmap/internal/metrics"
)

// 文档注释：PostgreSQL 存储
// 背景：表结构由 migrate.EnsureSchema 创建；按自增 id 保持追加顺序。
type PostgresStore struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Load(ctx context.Context) ([]geo.VisitedSample, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT lat, lng, ts FROM _visited_samples ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("pg load samples: %w", err)
	}
	defer rows.Close()
	var out []geo.VisitedSample
	for rows.Next() {
		var smp geo.VisitedSample
		if err := rows.Scan(&smp.Lat, &smp.Lng, &smp.Timestamp); err != nil {
			return nil, fmt.Errorf("pg scan sample: %w", err)
		}
		out = append(out, smp)
	}
	return out, rows.Err()
}

func (s *PostgresStore) last(ctx context.Context) (*geo.VisitedSample, error) {
	var smp geo.VisitedSample
	err := s.db.QueryRowContext(ctx, "SELECT lat, lng, ts FROM _visited_samples ORDER BY id DESC LIMIT 1").
		Scan(&smp.Lat, &smp.Lng, &smp.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &smp, nil
}

// 文档注释：事务内批量追加
// 约束：先读末条样本做去重基准，再逐条插入；任一失败整体回滚。
func (s *PostgresStore) Append(ctx context.Context, samples []geo.VisitedSample) error {
	last, err := s.last(ctx)
	if err != nil {
		return fmt.Errorf("pg read tail: %w", err)
	}
	added := filterNew(last, samples)
	if len(added) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO _visited_samples(lat, lng, ts) VALUES($1, $2, $3)")
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, smp := range added {
		if _, err := stmt.ExecContext(ctx, smp.Lat, smp.Lng, smp.Timestamp); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("pg insert sample: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	metrics.SampleAppendsTotal.WithLabelValues("postgres").Add(float64(len(added)))
	logger.L().Debug("sample_append", "store", "postgres", "count", len(added))
	return nil
}
