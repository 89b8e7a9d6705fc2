package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/GoPolymarket/solvergate/internal/policy"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
)

type PostgresUsageRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewPostgresUsageRepo(ctx context.Context, db *sqlx.DB) (*PostgresUsageRepo, error) {
	repo := &PostgresUsageRepo{db: db, now: time.Now}
	if err := repo.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("usage schema: %w", err)
	}
	return repo, nil
}

// GetDailyUsage 获取签名者当日已结算额度与订单数
func (r *PostgresUsageRepo) GetDailyUsage(ctx context.Context, signer common.Address) (int, *big.Int, error) {
	var row struct {
		Orders int    `db:"orders"`
		Volume string `db:"volume"`
	}
	err := r.db.GetContext(ctx, &row,
		`SELECT orders, volume::text AS volume FROM signer_daily_usage WHERE signer = $1 AND date = $2`,
		signer.Hex(), policy.DayKey(r.now()))
	if errors.Is(err, sql.ErrNoRows) {
		// 如果没找到，就是 0
		return 0, new(big.Int), nil
	}
	if err != nil {
		return 0, nil, err
	}
	vol, err := decodeAmount(row.Volume)
	if err != nil {
		return 0, nil, err
	}
	return row.Orders, vol, nil
}

// AddDailyUsage 原子增加额度与订单数
func (r *PostgresUsageRepo) AddDailyUsage(ctx context.Context, signer common.Address, orders int, amount *big.Int) error {
	// Upsert (Insert or Update)
	query := `
		INSERT INTO signer_daily_usage (signer, date, orders, volume)
		VALUES ($1, $2, $3, $4::numeric)
		ON CONFLICT (signer, date)
		DO UPDATE SET orders = signer_daily_usage.orders + EXCLUDED.orders,
		              volume = signer_daily_usage.volume + EXCLUDED.volume
	`
	_, err := r.db.ExecContext(ctx, query, signer.Hex(), policy.DayKey(r.now()), orders, encodeAmount(amount))
	return err
}

func (r *PostgresUsageRepo) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS signer_daily_usage (
			signer TEXT NOT NULL,
			date DATE NOT NULL,
			orders INTEGER NOT NULL DEFAULT 0,
			volume NUMERIC(78,0) NOT NULL DEFAULT 0,
			PRIMARY KEY (signer, date)
		)
	`)
	return err
}

func (r *PostgresUsageRepo) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := r.now().UTC().Add(-olderThan)
	res, err := r.db.ExecContext(ctx, `DELETE FROM signer_daily_usage WHERE date < $1`, policy.DayKey(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ policy.UsageRepo = (*PostgresUsageRepo)(nil)
