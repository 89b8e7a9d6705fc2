package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/jmoiron/sqlx"
)

// PostgresIdempotencyStore locks keys with INSERT .. ON CONFLICT DO NOTHING.
type PostgresIdempotencyStore struct {
	db  *sqlx.DB
	ttl time.Duration
}

func NewPostgresIdempotencyStore(ctx context.Context, db *sqlx.DB, ttl time.Duration) (*PostgresIdempotencyStore, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	store := &PostgresIdempotencyStore{db: db, ttl: ttl}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settlement_idempotency (
			key TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			response_body BYTEA,
			processing BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, fmt.Errorf("idempotency schema: %w", err)
	}
	return store, nil
}

type idemRow struct {
	Fingerprint string    `db:"fingerprint"`
	Status      int       `db:"status_code"`
	Body        []byte    `db:"response_body"`
	Processing  bool      `db:"processing"`
	CreatedAt   time.Time `db:"created_at"`
}

func (s *PostgresIdempotencyStore) GetOrLock(ctx context.Context, key, fingerprint string) (*middleware.IdempotencyRecord, bool, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	// 过期记录视为不存在
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM settlement_idempotency WHERE key = $1 AND created_at < $2`, key, now.Add(-s.ttl)); err != nil {
		return nil, false, err
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO settlement_idempotency (key, fingerprint, processing, created_at)
		VALUES ($1, $2, true, $3)
		ON CONFLICT (key) DO NOTHING`, key, fingerprint, now)
	if err != nil {
		return nil, false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil, false, tx.Commit()
	}

	var row idemRow
	if err := tx.GetContext(ctx, &row, `
		SELECT fingerprint, status_code, COALESCE(response_body, ''::bytea) AS response_body, processing, created_at
		FROM settlement_idempotency WHERE key = $1`, key); err != nil {
		return nil, false, err
	}
	return &middleware.IdempotencyRecord{
		Fingerprint: row.Fingerprint,
		Status:      row.Status,
		Body:        row.Body,
		Processing:  row.Processing,
		CreatedAt:   row.CreatedAt,
	}, true, tx.Commit()
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, key string, rec middleware.IdempotencyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE settlement_idempotency
		SET status_code = $2, response_body = $3, processing = false, created_at = now()
		WHERE key = $1 AND fingerprint = $4`, key, rec.Status, rec.Body, rec.Fingerprint)
	return err
}

func (s *PostgresIdempotencyStore) Unlock(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settlement_idempotency WHERE key = $1`, key)
	return err
}

func (s *PostgresIdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM settlement_idempotency WHERE created_at < $1`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ middleware.IdempotencyStore = (*PostgresIdempotencyStore)(nil)
