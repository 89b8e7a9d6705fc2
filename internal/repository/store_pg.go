package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
)

// PostgresStore persists engine state in four tables. Apply runs in one transaction.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(ctx context.Context, db *sqlx.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("settlement schema: %w", err)
	}
	return s, nil
}

type balanceRow struct {
	Identity string `db:"identity"`
	Amount   string `db:"amount"`
}

type sequenceRow struct {
	Identity string `db:"identity"`
	Next     int64  `db:"next_sequence"`
}

func (s *PostgresStore) Load(ctx context.Context) (*settlement.Snapshot, error) {
	snap := &settlement.Snapshot{
		Sequences: make(map[common.Address]uint64),
		Settled:   make(map[common.Hash]struct{}),
		Balances:  make(map[common.Address]*big.Int),
	}

	var seqs []sequenceRow
	if err := s.db.SelectContext(ctx, &seqs, `SELECT identity, next_sequence FROM settlement_sequences`); err != nil {
		return nil, err
	}
	for _, row := range seqs {
		snap.Sequences[common.HexToAddress(row.Identity)] = uint64(row.Next)
	}

	var digests []string
	if err := s.db.SelectContext(ctx, &digests, `SELECT digest FROM settlement_settled`); err != nil {
		return nil, err
	}
	for _, d := range digests {
		snap.Settled[common.HexToHash(d)] = struct{}{}
	}

	var bals []balanceRow
	if err := s.db.SelectContext(ctx, &bals, `SELECT identity, amount::text AS amount FROM settlement_balances`); err != nil {
		return nil, err
	}
	for _, row := range bals {
		v, err := decodeAmount(row.Amount)
		if err != nil {
			return nil, err
		}
		snap.Balances[common.HexToAddress(row.Identity)] = v
	}

	var reserve string
	err := s.db.GetContext(ctx, &reserve, `SELECT amount::text FROM settlement_reserve WHERE id = 1`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if snap.Reserve, err = decodeAmount(reserve); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PostgresStore) Apply(ctx context.Context, b *settlement.Batch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for id, next := range b.Sequences {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement_sequences (identity, next_sequence) VALUES ($1, $2)
			ON CONFLICT (identity) DO UPDATE SET next_sequence = EXCLUDED.next_sequence
		`, id.Hex(), int64(next)); err != nil {
			return fmt.Errorf("sequence %s: %w", id.Hex(), err)
		}
	}
	for _, rec := range b.Settled {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement_settled (digest, signer, sequence, amount, settled_at)
			VALUES ($1, $2, $3, $4::numeric, $5)
		`, rec.Digest.Hex(), rec.Signer.Hex(), int64(rec.Sequence), encodeAmount(rec.Amount), rec.SettledAt.UTC()); err != nil {
			return fmt.Errorf("settled %s: %w", rec.Digest.Hex(), err)
		}
	}
	for id, amount := range b.Balances {
		if amount.Sign() == 0 {
			if _, err := tx.ExecContext(ctx, `DELETE FROM settlement_balances WHERE identity = $1`, id.Hex()); err != nil {
				return fmt.Errorf("balance %s: %w", id.Hex(), err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement_balances (identity, amount) VALUES ($1, $2::numeric)
			ON CONFLICT (identity) DO UPDATE SET amount = EXCLUDED.amount
		`, id.Hex(), encodeAmount(amount)); err != nil {
			return fmt.Errorf("balance %s: %w", id.Hex(), err)
		}
	}
	if b.Reserve != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlement_reserve (id, amount) VALUES (1, $1::numeric)
			ON CONFLICT (id) DO UPDATE SET amount = EXCLUDED.amount
		`, encodeAmount(b.Reserve)); err != nil {
			return fmt.Errorf("reserve: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Close() error { return nil }

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settlement_sequences (
			identity TEXT PRIMARY KEY,
			next_sequence BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_settled (
			digest TEXT PRIMARY KEY,
			signer TEXT NOT NULL,
			sequence BIGINT NOT NULL,
			amount NUMERIC(78,0) NOT NULL,
			settled_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_balances (
			identity TEXT PRIMARY KEY,
			amount NUMERIC(78,0) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settlement_reserve (
			id SMALLINT PRIMARY KEY,
			amount NUMERIC(78,0) NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_settlement_settled_signer ON settlement_settled(signer, sequence)`)
	return nil
}

var _ settlement.Store = (*PostgresStore)(nil)
