package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/jmoiron/sqlx"
)

// PostgresAuditRepo stores request audit entries in settlement_audit.
type PostgresAuditRepo struct {
	db *sqlx.DB
}

func NewPostgresAuditRepo(ctx context.Context, db *sqlx.DB) (*PostgresAuditRepo, error) {
	repo := &PostgresAuditRepo{db: db}
	if err := repo.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("audit schema: %w", err)
	}
	return repo, nil
}

type auditRow struct {
	ID            string         `db:"id"`
	Caller        sql.NullString `db:"caller"`
	Digest        sql.NullString `db:"digest"`
	Method        string         `db:"method"`
	Path          string         `db:"path"`
	IP            string         `db:"ip"`
	UserAgent     string         `db:"user_agent"`
	RequestBody   string         `db:"request_body"`
	RequestHeader string         `db:"request_header"`
	StatusCode    int            `db:"status_code"`
	ResponseBody  string         `db:"response_body"`
	LatencyMs     int64          `db:"latency_ms"`
	Context       []byte         `db:"context"`
	CreatedAt     time.Time      `db:"created_at"`
}

func toAuditRow(e *model.AuditLog) (auditRow, error) {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return auditRow{}, fmt.Errorf("marshal audit context: %w", err)
	}
	return auditRow{
		ID:            e.ID,
		Caller:        sql.NullString{String: e.Caller, Valid: e.Caller != ""},
		Digest:        sql.NullString{String: e.Digest, Valid: e.Digest != ""},
		Method:        e.Method,
		Path:          e.Path,
		IP:            e.IP,
		UserAgent:     e.UserAgent,
		RequestBody:   e.RequestBody,
		RequestHeader: e.RequestHeader,
		StatusCode:    e.StatusCode,
		ResponseBody:  e.ResponseBody,
		LatencyMs:     e.LatencyMs,
		Context:       ctxJSON,
		CreatedAt:     e.CreatedAt.UTC(),
	}, nil
}

func (r auditRow) entry() *model.AuditLog {
	e := &model.AuditLog{
		ID:            r.ID,
		Caller:        r.Caller.String,
		Digest:        r.Digest.String,
		Method:        r.Method,
		Path:          r.Path,
		IP:            r.IP,
		UserAgent:     r.UserAgent,
		RequestBody:   r.RequestBody,
		RequestHeader: r.RequestHeader,
		StatusCode:    r.StatusCode,
		ResponseBody:  r.ResponseBody,
		LatencyMs:     r.LatencyMs,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.Context) == 0 || json.Unmarshal(r.Context, &e.Context) != nil {
		e.Context = map[string]interface{}{}
	}
	return e
}

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry *model.AuditLog) error {
	if entry == nil {
		return nil
	}
	row, err := toAuditRow(entry)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO settlement_audit (
			id, caller, digest, method, path, ip, user_agent,
			request_body, request_header, status_code, response_body,
			latency_ms, context, created_at
		) VALUES (
			:id, :caller, :digest, :method, :path, :ip, :user_agent,
			:request_body, :request_header, :status_code, :response_body,
			:latency_ms, :context, :created_at
		)
		ON CONFLICT (id) DO NOTHING`, row)
	return err
}

func (r *PostgresAuditRepo) List(ctx context.Context, q model.AuditQuery) ([]*model.AuditLog, error) {
	query, args := auditSelect(q)
	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*model.AuditLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.entry())
	}
	return out, nil
}

// auditSelect renders q as a positional-parameter SELECT.
func auditSelect(q model.AuditQuery) (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(cond string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(cond, len(args)))
	}
	if q.Caller != "" {
		add("caller = $%d", q.Caller)
	}
	if q.Digest != "" {
		add("digest = $%d", q.Digest)
	}
	if q.From != nil {
		add("created_at >= $%d", q.From.UTC())
	}
	if q.To != nil {
		add("created_at <= $%d", q.To.UTC())
	}

	var b strings.Builder
	b.WriteString(`SELECT id, caller, digest, method, path, ip, user_agent, request_body, request_header,
		status_code, response_body, latency_ms, context, created_at FROM settlement_audit`)
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	args = append(args, q.PageSize())
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d", len(args))
	return b.String(), args
}

func (r *PostgresAuditRepo) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settlement_audit (
			id TEXT PRIMARY KEY,
			caller TEXT,
			digest TEXT,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			request_body TEXT NOT NULL DEFAULT '',
			request_header TEXT NOT NULL DEFAULT '',
			status_code INTEGER NOT NULL,
			response_body TEXT NOT NULL DEFAULT '',
			latency_ms BIGINT NOT NULL DEFAULT 0,
			context JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_audit_caller ON settlement_audit (caller, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_settlement_audit_digest ON settlement_audit (digest) WHERE digest IS NOT NULL`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresAuditRepo) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM settlement_audit WHERE created_at < $1`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
