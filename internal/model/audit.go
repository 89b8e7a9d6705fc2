package model

import (
	"time"
)

// AuditLog 代表一次完整的操作审计记录
type AuditLog struct {
	ID        string `json:"id"`               // request id (UUID)
	Caller    string `json:"caller,omitempty"` // 已认证的调用方地址 (checksummed)
	Digest    string `json:"digest,omitempty"` // settled order digest, when the request produced one
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	RequestBody   string `json:"request_body"`   // 脱敏后
	RequestHeader string `json:"request_header"` // auth headers, signatures masked

	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// 业务上下文: signer, sequence, receipt id, payout reference 等
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// AuditQuery selects audit entries, newest first. Empty fields match everything.
type AuditQuery struct {
	Caller string
	Digest string
	Limit  int
	From   *time.Time
	To     *time.Time
}

// PageSize is Limit clamped to (0, MaxAuditLimit].
func (q AuditQuery) PageSize() int {
	if q.Limit <= 0 || q.Limit > MaxAuditLimit {
		return DefaultAuditLimit
	}
	return q.Limit
}

func (q AuditQuery) Matches(e *AuditLog) bool {
	if e == nil {
		return false
	}
	if q.Caller != "" && e.Caller != q.Caller {
		return false
	}
	if q.Digest != "" && e.Digest != q.Digest {
		return false
	}
	if q.From != nil && e.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && e.CreatedAt.After(*q.To) {
		return false
	}
	return true
}
