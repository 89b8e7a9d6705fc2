package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

const (
	HeaderIdempotencyKey = "X-Idempotency-Key"
	HeaderReplay         = "X-Idempotent-Replay"
)

// IdempotencyRecord is the stored outcome of one keyed request. Fingerprint
// binds the key to the request that first used it.
type IdempotencyRecord struct {
	Fingerprint string
	Status      int
	Body        []byte
	CreatedAt   time.Time
	Processing  bool // 正在处理中
}

type IdempotencyStore interface {
	// GetOrLock returns the existing record for key, or locks key for the
	// caller and returns (nil, false, nil).
	GetOrLock(ctx context.Context, key, fingerprint string) (*IdempotencyRecord, bool, error)
	Save(ctx context.Context, key string, rec IdempotencyRecord) error
	Unlock(ctx context.Context, key string) error
}

// InMemIdempotencyStore 用于单实例部署，多实例请用 Redis 或 Postgres
type InMemIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]IdempotencyRecord
}

func NewInMemIdempotencyStore(ttl time.Duration) *InMemIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &InMemIdempotencyStore{
		ttl:     ttl,
		now:     time.Now,
		records: make(map[string]IdempotencyRecord),
	}
}

func (s *InMemIdempotencyStore) GetOrLock(_ context.Context, key, fingerprint string) (*IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if rec, ok := s.records[key]; ok && now.Sub(rec.CreatedAt) < s.ttl {
		return &rec, true, nil
	}
	s.records[key] = IdempotencyRecord{Fingerprint: fingerprint, Processing: true, CreatedAt: now}
	return nil, false, nil
}

func (s *InMemIdempotencyStore) Save(_ context.Context, key string, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.CreatedAt = s.now()
	s.records[key] = rec
	return nil
}

func (s *InMemIdempotencyStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// Cleanup drops records older than olderThan.
func (s *InMemIdempotencyStore) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	var n int64
	for k, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.records, k)
			n++
		}
	}
	return n, nil
}

// RequestFingerprint is keccak256 over method, path and body.
func RequestFingerprint(method, path string, body []byte) string {
	return crypto.Keccak256Hash([]byte(method), []byte{0}, []byte(path), []byte{0}, body).Hex()
}

// IdempotencyMiddleware replays the first completed response for a key. Keys
// are scoped by caller and path, so it must run after CallerAuthMiddleware.
func IdempotencyMiddleware(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		idemKey := c.GetHeader(HeaderIdempotencyKey)
		if idemKey == "" || store == nil {
			c.Next()
			return
		}

		scope := "anonymous"
		if caller, ok := CallerFromContext(c); ok {
			scope = caller.Hex()
		}
		key := scope + ":" + c.Request.URL.Path + ":" + idemKey

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}
		fingerprint := RequestFingerprint(c.Request.Method, c.Request.URL.Path, body)
		ctx := c.Request.Context()

		record, hit, err := store.GetOrLock(ctx, key, fingerprint)
		if err != nil {
			// without the store the request is not deduplicated; refuse rather than risk a double settle
			abort(c, apperrors.New(apperrors.ErrUpstream, "idempotency store unavailable", err))
			return
		}
		if hit {
			switch {
			case record.Fingerprint != "" && record.Fingerprint != fingerprint:
				abort(c, apperrors.New(apperrors.ErrConflict, "idempotency key was used for a different request", nil))
			case record.Processing:
				abort(c, apperrors.New(apperrors.ErrConflict, "request with this idempotency key is in progress", nil))
			default:
				c.Header(HeaderReplay, "true")
				c.Data(record.Status, "application/json; charset=utf-8", record.Body)
				c.Abort()
			}
			return
		}

		w := &responseBodyWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		sctx := context.WithoutCancel(ctx)
		status := c.Writer.Status()
		// 5xx may be retried with the same key
		if status >= http.StatusInternalServerError {
			err = store.Unlock(sctx, key)
		} else {
			err = store.Save(sctx, key, IdempotencyRecord{Fingerprint: fingerprint, Status: status, Body: w.body})
		}
		if err != nil {
			logger.LogError(sctx, err, "idempotency store update failed", "key", idemKey, "status", status)
		}
	}
}

type responseBodyWriter struct {
	gin.ResponseWriter
	body []byte
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return w.ResponseWriter.Write(b)
}
