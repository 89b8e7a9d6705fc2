package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextAuditLog = "audit_log"

	// bodies are truncated to this many bytes in the audit trail
	maxAuditBody = 8 << 10
	masked       = "***"
)

// AuditSink receives finished audit entries. It must not block.
type AuditSink interface {
	Log(entry *model.AuditLog)
}

// JSON keys whose values never reach the audit trail.
var secretKeys = map[string]bool{
	"signature":          true,
	"sig":                true,
	"private_key":        true,
	"payout_private_key": true,
	"admin_key":          true,
}

// captureWriter tees the response body into buf.
type captureWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w captureWriter) Write(b []byte) (int, error) {
	if room := maxAuditBody - w.buf.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.buf.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

// AuditMiddleware records one entry per request, tags the request context with
// its id, and lets handlers attach settlement context via AddAuditContext.
// Requests whose path is in skip are served without an entry.
func AuditMiddleware(sink AuditSink, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}
	return func(c *gin.Context) {
		if skipped[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		reqID := uuid.NewString()
		c.Header("X-Request-ID", reqID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.RequestIDKey{}, reqID))

		var reqBody []byte
		if c.Request.Body != nil {
			reqBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(reqBody))
		}

		entry := &model.AuditLog{
			ID:        reqID,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			CreatedAt: start.UTC(),
			Context:   make(map[string]interface{}),
		}
		c.Set(ContextAuditLog, entry)

		cw := captureWriter{ResponseWriter: c.Writer, buf: new(bytes.Buffer)}
		c.Writer = cw

		c.Next()

		if caller, ok := CallerFromContext(c); ok {
			entry.Caller = caller.Hex()
		}
		// the digest gets its own column so settlements can be traced by it
		if digest, ok := entry.Context["digest"].(string); ok {
			entry.Digest = digest
		}
		entry.RequestHeader = auditHeaders(c)
		entry.RequestBody = redactAuditBody(reqBody)
		entry.StatusCode = c.Writer.Status()
		entry.ResponseBody = redactAuditBody(cw.buf.Bytes())
		entry.LatencyMs = time.Since(start).Milliseconds()

		if sink != nil {
			sink.Log(entry)
		}
	}
}

// AddAuditContext attaches a key/value to the current request's audit entry.
func AddAuditContext(c *gin.Context, key string, value interface{}) {
	if v, ok := c.Get(ContextAuditLog); ok {
		if entry, ok := v.(*model.AuditLog); ok {
			entry.Context[key] = value
		}
	}
}

// auditHeaders keeps the auth headers that identify a request; secrets are masked.
func auditHeaders(c *gin.Context) string {
	headers := map[string]string{}
	for _, name := range []string{HeaderCallerAddress, HeaderCallerTimestamp, HeaderIdempotencyKey} {
		if v := c.GetHeader(name); v != "" {
			headers[name] = v
		}
	}
	for _, name := range []string{HeaderCallerSignature, HeaderAdminKey} {
		if c.GetHeader(name) != "" {
			headers[name] = masked
		}
	}
	if len(headers) == 0 {
		return ""
	}
	out, _ := json.Marshal(headers)
	return string(out)
}

// redactAuditBody masks secret keys in JSON bodies. Anything that is not JSON
// is dropped, since it cannot be checked for secrets.
func redactAuditBody(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return "[redacted]"
	}
	out, err := json.Marshal(redact(data))
	if err != nil {
		return "[redacted]"
	}
	return string(out)
}

func redact(v interface{}) interface{} {
	switch raw := v.(type) {
	case map[string]interface{}:
		for k, val := range raw {
			if secretKeys[strings.ToLower(strings.TrimSpace(k))] {
				raw[k] = masked
				continue
			}
			raw[k] = redact(val)
		}
	case []interface{}:
		for i, val := range raw {
			raw[i] = redact(val)
		}
	}
	return v
}
