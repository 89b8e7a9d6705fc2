package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactAuditBodyOrders(t *testing.T) {
	body := []byte(`{"order":{"signer":"0xbeef","amount":"1000"},"signature":"0xdead","value":"1000"}`)
	out := redactAuditBody(body)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, "***", data["signature"])
	assert.Equal(t, "1000", data["value"])
	order := data["order"].(map[string]interface{})
	// The signer is public and stays readable.
	assert.Equal(t, "0xbeef", order["signer"])
}

func TestRedactAuditBodyNested(t *testing.T) {
	body := []byte(`{"items":[{"sig":"0x1","amount":"5"}],"ok":true}`)
	assert.JSONEq(t, `{"items":[{"sig":"***","amount":"5"}],"ok":true}`, redactAuditBody(body))
	assert.Equal(t, "", redactAuditBody([]byte("  ")))
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	assert.Equal(t, "[redacted]", redactAuditBody([]byte("not-json")))
}

type captureSink struct {
	mu      sync.Mutex
	entries []*model.AuditLog
}

func (s *captureSink) Log(entry *model.AuditLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

func TestAuditMiddleware_RecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &captureSink{}
	r := gin.New()
	r.Use(AuditMiddleware(sink))
	r.POST("/v1/orders", func(c *gin.Context) {
		AddAuditContext(c, "digest", "0xabc")
		c.JSON(http.StatusCreated, gin.H{"id": "r1"})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", strings.NewReader(`{"signature":"0xdead"}`))
	req.Header.Set(HeaderCallerSignature, "0xsig")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, w.Header().Get("X-Request-ID"), entry.ID)
	assert.Equal(t, http.StatusCreated, entry.StatusCode)
	assert.Equal(t, "0xabc", entry.Context["digest"])
	assert.Equal(t, "0xabc", entry.Digest)
	assert.NotContains(t, entry.RequestBody, "0xdead")
	assert.NotContains(t, entry.RequestHeader, "0xsig")
}

func TestAuditMiddleware_SkipsPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sink := &captureSink{}
	r := gin.New()
	r.Use(AuditMiddleware(sink, "/health"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/state", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/state", nil))
	require.Len(t, sink.entries, 1)
	assert.Equal(t, "/v1/state", sink.entries[0].Path)
}
