package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/solvergate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var authNow = time.Unix(1_700_000_000, 0)

func newCaller(t *testing.T) *signer.Signer {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := signer.NewSigner(hexutil.Encode(crypto.FromECDSA(key)), signer.NewDomain("", "", 1, common.Address{}))
	require.NoError(t, err)
	return s
}

func signedRequest(t *testing.T, s *signer.Signer, method, path string, ts int64) *http.Request {
	return signedRequestWithBody(t, s, method, path, ts, "")
}

func signedRequestWithBody(t *testing.T, s *signer.Signer, method, path string, ts int64, body string) *http.Request {
	sig, err := s.SignPersonal([]byte(CallerMessage(method, path, ts, []byte(body))))
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(HeaderCallerAddress, s.Address().Hex())
	req.Header.Set(HeaderCallerTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderCallerSignature, hexutil.Encode(sig))
	return req
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(CallerAuthMiddleware(time.Minute, func() time.Time { return authNow }))
	r.POST("/v1/withdrawals", func(c *gin.Context) {
		caller, _ := CallerFromContext(c)
		c.String(http.StatusOK, caller.Hex())
	})
	r.PUT("/v1/admin/hook", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		c.String(http.StatusOK, string(body))
	})
	return r
}

func TestCallerAuth_Accepts(t *testing.T) {
	s := newCaller(t)
	w := httptest.NewRecorder()
	authRouter().ServeHTTP(w, signedRequest(t, s, http.MethodPost, "/v1/withdrawals", authNow.Unix()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, s.Address().Hex(), w.Body.String())
}

func TestCallerAuth_Rejects(t *testing.T) {
	s := newCaller(t)
	other := newCaller(t)

	cases := map[string]*http.Request{
		"missing headers": httptest.NewRequest(http.MethodPost, "/v1/withdrawals", nil),
		"stale timestamp": signedRequest(t, s, http.MethodPost, "/v1/withdrawals", authNow.Unix()-120),
		"other path":      signedRequest(t, s, http.MethodPost, "/v1/admin/rescue", authNow.Unix()),
	}
	spoofed := signedRequest(t, s, http.MethodPost, "/v1/withdrawals", authNow.Unix())
	spoofed.Header.Set(HeaderCallerAddress, other.Address().Hex())
	cases["spoofed address"] = spoofed

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			req.URL.Path = "/v1/withdrawals"
			w := httptest.NewRecorder()
			authRouter().ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "AUTH_FAILED")
		})
	}
}

func TestCallerAuth_BindsBody(t *testing.T) {
	s := newCaller(t)
	signed := `{"kind":"allowlist"}`

	w := httptest.NewRecorder()
	authRouter().ServeHTTP(w, signedRequestWithBody(t, s, http.MethodPut, "/v1/admin/hook", authNow.Unix(), signed))
	require.Equal(t, http.StatusOK, w.Code)
	// downstream handlers still see the body
	assert.Equal(t, signed, w.Body.String())

	// same headers, different payload
	swapped := signedRequestWithBody(t, s, http.MethodPut, "/v1/admin/hook", authNow.Unix(), signed)
	swapped.Body = io.NopCloser(strings.NewReader(`{"kind":"none"}`))
	w = httptest.NewRecorder()
	authRouter().ServeHTTP(w, swapped)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "caller signature mismatch")
}
