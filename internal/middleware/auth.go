package middleware

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
)

const (
	HeaderCallerAddress   = "X-Caller-Address"
	HeaderCallerTimestamp = "X-Caller-Timestamp"
	HeaderCallerSignature = "X-Caller-Signature"
	ContextCallerKey      = "caller"
)

// CallerMessage is the text a caller personal_signs to authenticate one request.
// The keccak256 of the body is part of it, so signed headers cannot carry a
// different payload.
func CallerMessage(method, path string, timestamp int64, body []byte) string {
	return fmt.Sprintf("solvergate:%s:%s:%d:%s", method, path, timestamp, crypto.Keccak256Hash(body).Hex())
}

// CallerAuthMiddleware authenticates the caller identity from signed headers.
// The recovered address is stored under ContextCallerKey.
func CallerAuthMiddleware(maxSkew time.Duration, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		addrHex := c.GetHeader(HeaderCallerAddress)
		tsRaw := c.GetHeader(HeaderCallerTimestamp)
		sigHex := c.GetHeader(HeaderCallerSignature)
		if addrHex == "" || tsRaw == "" || sigHex == "" {
			abortAuth(c, "missing caller headers")
			return
		}
		if !common.IsHexAddress(addrHex) {
			abortAuth(c, "invalid caller address")
			return
		}
		ts, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil {
			abortAuth(c, "invalid caller timestamp")
			return
		}
		skew := now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if maxSkew > 0 && skew > maxSkew {
			abortAuth(c, "caller timestamp outside allowed skew")
			return
		}
		sig, err := hexutil.Decode(sigHex)
		if err != nil {
			abortAuth(c, "invalid caller signature encoding")
			return
		}

		var body []byte
		if c.Request.Body != nil {
			if body, err = io.ReadAll(c.Request.Body); err != nil {
				abortAuth(c, "unreadable request body")
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		msg := CallerMessage(c.Request.Method, c.Request.URL.Path, ts, body)
		recovered, err := signer.RecoverPersonal([]byte(msg), sig)
		if err != nil || recovered != common.HexToAddress(addrHex) {
			abortAuth(c, "caller signature mismatch")
			return
		}

		c.Set(ContextCallerKey, recovered)
		c.Next()
	}
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(c *gin.Context) (common.Address, bool) {
	val, ok := c.Get(ContextCallerKey)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := val.(common.Address)
	return addr, ok
}

func abortAuth(c *gin.Context, msg string) {
	abort(c, apperrors.NewAuthFailed(msg))
}
