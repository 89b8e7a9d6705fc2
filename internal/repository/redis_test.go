package repository

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/GoPolymarket/solvergate/internal/middleware"
	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUsage(t *testing.T) {
	orders, vol, err := parseUsage([]interface{}{nil, nil})
	require.NoError(t, err)
	assert.Equal(t, 0, orders)
	assert.Equal(t, "0", vol.String())

	huge := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
	orders, vol, err = parseUsage([]interface{}{"3", huge})
	require.NoError(t, err)
	assert.Equal(t, 3, orders)
	assert.Equal(t, huge, vol.String())

	_, _, err = parseUsage([]interface{}{"x", "1"})
	assert.Error(t, err)
	_, _, err = parseUsage([]interface{}{"1", "1.5"})
	assert.Error(t, err)
}

func TestRedisUsageRepo_KeyIsPerSignerAndDay(t *testing.T) {
	r := NewRedisUsageRepo(nil)
	r.now = func() time.Time { return time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC) }
	key := r.makeKey(solverA)
	assert.Equal(t, "usage:"+solverA.Hex()+":2026-03-01", key)
}

func TestIdemRecordEncoding(t *testing.T) {
	rec := middleware.IdempotencyRecord{
		Fingerprint: middleware.RequestFingerprint("POST", "/v1/orders", []byte("{}")),
		Status:      201,
		Body:        []byte(`{"id":"r1"}`),
		CreatedAt:   time.Unix(1_700_000_000, 0).UTC(),
	}
	raw, err := encodeIdemRecord(rec)
	require.NoError(t, err)
	got, err := decodeIdemRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	_, err = decodeIdemRecord("not json")
	assert.Error(t, err)
}

func TestFilterAudit(t *testing.T) {
	base := time.Unix(1_700_000_000, 0).UTC()
	var items []string
	for i, caller := range []string{"0xa", "0xb", "0xa", "0xa"} {
		data, _ := json.Marshal(model.AuditLog{ID: strings.Repeat("x", i+1), Caller: caller, CreatedAt: base.Add(-time.Duration(i) * time.Minute)})
		items = append(items, string(data))
	}
	items = append(items, "garbage")

	got := filterAudit(items, model.AuditQuery{Caller: "0xa", Limit: 10})
	assert.Len(t, got, 3)

	got = filterAudit(items, model.AuditQuery{Caller: "0xa", Limit: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].ID)

	from := base.Add(-90 * time.Second)
	got = filterAudit(items, model.AuditQuery{From: &from})
	assert.Len(t, got, 2)
}

func TestAuditSelect(t *testing.T) {
	query, args := auditSelect(model.AuditQuery{})
	assert.NotContains(t, query, "WHERE")
	assert.Equal(t, []interface{}{model.DefaultAuditLimit}, args)

	from := time.Unix(1_700_000_000, 0)
	query, args = auditSelect(model.AuditQuery{Caller: "0xa", Digest: "0xd", From: &from, Limit: 5000})
	assert.Contains(t, query, "caller = $1 AND digest = $2 AND created_at >= $3")
	assert.Contains(t, query, "LIMIT $4")
	require.Len(t, args, 4)
	assert.Equal(t, model.DefaultAuditLimit, args[3], "oversized limit falls back to the default")
}

func TestStreamValues(t *testing.T) {
	ev := settlement.Event{
		Kind:     settlement.EventWithdrawn,
		Identity: common.HexToAddress("0x00000000000000000000000000000000000000a1"),
		Amount:   big.NewInt(42),
		At:       time.Unix(1_700_000_000, 0).UTC(),
	}
	values, err := streamValues(ev)
	require.NoError(t, err)
	assert.Equal(t, "withdrawal", values["kind"])
	assert.Equal(t, ev.Identity.Hex(), values["identity"])
	assert.Contains(t, values["payload"], `"amount":"42"`)
}

func TestDecodeAmount(t *testing.T) {
	v, err := decodeAmount("")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Sign())
	_, err = decodeAmount("-")
	assert.Error(t, err)
	assert.Equal(t, "0", encodeAmount(nil))
}
