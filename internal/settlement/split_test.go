package settlement

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_ExactSumLaw(t *testing.T) {
	max256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	amounts := []*big.Int{
		big.NewInt(0), big.NewInt(1), big.NewInt(9), big.NewInt(10), big.NewInt(11),
		big.NewInt(999), big.NewInt(1000), big.NewInt(1_000_000_007), max256,
	}
	splits := []Split{DefaultSplit, {Numerator: 1, Denominator: 3}, {Numerator: 0, Denominator: 1}, {Numerator: 7, Denominator: 7}}

	for _, sp := range splits {
		for _, amount := range amounts {
			solver, treasury := sp.Apply(amount)
			sum := new(big.Int).Add(solver, treasury)
			assert.Equal(t, 0, sum.Cmp(amount), "split %d/%d amount %s", sp.Numerator, sp.Denominator, amount)

			floor := new(big.Int).Mul(amount, big.NewInt(sp.Numerator))
			floor.Div(floor, big.NewInt(sp.Denominator))
			assert.Equal(t, 0, solver.Cmp(floor))
			assert.True(t, treasury.Sign() >= 0)
		}
	}

	solver, treasury := DefaultSplit.Apply(big.NewInt(1000))
	assert.Equal(t, int64(900), solver.Int64())
	assert.Equal(t, int64(100), treasury.Int64())
}

func TestSplit_Validate(t *testing.T) {
	assert.NoError(t, DefaultSplit.Validate())
	assert.Error(t, Split{Numerator: 1, Denominator: 0}.Validate())
	assert.Error(t, Split{Numerator: -1, Denominator: 10}.Validate())
	assert.Error(t, Split{Numerator: 11, Denominator: 10}.Validate())
}

func TestReplayGuard_CheckOrder(t *testing.T) {
	st := newState()
	signer := common.HexToAddress("0x0000000000000000000000000000000000000001")
	now := time.Unix(1000, 0)
	o := &Order{Signer: signer, Sequence: 0, Expiry: 2000, Amount: big.NewInt(1)}
	digest := common.HexToHash("0x01")
	g := replayGuard{st: st}

	require.NoError(t, g.admit(o, digest, now))

	// admit does not mutate
	assert.Equal(t, uint64(0), st.sequences[signer])
	assert.Empty(t, st.settled)

	b := newBatch()
	g.stage(b, o, digest, now)
	st.apply(b)
	assert.Equal(t, uint64(1), st.sequences[signer])

	assert.ErrorIs(t, g.admit(o, digest, now), ErrSequenceMismatch)

	o2 := &Order{Signer: signer, Sequence: 1, Expiry: 2000, Amount: big.NewInt(1)}
	assert.ErrorIs(t, g.admit(o2, digest, now), ErrAlreadySettled)

	// expiry is checked first
	assert.ErrorIs(t, g.admit(o, digest, time.Unix(2000, 0)), ErrExpired)
}

func TestConsult_ReturnsHookVerdict(t *testing.T) {
	o := &Order{Signer: common.HexToAddress("0x01"), Amount: big.NewInt(5)}

	ok, err := consult(context.Background(), NoopHook{}, o)
	assert.True(t, ok)
	assert.NoError(t, err)

	// the hook cannot mutate the order's amount
	mutating := HookFunc(func(_ context.Context, _ common.Address, amount *big.Int, _ common.Hash) (bool, error) {
		amount.SetInt64(0)
		return true, nil
	})
	_, err = consult(context.Background(), mutating, o)
	require.NoError(t, err)
	assert.Equal(t, int64(5), o.Amount.Int64())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	blocking := HookFunc(func(ctx context.Context, _ common.Address, _ *big.Int, _ common.Hash) (bool, error) {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return true, nil
	})
	ok, err = consult(ctx, blocking, o)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEvent_MarshalJSON(t *testing.T) {
	ev := Event{
		Kind:          EventSettled,
		Identity:      common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		Digest:        common.HexToHash("0xff"),
		Sequence:      0,
		Amount:        big.NewInt(1000),
		SolverShare:   big.NewInt(900),
		TreasuryShare: big.NewInt(100),
		At:            time.Unix(0, 0).UTC(),
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "settlement", out["kind"])
	assert.Equal(t, "1000", out["amount"])
	assert.Equal(t, float64(0), out["sequence"])
	assert.Equal(t, ev.Digest.Hex(), out["digest"])

	raw, err = json.Marshal(Event{Kind: EventWithdrawn, Identity: ev.Identity, Amount: big.NewInt(5)})
	require.NoError(t, err)
	out = nil
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotContains(t, out, "digest")
	assert.NotContains(t, out, "sequence")
}
