package repository

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	solverA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	solverB  = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	treasury = common.HexToAddress("0x0000000000000000000000000000000000007ea5")
)

func openPebble(t *testing.T, dir string) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(filepath.Join(dir, "state"))
	require.NoError(t, err)
	return s
}

func TestPebbleStore_EmptyLoad(t *testing.T) {
	s := openPebble(t, t.TempDir())
	defer s.Close()

	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Sequences)
	assert.Empty(t, snap.Settled)
	assert.Empty(t, snap.Balances)
	assert.Equal(t, 0, snap.Reserve.Sign())
}

func TestPebbleStore_ApplySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	digest := common.HexToHash("0xabc1")
	at := time.Unix(1_700_000_000, 0).UTC()

	s := openPebble(t, dir)
	require.NoError(t, s.Apply(ctx, &settlement.Batch{
		Sequences: map[common.Address]uint64{solverA: 1},
		Settled: []settlement.SettledRecord{
			{Digest: digest, Signer: solverA, Sequence: 0, Amount: big.NewInt(1000), SettledAt: at},
		},
		Balances: map[common.Address]*big.Int{solverA: big.NewInt(900), treasury: big.NewInt(100)},
		Reserve:  big.NewInt(1000),
	}))
	// withdrawal of the treasury share
	require.NoError(t, s.Apply(ctx, &settlement.Batch{
		Balances: map[common.Address]*big.Int{treasury: new(big.Int)},
		Reserve:  big.NewInt(900),
	}))
	require.NoError(t, s.Close())

	s = openPebble(t, dir)
	defer s.Close()
	snap, err := s.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), snap.Sequences[solverA])
	assert.Contains(t, snap.Settled, digest)
	assert.Equal(t, "900", snap.Balances[solverA].String())
	assert.NotContains(t, snap.Balances, treasury)
	assert.Equal(t, "900", snap.Reserve.String())

	recs, err := s.Settlements(solverA)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, digest, recs[0].Digest)
	assert.Equal(t, "1000", recs[0].Amount.String())
	assert.True(t, at.Equal(recs[0].SettledAt))

	recs, err = s.Settlements(solverB)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestPebbleStore_LargeAmounts(t *testing.T) {
	s := openPebble(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	require.NoError(t, s.Apply(ctx, &settlement.Batch{
		Balances: map[common.Address]*big.Int{solverB: max},
		Reserve:  max,
	}))
	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Balances[solverB].Cmp(max))
	assert.Equal(t, 0, snap.Reserve.Cmp(max))
}

func TestPebbleStore_BacksEngine(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := settlement.Config{
		Owner:    common.HexToAddress("0x000000000000000000000000000000000000a11c"),
		Treasury: treasury,
		Split:    settlement.Split{Numerator: 9, Denominator: 10},
	}
	s := openPebble(t, dir)
	require.NoError(t, s.Apply(ctx, &settlement.Batch{
		Sequences: map[common.Address]uint64{solverA: 4},
		Balances:  map[common.Address]*big.Int{solverA: big.NewInt(50)},
		Reserve:   big.NewInt(80),
	}))

	eng, err := settlement.New(ctx, cfg, nopVerifier{}, s, settlement.NewJournal())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), eng.Sequence(solverA))
	assert.Equal(t, "50", eng.Withdrawable(solverA).String())
	assert.Equal(t, "30", eng.GeneralFunds().String())
	require.NoError(t, s.Close())
}

func TestKeyUpperBound(t *testing.T) {
	assert.Equal(t, []byte("s;"), keyUpperBound([]byte("s:")))
	assert.Equal(t, []byte{0x02}, keyUpperBound([]byte{0x01, 0xff}))
	assert.Nil(t, keyUpperBound([]byte{0xff, 0xff}))
}

type nopVerifier struct{}

func (nopVerifier) Digest(*settlement.Order) common.Hash { return common.Hash{} }
func (nopVerifier) Verify(*settlement.Order, []byte) (common.Address, error) {
	return common.Address{}, settlement.ErrInvalidSignature
}
