package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu           sync.Mutex
	pendingNonce uint64
	nonceCalls   int
	sendErr      error
	status       uint64
	noReceipt    bool
	sent         []*types.Transaction
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonceCalls++
	return f.pendingNonce, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(10)}, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noReceipt {
		return nil, ethereum.NotFound
	}
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return &types.Receipt{Status: f.status, TxHash: hash, BlockNumber: big.NewInt(101)}, nil
		}
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, nil
}

func newTestPayout(t *testing.T, backend *fakeBackend) (*Payout, common.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p, err := NewPayout(backend, hexutil.Encode(crypto.FromECDSA(key)), 31337, 5*time.Second)
	require.NoError(t, err)
	return p, crypto.PubkeyToAddress(key.PublicKey)
}

func TestPayout_TransferSignsAndWaits(t *testing.T) {
	backend := &fakeBackend{pendingNonce: 7, status: types.ReceiptStatusSuccessful}
	p, from := newTestPayout(t, backend)
	to := common.HexToAddress("0x0000000000000000000000000000000000001234")

	ref, err := p.Transfer(context.Background(), to, big.NewInt(900))
	require.NoError(t, err)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	assert.Equal(t, tx.Hash().Hex(), ref)
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, int64(900), tx.Value().Int64())
	assert.Equal(t, to, *tx.To())
	assert.Equal(t, int64(22), tx.GasFeeCap().Int64())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, from, sender)
	assert.Equal(t, from, p.From())

	_, err = p.Transfer(context.Background(), to, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), backend.sent[1].Nonce())
	assert.Equal(t, 1, backend.nonceCalls)
}

func TestPayout_RevertedTransfer(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusFailed}
	p, _ := newTestPayout(t, backend)

	ref, err := p.Transfer(context.Background(), common.HexToAddress("0x01"), big.NewInt(1))
	assert.ErrorContains(t, err, "reverted")
	assert.NotErrorIs(t, err, settlement.ErrPayoutPending)
	assert.Empty(t, ref)
}

func TestPayout_MissingReceiptIsPending(t *testing.T) {
	backend := &fakeBackend{noReceipt: true}
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p, err := NewPayout(backend, hexutil.Encode(crypto.FromECDSA(key)), 31337, 50*time.Millisecond)
	require.NoError(t, err)

	ref, err := p.Transfer(context.Background(), common.HexToAddress("0x01"), big.NewInt(900))
	assert.ErrorIs(t, err, settlement.ErrPayoutPending)
	require.Len(t, backend.sent, 1)
	assert.Equal(t, backend.sent[0].Hash().Hex(), ref)
}

func TestPayout_WaitOutlivesCallerCancel(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	p, _ := newTestPayout(t, backend)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ref, err := p.Transfer(ctx, common.HexToAddress("0x01"), big.NewInt(1))
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
}

func TestPayout_SendFailureResyncsNonce(t *testing.T) {
	backend := &fakeBackend{pendingNonce: 3, sendErr: errors.New("nonce too low")}
	p, _ := newTestPayout(t, backend)

	_, err := p.Transfer(context.Background(), common.HexToAddress("0x01"), big.NewInt(1))
	assert.ErrorContains(t, err, "nonce too low")
	assert.Equal(t, 2, backend.nonceCalls)
}

func TestNewPayout_Validation(t *testing.T) {
	_, err := NewPayout(nil, "aa", 1, 0)
	assert.Error(t, err)
	_, err = NewPayout(&fakeBackend{}, "", 1, 0)
	assert.Error(t, err)
	_, err = NewPayout(&fakeBackend{}, "zz", 1, 0)
	assert.Error(t, err)
}

func TestNonceManager(t *testing.T) {
	backend := &fakeBackend{pendingNonce: 4}
	m := NewNonceManager(backend)
	addr := common.HexToAddress("0x01")

	n, err := m.Next(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)

	m.Increment(addr)
	n, _ = m.Next(context.Background(), addr)
	assert.Equal(t, uint64(5), n)

	backend.pendingNonce = 9
	require.NoError(t, m.Reset(context.Background(), addr))
	n, _ = m.Next(context.Background(), addr)
	assert.Equal(t, uint64(9), n)
}
