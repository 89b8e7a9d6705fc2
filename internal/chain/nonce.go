package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
)

// NonceSource reports the pending transaction count of an account.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out transaction nonces optimistically per sending address.
type NonceManager struct {
	source NonceSource

	mu     sync.Mutex
	nonces map[common.Address]uint64
}

func NewNonceManager(source NonceSource) *NonceManager {
	return &NonceManager{
		source: source,
		nonces: make(map[common.Address]uint64),
	}
}

// Next returns the nonce for the next transaction from addr.
// If it's the first time, it fetches from chain.
func (m *NonceManager) Next(ctx context.Context, addr common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if nonce, ok := m.nonces[addr]; ok {
		return nonce, nil
	}
	// PendingNonceAt accounts for the mempool
	fetched, err := m.source.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}
	m.nonces[addr] = fetched
	return fetched, nil
}

// Increment advances the local nonce. Call this AFTER a transaction was broadcast.
func (m *NonceManager) Increment(addr common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nonces[addr]; ok {
		m.nonces[addr]++
	}
}

// Reset forces a re-sync from the chain.
// Call this if you get "nonce too low" or "replacement transaction underpriced".
func (m *NonceManager) Reset(ctx context.Context, addr common.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fetched, err := m.source.PendingNonceAt(ctx, addr)
	if err != nil {
		delete(m.nonces, addr)
		return err
	}
	m.nonces[addr] = fetched
	logger.Info("Reset TX nonce", "address", addr.Hex(), "nonce", fetched)
	return nil
}
