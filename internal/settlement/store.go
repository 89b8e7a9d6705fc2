package settlement

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Store persists engine state. Apply must be all-or-nothing.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Apply(ctx context.Context, b *Batch) error
	Close() error
}

// MemoryStore keeps state in process. It is the default for tests and single-run tools.
type MemoryStore struct {
	mu  sync.Mutex
	st  *state
	log []SettledRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newState()}
}

func (m *MemoryStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := &Snapshot{
		Sequences: make(map[common.Address]uint64, len(m.st.sequences)),
		Settled:   make(map[common.Hash]struct{}, len(m.st.settled)),
		Balances:  make(map[common.Address]*big.Int, len(m.st.balances)),
		Reserve:   new(big.Int).Set(m.st.reserve),
	}
	for k, v := range m.st.sequences {
		snap.Sequences[k] = v
	}
	for k := range m.st.settled {
		snap.Settled[k] = struct{}{}
	}
	for k, v := range m.st.balances {
		snap.Balances[k] = new(big.Int).Set(v)
	}
	return snap, nil
}

func (m *MemoryStore) Apply(_ context.Context, b *Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.apply(b)
	m.log = append(m.log, b.Settled...)
	return nil
}

// Settlements returns the settled records in commit order.
func (m *MemoryStore) Settlements() []SettledRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SettledRecord, len(m.log))
	copy(out, m.log)
	return out
}

func (m *MemoryStore) Close() error { return nil }
