package settlement

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the complete persisted state of an engine.
type Snapshot struct {
	Sequences map[common.Address]uint64
	Settled   map[common.Hash]struct{}
	Balances  map[common.Address]*big.Int
	Reserve   *big.Int
}

// SettledRecord is appended to the settled-digest set by a settlement.
type SettledRecord struct {
	Digest    common.Hash
	Signer    common.Address
	Sequence  uint64
	Amount    *big.Int
	SettledAt time.Time
}

// Batch is one atomic state transition. Sequences, Balances and Reserve carry
// absolute post-values; Settled is append-only.
type Batch struct {
	Sequences map[common.Address]uint64
	Settled   []SettledRecord
	Balances  map[common.Address]*big.Int
	Reserve   *big.Int
}

func newBatch() *Batch {
	return &Batch{
		Sequences: make(map[common.Address]uint64),
		Balances:  make(map[common.Address]*big.Int),
	}
}

type state struct {
	sequences map[common.Address]uint64
	settled   map[common.Hash]struct{}
	balances  map[common.Address]*big.Int
	reserve   *big.Int
}

func newState() *state {
	return &state{
		sequences: make(map[common.Address]uint64),
		settled:   make(map[common.Hash]struct{}),
		balances:  make(map[common.Address]*big.Int),
		reserve:   new(big.Int),
	}
}

func stateFromSnapshot(snap *Snapshot) *state {
	st := newState()
	if snap == nil {
		return st
	}
	for k, v := range snap.Sequences {
		st.sequences[k] = v
	}
	for k := range snap.Settled {
		st.settled[k] = struct{}{}
	}
	for k, v := range snap.Balances {
		if v != nil && v.Sign() > 0 {
			st.balances[k] = new(big.Int).Set(v)
		}
	}
	if snap.Reserve != nil {
		st.reserve.Set(snap.Reserve)
	}
	return st
}

func (s *state) apply(b *Batch) {
	for k, v := range b.Sequences {
		s.sequences[k] = v
	}
	for _, rec := range b.Settled {
		s.settled[rec.Digest] = struct{}{}
	}
	for k, v := range b.Balances {
		if v.Sign() == 0 {
			delete(s.balances, k)
			continue
		}
		s.balances[k] = new(big.Int).Set(v)
	}
	if b.Reserve != nil {
		s.reserve = new(big.Int).Set(b.Reserve)
	}
}

// balance returns a copy so callers can never alias ledger entries.
func (s *state) balance(id common.Address) *big.Int {
	if v, ok := s.balances[id]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (s *state) earmarked() *big.Int {
	total := new(big.Int)
	for _, v := range s.balances {
		total.Add(total, v)
	}
	return total
}

func (s *state) generalFunds() *big.Int {
	return new(big.Int).Sub(s.reserve, s.earmarked())
}
