package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"
)

// PebbleStore keeps engine state in an embedded Pebble database.
// keys: s:<addr> sequence, d:<digest> settled record, b:<addr> balance, r reserve
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

var (
	prefixSequence = []byte("s:")
	prefixSettled  = []byte("d:")
	prefixBalance  = []byte("b:")
	keyReserve     = []byte("r")
)

func kSequence(a common.Address) []byte { return append(append([]byte{}, prefixSequence...), a[:]...) }
func kSettled(h common.Hash) []byte     { return append(append([]byte{}, prefixSettled...), h[:]...) }
func kBalance(a common.Address) []byte  { return append(append([]byte{}, prefixBalance...), a[:]...) }

// keyUpperBound returns the smallest key greater than every key with prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type settledValue struct {
	Signer    string    `json:"signer"`
	Sequence  uint64    `json:"sequence"`
	Amount    string    `json:"amount"`
	SettledAt time.Time `json:"settled_at"`
}

func (s *PebbleStore) Load(_ context.Context) (*settlement.Snapshot, error) {
	snap := &settlement.Snapshot{
		Sequences: make(map[common.Address]uint64),
		Settled:   make(map[common.Hash]struct{}),
		Balances:  make(map[common.Address]*big.Int),
		Reserve:   new(big.Int),
	}

	err := s.scan(prefixSequence, func(k, v []byte) error {
		if len(v) != 8 {
			return fmt.Errorf("corrupt sequence entry %x", k)
		}
		snap.Sequences[common.BytesToAddress(k)] = binary.BigEndian.Uint64(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.scan(prefixSettled, func(k, _ []byte) error {
		snap.Settled[common.BytesToHash(k)] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = s.scan(prefixBalance, func(k, v []byte) error {
		snap.Balances[common.BytesToAddress(k)] = new(big.Int).SetBytes(v)
		return nil
	})
	if err != nil {
		return nil, err
	}

	val, closer, err := s.db.Get(keyReserve)
	if err == pebble.ErrNotFound {
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reserve: %w", err)
	}
	defer closer.Close()
	snap.Reserve.SetBytes(val)
	return snap, nil
}

// scan calls fn for every key under prefix, with the prefix stripped.
func (s *PebbleStore) scan(prefix []byte, fn func(k, v []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key()[len(prefix):], iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Apply writes b as a single synced pebble batch.
func (s *PebbleStore) Apply(_ context.Context, b *settlement.Batch) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for id, next := range b.Sequences {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], next)
		if err := batch.Set(kSequence(id), buf[:], nil); err != nil {
			return err
		}
	}
	for _, rec := range b.Settled {
		data, err := json.Marshal(settledValue{
			Signer:    rec.Signer.Hex(),
			Sequence:  rec.Sequence,
			Amount:    encodeAmount(rec.Amount),
			SettledAt: rec.SettledAt.UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal settled record: %w", err)
		}
		if err := batch.Set(kSettled(rec.Digest), data, nil); err != nil {
			return err
		}
	}
	for id, amount := range b.Balances {
		if amount.Sign() == 0 {
			if err := batch.Delete(kBalance(id), nil); err != nil {
				return err
			}
			continue
		}
		if err := batch.Set(kBalance(id), amount.Bytes(), nil); err != nil {
			return err
		}
	}
	if b.Reserve != nil {
		if err := batch.Set(keyReserve, b.Reserve.Bytes(), nil); err != nil {
			return err
		}
	}
	return batch.Commit(pebble.Sync)
}

// Settlements returns the settled records of signer, in no particular order.
func (s *PebbleStore) Settlements(signer common.Address) ([]settlement.SettledRecord, error) {
	var out []settlement.SettledRecord
	err := s.scan(prefixSettled, func(k, v []byte) error {
		var sv settledValue
		if err := json.Unmarshal(v, &sv); err != nil {
			return fmt.Errorf("failed to unmarshal settled record: %w", err)
		}
		if common.HexToAddress(sv.Signer) != signer {
			return nil
		}
		amount, err := decodeAmount(sv.Amount)
		if err != nil {
			return err
		}
		out = append(out, settlement.SettledRecord{
			Digest:    common.BytesToHash(k),
			Signer:    signer,
			Sequence:  sv.Sequence,
			Amount:    amount,
			SettledAt: sv.SettledAt,
		})
		return nil
	})
	return out, err
}

func (s *PebbleStore) Close() error { return s.db.Close() }

var _ settlement.Store = (*PebbleStore)(nil)
