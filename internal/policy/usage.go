package policy

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// UsageRepo tracks per-signer settled volume and order count for the current UTC day.
type UsageRepo interface {
	GetDailyUsage(ctx context.Context, signer common.Address) (int, *big.Int, error)
	AddDailyUsage(ctx context.Context, signer common.Address, orders int, amount *big.Int) error
}

// DayKey formats t as the UTC day used to bucket usage.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MemoryUsage 在进程内跟踪签名者的当日用量
type MemoryUsage struct {
	mu     sync.RWMutex
	volume map[string]*big.Int // Key: signer:YYYY-MM-DD
	orders map[string]int
	now    func() time.Time
}

func NewMemoryUsage() *MemoryUsage {
	return &MemoryUsage{
		volume: make(map[string]*big.Int),
		orders: make(map[string]int),
		now:    time.Now,
	}
}

func (s *MemoryUsage) GetDailyUsage(_ context.Context, signer common.Address) (int, *big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := s.makeKey(signer)
	vol := new(big.Int)
	if v, ok := s.volume[key]; ok {
		vol.Set(v)
	}
	return s.orders[key], vol, nil
}

func (s *MemoryUsage) AddDailyUsage(_ context.Context, signer common.Address, orders int, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.makeKey(signer)
	cur, ok := s.volume[key]
	if !ok {
		cur = new(big.Int)
	}
	if amount != nil {
		cur = new(big.Int).Add(cur, amount)
	}
	s.volume[key] = cur
	s.orders[key] += orders
	return nil
}

func (s *MemoryUsage) makeKey(signer common.Address) string {
	return signer.Hex() + ":" + DayKey(s.now())
}
