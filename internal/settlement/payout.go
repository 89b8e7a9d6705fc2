package settlement

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Payout moves value out of the engine. It returns an opaque reference such as a
// transaction hash. An error wrapping ErrPayoutPending must come with the
// reference of the broadcast transfer; any other error means nothing was paid.
type Payout interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (string, error)
}

// PayoutFunc adapts a function to Payout.
type PayoutFunc func(ctx context.Context, to common.Address, amount *big.Int) (string, error)

func (f PayoutFunc) Transfer(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	return f(ctx, to, amount)
}

// Transfer is one payout recorded by a Journal.
type Transfer struct {
	To     common.Address
	Amount *big.Int
}

// Journal is a Payout that only records transfers, for operators who move
// funds out of band and for tests.
type Journal struct {
	mu        sync.Mutex
	transfers []Transfer
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) Transfer(_ context.Context, to common.Address, amount *big.Int) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.transfers = append(j.transfers, Transfer{To: to, Amount: new(big.Int).Set(amount)})
	return fmt.Sprintf("journal-%d", len(j.transfers)), nil
}

func (j *Journal) Transfers() []Transfer {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Transfer, len(j.transfers))
	copy(out, j.transfers)
	return out
}
