package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
)

const restoreAttempts = 3

// Withdraw pays out caller's whole balance. The balance is zeroed and persisted
// before the payout; a failed payout restores it. A pending payout keeps the
// debit and returns the broadcast reference.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address) (*big.Int, error) {
	key := "withdraw:" + caller.Hex()
	if !e.enter(key) {
		return nil, fmt.Errorf("%w: withdrawal for %s in flight", ErrReentrantCall, caller.Hex())
	}
	defer e.exit(key)

	e.mu.Lock()
	amount := e.st.balance(caller)
	if amount.Sign() == 0 {
		e.mu.Unlock()
		return nil, ErrNothingToWithdraw
	}
	b := newBatch()
	b.Balances[caller] = new(big.Int)
	b.Reserve = new(big.Int).Sub(e.st.reserve, amount)
	if err := e.store.Apply(ctx, b); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: debit balance: %v", ErrStorage, err)
	}
	e.st.apply(b)
	e.mu.Unlock()

	ref, err := e.payout.Transfer(ctx, caller, new(big.Int).Set(amount))
	if err = e.settlePayout(ctx, &caller, amount, ref, err); err != nil {
		return nil, err
	}

	e.emit(ctx, Event{
		Kind:      EventWithdrawn,
		Identity:  caller,
		Amount:    amount,
		Reference: ref,
		At:        e.now(),
	})
	return amount, nil
}

// settlePayout decides what a payout error means for the debit. Only a definite
// failure restores; a pending transfer may still mine.
func (e *Engine) settlePayout(ctx context.Context, id *common.Address, amount *big.Int, ref string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPayoutPending) {
		logger.Warn("payout unconfirmed, keeping debit", "reference", ref, "amount", amount.String(), "error", err.Error())
		return nil
	}
	e.restore(ctx, id, amount)
	return fmt.Errorf("%w: %v", ErrPayoutFailed, err)
}

// restore adds amount back to the reserve and, when id is set, to id's balance.
// Adding rather than overwriting keeps credits that landed during the payout.
func (e *Engine) restore(ctx context.Context, id *common.Address, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := newBatch()
	if id != nil {
		b.Balances[*id] = new(big.Int).Add(e.st.balance(*id), amount)
	}
	b.Reserve = new(big.Int).Add(e.st.reserve, amount)

	sctx := context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt < restoreAttempts; attempt++ {
		if err = e.store.Apply(sctx, b); err == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	if err != nil {
		// Memory stays authoritative for this process; the store needs operator repair.
		logger.Error("failed to persist payout restore", "amount", amount.String(), "error", err.Error())
	}
	e.st.apply(b)
}
