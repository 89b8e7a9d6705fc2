package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const rescueKey = "rescue"

// Rescue moves general (non-earmarked) funds to destination. Owner only.
func (e *Engine) Rescue(ctx context.Context, caller, destination common.Address, amount *big.Int) (string, error) {
	if caller != e.cfg.Owner {
		return "", fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	if destination == (common.Address{}) {
		return "", ErrZeroDestination
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: rescue amount must be positive", ErrInvalidAmount)
	}
	if !e.enter(rescueKey) {
		return "", fmt.Errorf("%w: rescue in flight", ErrReentrantCall)
	}
	defer e.exit(rescueKey)

	e.mu.Lock()
	if general := e.st.generalFunds(); amount.Cmp(general) > 0 {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: requested %s, available %s", ErrInsufficientReserve, amount, general)
	}
	b := newBatch()
	b.Reserve = new(big.Int).Sub(e.st.reserve, amount)
	if err := e.store.Apply(ctx, b); err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: debit reserve: %v", ErrStorage, err)
	}
	e.st.apply(b)
	e.mu.Unlock()

	ref, err := e.payout.Transfer(ctx, destination, new(big.Int).Set(amount))
	if err = e.settlePayout(ctx, nil, amount, ref, err); err != nil {
		return "", err
	}

	e.emit(ctx, Event{
		Kind:      EventRescued,
		Identity:  destination,
		Amount:    new(big.Int).Set(amount),
		Reference: ref,
		At:        e.now(),
	})
	return ref, nil
}

// ConfigureHook installs or replaces the policy hook. A nil hook removes it.
// The change applies from the next settlement attempt; attempts already past
// admission keep the hook they captured.
func (e *Engine) ConfigureHook(ctx context.Context, caller common.Address, hook Hook) error {
	if caller != e.cfg.Owner {
		return fmt.Errorf("%w: %s is not the owner", ErrUnauthorized, caller.Hex())
	}
	e.setHook(hook)
	e.emit(ctx, Event{
		Kind:     EventHookChanged,
		Identity: caller,
		Hook:     e.HookName(),
		At:       e.now(),
	})
	return nil
}
