package settlement

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Hook is an optional external policy consulted after admission and before any
// mutation. Returning false or an error rejects the settlement.
type Hook interface {
	Validate(ctx context.Context, signer common.Address, amount *big.Int, commitment common.Hash) (bool, error)
}

// NoopHook is the absent policy: every admitted order passes.
type NoopHook struct{}

func (NoopHook) Validate(context.Context, common.Address, *big.Int, common.Hash) (bool, error) {
	return true, nil
}

// HookFunc adapts a plain function to Hook.
type HookFunc func(ctx context.Context, signer common.Address, amount *big.Int, commitment common.Hash) (bool, error)

func (f HookFunc) Validate(ctx context.Context, signer common.Address, amount *big.Int, commitment common.Hash) (bool, error) {
	return f(ctx, signer, amount, commitment)
}

// Named is implemented by hooks that report a short name for events and metrics.
type Named interface {
	Name() string
}

func hookName(h Hook) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	if _, ok := h.(NoopHook); ok {
		return "none"
	}
	return "custom"
}

type hookResult struct {
	ok  bool
	err error
}

// consult runs the hook under ctx. A hook that ignores ctx is abandoned once ctx
// is done; its late answer is discarded.
func consult(ctx context.Context, h Hook, o *Order) (bool, error) {
	done := make(chan hookResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- hookResult{err: fmt.Errorf("hook panicked: %v", r)}
			}
		}()
		ok, err := h.Validate(ctx, o.Signer, new(big.Int).Set(o.Amount), o.Commitment)
		done <- hookResult{ok: ok, err: err}
	}()
	select {
	case res := <-done:
		return res.ok, res.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
