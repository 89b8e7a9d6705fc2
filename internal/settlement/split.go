package settlement

import (
	"fmt"
	"math/big"
)

// Split is a fixed basis-point profit split. The solver share is floored and the
// treasury receives the remainder, so the two always sum to the total.
type Split struct {
	Numerator   int64
	Denominator int64
}

// DefaultSplit gives 90% to the solver and 10% to the treasury.
var DefaultSplit = Split{Numerator: 9000, Denominator: 10000}

func (s Split) Validate() error {
	if s.Denominator <= 0 {
		return fmt.Errorf("split denominator must be positive, got %d", s.Denominator)
	}
	if s.Numerator < 0 || s.Numerator > s.Denominator {
		return fmt.Errorf("split numerator must be within [0, %d], got %d", s.Denominator, s.Numerator)
	}
	return nil
}

// Apply returns (solverShare, treasuryShare) for a non-negative amount.
func (s Split) Apply(amount *big.Int) (*big.Int, *big.Int) {
	solver := new(big.Int).Mul(amount, big.NewInt(s.Numerator))
	solver.Quo(solver, big.NewInt(s.Denominator))
	treasury := new(big.Int).Sub(amount, solver)
	return solver, treasury
}
