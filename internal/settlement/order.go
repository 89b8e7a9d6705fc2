package settlement

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a solver's signed claim on the profit of one execution plan.
// It is a value object: it is never stored, only its digest is.
type Order struct {
	Signer     common.Address
	Sequence   uint64
	Expiry     uint64 // unix seconds
	Amount     *big.Int
	Commitment common.Hash // opaque actions hash, never inspected
}

// Validate checks the order is encodable as uint256 typed data.
func (o *Order) Validate() error {
	if o == nil {
		return fmt.Errorf("%w: order is required", ErrInvalidOrder)
	}
	if o.Signer == (common.Address{}) {
		return fmt.Errorf("%w: signer is required", ErrInvalidOrder)
	}
	if o.Amount == nil || o.Amount.Sign() < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidOrder)
	}
	if o.Amount.BitLen() > 256 {
		return fmt.Errorf("%w: amount overflows uint256", ErrInvalidOrder)
	}
	return nil
}

// Verifier computes an order's canonical digest and authenticates its signature.
type Verifier interface {
	Digest(o *Order) common.Hash
	// Verify returns the recovered signer, or an error wrapping ErrInvalidSignature
	// when recovery fails or the recovered identity is not o.Signer.
	Verify(o *Order, signature []byte) (common.Address, error)
}
