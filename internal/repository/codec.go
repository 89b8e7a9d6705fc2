package repository

import (
	"fmt"
	"math/big"
)

// amounts are stored as base-10 strings so NUMERIC columns and Redis values
// round-trip uint256 without precision loss.
func encodeAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeAmount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", s)
	}
	return v, nil
}
