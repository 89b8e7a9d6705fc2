package service

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
)

// ParseOrder converts the wire payload into an engine order.
// Numbers accept decimal or 0x-prefixed hex.
func ParseOrder(p model.OrderPayload) (*settlement.Order, error) {
	signer, err := ParseAddress("signer", p.Signer)
	if err != nil {
		return nil, err
	}
	seq, err := parseUint64("sequence", p.Sequence)
	if err != nil {
		return nil, err
	}
	expiry, err := parseUint64("expiry", p.Expiry)
	if err != nil {
		return nil, err
	}
	amount, err := ParseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	commitment, err := parseHash("actions_commitment", p.ActionsCommitment)
	if err != nil {
		return nil, err
	}
	return &settlement.Order{
		Signer:     signer,
		Sequence:   seq,
		Expiry:     expiry,
		Amount:     amount,
		Commitment: commitment,
	}, nil
}

func ParseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

// ParseAmount parses a non-negative uint256.
func ParseAmount(field, raw string) (*big.Int, error) {
	v, ok := math.ParseBig256(strings.TrimSpace(raw))
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid uint256 %q", field, raw)
	}
	return v, nil
}

func parseUint64(field, raw string) (uint64, error) {
	v, ok := math.ParseUint64(strings.TrimSpace(raw))
	if !ok {
		return 0, fmt.Errorf("%s: invalid uint64 %q", field, raw)
	}
	return v, nil
}

func parseHash(field, raw string) (common.Hash, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s: expected 32-byte hex", field)
	}
	return common.BytesToHash(b), nil
}

// ParseSignature decodes a 0x-prefixed 65-byte signature.
func ParseSignature(raw string) ([]byte, error) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("signature: %v", err)
	}
	return b, nil
}

// FormatAmount renders base units scaled down by decimals, e.g. 1500000 with 6 → "1.5".
func FormatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -decimals).String()
}

// ScaleDisplay converts a display amount ("2.5") into base units. Fractions
// finer than decimals are rejected.
func ScaleDisplay(raw string, decimals int32) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", raw)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", raw, decimals)
	}
	return scaled.BigInt(), nil
}
