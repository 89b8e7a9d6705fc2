package signer

import (
	"fmt"
	"math/big"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const signatureLength = 65

// Verifier recovers order signers against a fixed domain. It is safe for
// concurrent use and has no side effects.
type Verifier struct {
	domain *Domain
}

var _ settlement.Verifier = (*Verifier)(nil)

func NewVerifier(domain *Domain) *Verifier {
	return &Verifier{domain: domain}
}

func (v *Verifier) Domain() *Domain {
	return v.domain
}

func (v *Verifier) Digest(o *settlement.Order) common.Hash {
	return v.domain.HashOrder(o)
}

// Recover returns the address that produced signature over o's digest.
func (v *Verifier) Recover(o *settlement.Order, signature []byte) (common.Address, error) {
	if o == nil {
		return common.Address{}, fmt.Errorf("%w: order is required", settlement.ErrInvalidSignature)
	}
	return recoverHash(v.domain.HashOrder(o).Bytes(), signature)
}

// Verify fails with ErrInvalidSignature unless signature was produced by o.Signer.
func (v *Verifier) Verify(o *settlement.Order, signature []byte) (common.Address, error) {
	recovered, err := v.Recover(o, signature)
	if err != nil {
		return common.Address{}, err
	}
	if recovered != o.Signer {
		return common.Address{}, fmt.Errorf("%w: recovered %s, order signer %s", settlement.ErrInvalidSignature, recovered.Hex(), o.Signer.Hex())
	}
	return recovered, nil
}

// RecoverPersonal recovers the signer of an EIP-191 personal_sign message.
func RecoverPersonal(msg, signature []byte) (common.Address, error) {
	return recoverHash(accounts.TextHash(msg), signature)
}

func recoverHash(hash, signature []byte) (common.Address, error) {
	if len(signature) != signatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", settlement.ErrInvalidSignature, len(signature))
	}
	sig := make([]byte, signatureLength)
	copy(sig, signature)
	switch sig[64] {
	case 0, 1:
	case 27, 28:
		sig[64] -= 27
	default:
		return common.Address{}, fmt.Errorf("%w: recovery id %d", settlement.ErrInvalidSignature, signature[64])
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	// Reject malleable high-S forms and out-of-range R/S.
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, fmt.Errorf("%w: non-canonical signature", settlement.ErrInvalidSignature)
	}
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", settlement.ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
