package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds a private key and signs orders for one domain.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	domain  *Domain
}

func NewSigner(privateKeyHex string, domain *Domain) (*Signer, error) {
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	if domain == nil {
		return nil, fmt.Errorf("domain is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %v", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		domain:  domain,
	}, nil
}

// SignOrder signs the EIP-712 digest of o. V is 27/28.
func (s *Signer) SignOrder(o *settlement.Order) ([]byte, error) {
	digest := s.domain.HashOrder(o)
	return s.sign(digest.Bytes())
}

// SignOrderHex is SignOrder rendered as 0x-prefixed hex.
func (s *Signer) SignOrderHex(o *settlement.Order) (string, error) {
	sig, err := s.SignOrder(o)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

// SignPersonal signs msg with the EIP-191 personal_sign prefix.
func (s *Signer) SignPersonal(msg []byte) ([]byte, error) {
	return s.sign(accounts.TextHash(msg))
}

func (s *Signer) sign(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return nil, err
	}
	// crypto.Sign returns [R || S || V] with V in {0,1}
	sig[64] += 27
	return sig, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

func (s *Signer) Domain() *Domain {
	return s.domain
}
