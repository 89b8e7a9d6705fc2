package signer

import (
	"errors"
	"math/big"
	"testing"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0x00000000000000000000000000000000000c0de1")

func newTestSigner(t testing.TB, domain *Domain) *Signer {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s, err := NewSigner(hexutil.Encode(crypto.FromECDSA(key)), domain)
	require.NoError(t, err)
	return s
}

func testOrder(signer common.Address) *settlement.Order {
	return &settlement.Order{
		Signer:     signer,
		Sequence:   0,
		Expiry:     1800000000,
		Amount:     big.NewInt(1000),
		Commitment: crypto.Keccak256Hash([]byte("route:weth>usdc>weth")),
	}
}

func TestSigner_SignOrder(t *testing.T) {
	domain := NewDomain("", "", 1, testContract)
	s := newTestSigner(t, domain)

	sig, err := s.SignOrderHex(testOrder(s.Address()))
	assert.NoError(t, err)
	assert.Equal(t, 132, len(sig)) // 0x + 65 bytes * 2

	raw, err := s.SignOrder(testOrder(s.Address()))
	require.NoError(t, err)
	assert.Contains(t, []byte{27, 28}, raw[64])
}

func TestVerifier_Verify(t *testing.T) {
	domain := NewDomain("", "", 1, testContract)
	s := newTestSigner(t, domain)
	v := NewVerifier(domain)
	order := testOrder(s.Address())

	sig, err := s.SignOrder(order)
	require.NoError(t, err)

	got, err := v.Verify(order, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	// V in {0,1} is accepted too.
	low := append([]byte(nil), sig...)
	low[64] -= 27
	_, err = v.Verify(order, low)
	assert.NoError(t, err)
}

func TestVerifier_RejectsOtherSigner(t *testing.T) {
	domain := NewDomain("", "", 1, testContract)
	s := newTestSigner(t, domain)
	other := newTestSigner(t, domain)
	v := NewVerifier(domain)

	order := testOrder(s.Address())
	sig, err := other.SignOrder(order)
	require.NoError(t, err)

	_, err = v.Verify(order, sig)
	assert.True(t, errors.Is(err, settlement.ErrInvalidSignature))
}

func TestVerifier_RejectsTamperedOrder(t *testing.T) {
	domain := NewDomain("", "", 1, testContract)
	s := newTestSigner(t, domain)
	v := NewVerifier(domain)

	order := testOrder(s.Address())
	sig, err := s.SignOrder(order)
	require.NoError(t, err)

	order.Amount = big.NewInt(1001)
	_, err = v.Verify(order, sig)
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)
}

func TestVerifier_RejectsHighS(t *testing.T) {
	domain := NewDomain("", "", 1, testContract)
	s := newTestSigner(t, domain)
	v := NewVerifier(domain)
	order := testOrder(s.Address())

	sig, err := s.SignOrder(order)
	require.NoError(t, err)

	// (r, n-s, v^1) recovers the same key but is the malleable twin.
	n := crypto.S256().Params().N
	highS := new(big.Int).Sub(n, new(big.Int).SetBytes(sig[32:64]))
	malleable := make([]byte, 65)
	copy(malleable[:32], sig[:32])
	highS.FillBytes(malleable[32:64])
	malleable[64] = ((sig[64] - 27) ^ 1) + 27

	_, err = v.Verify(order, malleable)
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)
}

func TestVerifier_RejectsMalformed(t *testing.T) {
	domain := NewDomain("", "", 1, testContract)
	s := newTestSigner(t, domain)
	v := NewVerifier(domain)
	order := testOrder(s.Address())

	sig, err := s.SignOrder(order)
	require.NoError(t, err)

	_, err = v.Verify(order, sig[:64])
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)

	bad := append([]byte(nil), sig...)
	bad[64] = 5
	_, err = v.Verify(order, bad)
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)

	_, err = v.Verify(order, make([]byte, 65))
	assert.ErrorIs(t, err, settlement.ErrInvalidSignature)
}

func TestDomain_DigestDependsOnDeployment(t *testing.T) {
	order := testOrder(common.HexToAddress("0x0000000000000000000000000000000000000abc"))

	base := NewDomain("", "", 1, testContract).HashOrder(order)
	assert.NotEqual(t, base, NewDomain("", "", 137, testContract).HashOrder(order))
	assert.NotEqual(t, base, NewDomain("", "2", 1, testContract).HashOrder(order))
	assert.NotEqual(t, base, NewDomain("", "", 1, common.HexToAddress("0x01")).HashOrder(order))
	assert.Equal(t, base, NewDomain(DefaultDomainName, DefaultDomainVersion, 1, testContract).HashOrder(order))
}

func TestDomain_DigestDependsOnEveryField(t *testing.T) {
	domain := NewDomain("", "", 1, testContract)
	order := testOrder(common.HexToAddress("0x0000000000000000000000000000000000000abc"))
	base := domain.HashOrder(order)

	mutations := map[string]func(o *settlement.Order){
		"signer":     func(o *settlement.Order) { o.Signer = common.HexToAddress("0x0def") },
		"sequence":   func(o *settlement.Order) { o.Sequence++ },
		"expiry":     func(o *settlement.Order) { o.Expiry++ },
		"amount":     func(o *settlement.Order) { o.Amount = big.NewInt(999) },
		"commitment": func(o *settlement.Order) { o.Commitment = common.Hash{} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			o := testOrder(order.Signer)
			mutate(o)
			assert.NotEqual(t, base, domain.HashOrder(o))
		})
	}
}

func TestDomain_TypedDataMatchesManualHash(t *testing.T) {
	domain := NewDomain("", "", 11155111, testContract)
	order := testOrder(common.HexToAddress("0x00000000000000000000000000000000000f00d5"))
	order.Sequence = 42
	order.Amount, _ = new(big.Int).SetString("123456789012345678901234567890", 10)

	hash, err := domain.TypedDataHash(order)
	require.NoError(t, err)
	assert.Equal(t, domain.HashOrder(order), hash)
}

func TestRecoverPersonal(t *testing.T) {
	s := newTestSigner(t, NewDomain("", "", 1, testContract))
	msg := []byte("solvergate:POST:/v1/withdrawals:1700000000")

	sig, err := s.SignPersonal(msg)
	require.NoError(t, err)

	got, err := RecoverPersonal(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), got)

	got, err = RecoverPersonal([]byte("solvergate:POST:/v1/withdrawals:1700000001"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, s.Address(), got)
}

func BenchmarkSignOrder(b *testing.B) {
	s := newTestSigner(b, NewDomain("", "", 1, testContract))
	order := testOrder(s.Address())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.SignOrder(order)
	}
}
