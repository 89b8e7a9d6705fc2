package signer

import (
	"fmt"
	"math/big"

	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DefaultDomainName    = "SolverGate Settlement"
	DefaultDomainVersion = "1"

	orderPrimaryType = "SolverOrder"
)

var (
	// keccak256("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)")
	EIP712DomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))

	// keccak256("SolverOrder(address signer,uint256 sequence,uint256 expiry,uint256 amount,bytes32 actionsCommitment)")
	OrderTypeHash = crypto.Keccak256Hash([]byte("SolverOrder(address signer,uint256 sequence,uint256 expiry,uint256 amount,bytes32 actionsCommitment)"))
)

// Domain binds digests to one deployment. Changing any field changes every digest.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address

	separator common.Hash
}

func NewDomain(name, version string, chainID int64, verifyingContract common.Address) *Domain {
	if name == "" {
		name = DefaultDomainName
	}
	if version == "" {
		version = DefaultDomainVersion
	}
	d := &Domain{
		Name:              name,
		Version:           version,
		ChainID:           big.NewInt(chainID),
		VerifyingContract: verifyingContract,
	}
	d.separator = d.computeSeparator()
	return d
}

func (d *Domain) Separator() common.Hash {
	return d.separator
}

func (d *Domain) computeSeparator() common.Hash {
	// abi.encode(typeHash, keccak(name), keccak(version), chainId, verifyingContract)
	data := make([]byte, 32*5)
	copy(data[0:32], EIP712DomainTypeHash.Bytes())
	copy(data[32:64], crypto.Keccak256([]byte(d.Name)))
	copy(data[64:96], crypto.Keccak256([]byte(d.Version)))
	copy(data[96:128], math.U256Bytes(new(big.Int).Set(d.ChainID)))
	copy(data[128+12:160], d.VerifyingContract.Bytes())
	return crypto.Keccak256Hash(data)
}

// HashOrder returns keccak256(0x19 0x01 ‖ domainSeparator ‖ hashStruct(order)).
func (d *Domain) HashOrder(o *settlement.Order) common.Hash {
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, d.separator.Bytes(), hashStruct(o))
}

func hashStruct(o *settlement.Order) []byte {
	// typeHash + 5 fields, 32 bytes each
	data := make([]byte, 32*6)
	copy(data[0:32], OrderTypeHash.Bytes())
	copy(data[32+12:64], o.Signer.Bytes())
	copy(data[64:96], math.U256Bytes(new(big.Int).SetUint64(o.Sequence)))
	copy(data[96:128], math.U256Bytes(new(big.Int).SetUint64(o.Expiry)))
	if o.Amount != nil {
		copy(data[128:160], math.U256Bytes(new(big.Int).Set(o.Amount)))
	}
	copy(data[160:192], o.Commitment.Bytes())
	return crypto.Keccak256(data)
}

// TypedData renders the order for eth_signTypedData_v4.
func (d *Domain) TypedData(o *settlement.Order) (apitypes.TypedData, error) {
	if o == nil {
		return apitypes.TypedData{}, fmt.Errorf("order is required")
	}
	amount := new(big.Int)
	if o.Amount != nil {
		amount.Set(o.Amount)
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			orderPrimaryType: {
				{Name: "signer", Type: "address"},
				{Name: "sequence", Type: "uint256"},
				{Name: "expiry", Type: "uint256"},
				{Name: "amount", Type: "uint256"},
				{Name: "actionsCommitment", Type: "bytes32"},
			},
		},
		PrimaryType: orderPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
			VerifyingContract: d.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"signer":            o.Signer.Hex(),
			"sequence":          (*math.HexOrDecimal256)(new(big.Int).SetUint64(o.Sequence)),
			"expiry":            (*math.HexOrDecimal256)(new(big.Int).SetUint64(o.Expiry)),
			"amount":            (*math.HexOrDecimal256)(amount),
			"actionsCommitment": o.Commitment.Hex(),
		},
	}, nil
}

// TypedDataHash hashes the typed-data rendering through apitypes.
func (d *Domain) TypedDataHash(o *settlement.Order) (common.Hash, error) {
	td, err := d.TypedData(o)
	if err != nil {
		return common.Hash{}, err
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(hash), nil
}
