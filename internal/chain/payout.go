package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	transferGasLimit   = 21000
	defaultWaitTimeout = 2 * time.Minute
)

// Backend is the subset of ethclient.Client a payout needs.
type Backend interface {
	bind.DeployBackend
	NonceSource
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Payout sends native-value transfers from a hot wallet and waits for them to mine.
type Payout struct {
	backend     Backend
	nonces      *NonceManager
	key         *ecdsa.PrivateKey
	from        common.Address
	chainID     *big.Int
	signer      types.Signer
	waitTimeout time.Duration

	// one transfer at a time keeps nonces gapless
	sendMu sync.Mutex
}

var _ settlement.Payout = (*Payout)(nil)

func NewPayout(backend Backend, privateKeyHex string, chainID int64, waitTimeout time.Duration) (*Payout, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is required")
	}
	if privateKeyHex == "" {
		return nil, fmt.Errorf("payout private key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid payout private key: %v", err)
	}
	if waitTimeout <= 0 {
		waitTimeout = defaultWaitTimeout
	}
	id := big.NewInt(chainID)
	return &Payout{
		backend:     backend,
		nonces:      NewNonceManager(backend),
		key:         key,
		from:        crypto.PubkeyToAddress(key.PublicKey),
		chainID:     id,
		signer:      types.LatestSignerForChainID(id),
		waitTimeout: waitTimeout,
	}, nil
}

func (p *Payout) From() common.Address {
	return p.from
}

// Transfer sends amount to `to` and returns the transaction hash once the
// transaction is mined successfully. If the receipt does not arrive in time the
// hash is returned with an error wrapping settlement.ErrPayoutPending.
func (p *Payout) Transfer(ctx context.Context, to common.Address, amount *big.Int) (string, error) {
	tx, err := p.send(ctx, to, amount)
	if err != nil {
		return "", err
	}
	logger.Info("payout sent", "tx", tx.Hash().Hex(), "to", to.Hex(), "amount", amount.String(), "nonce", tx.Nonce())

	ref := tx.Hash().Hex()

	// 已广播：调用方断开也要继续等回执
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.waitTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, p.backend, tx)
	if err != nil {
		return ref, fmt.Errorf("%w: wait receipt %s: %v", settlement.ErrPayoutPending, ref, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("payout tx %s reverted", ref)
	}
	return ref, nil
}

func (p *Payout) send(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	nonce, err := p.nonces.Next(ctx, p.from)
	if err != nil {
		return nil, err
	}
	tip, err := p.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   p.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       transferGasLimit,
		To:        &to,
		Value:     new(big.Int).Set(amount),
	}), p.signer, p.key)
	if err != nil {
		return nil, fmt.Errorf("sign payout tx: %w", err)
	}
	if err := p.backend.SendTransaction(ctx, tx); err != nil {
		if rerr := p.nonces.Reset(ctx, p.from); rerr != nil {
			logger.Warn("nonce reset failed", "address", p.from.Hex(), "error", rerr.Error())
		}
		return nil, fmt.Errorf("send payout tx: %w", err)
	}
	p.nonces.Increment(p.from)
	return tx, nil
}
