package policy

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/metrics"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const policyABI = `[{"inputs":[{"name":"signer","type":"address"},{"name":"amount","type":"uint256"},{"name":"actionsCommitment","type":"bytes32"}],"name":"validate","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}]`

var parsedPolicyABI = mustParseABI(policyABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractHook asks an on-chain policy contract whether a settlement may proceed.
type ContractHook struct {
	rpcURL   string
	contract common.Address

	mu       sync.Mutex
	caller   ethereum.ContractCaller
	cacheTTL time.Duration
	cache    map[string]cacheEntry
	timeout  time.Duration
	retries  int
}

type cacheEntry struct {
	valid   bool
	expires time.Time
}

var _ settlement.Hook = (*ContractHook)(nil)

type ContractOption func(*ContractHook)

// WithCaller uses caller instead of dialing rpcURL.
func WithCaller(caller ethereum.ContractCaller) ContractOption {
	return func(h *ContractHook) { h.caller = caller }
}

func NewContractHook(rpcURL string, contract common.Address, ttl, timeout time.Duration, retries int, opts ...ContractOption) *ContractHook {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	h := &ContractHook{
		rpcURL:   strings.TrimSpace(rpcURL),
		contract: contract,
		cacheTTL: ttl,
		cache:    make(map[string]cacheEntry),
		timeout:  timeout,
		retries:  retries,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ContractHook) Name() string { return "contract" }

func (h *ContractHook) Contract() common.Address { return h.contract }

func (h *ContractHook) Validate(ctx context.Context, signer common.Address, amount *big.Int, commitment common.Hash) (bool, error) {
	if h.contract == (common.Address{}) {
		return false, fmt.Errorf("policy contract not configured")
	}
	key := cacheKey(signer, amount, commitment)
	if hit, ok := h.cacheGet(key); ok {
		return h.verdict(hit)
	}

	data, err := parsedPolicyABI.Pack("validate", signer, amount, [32]byte(commitment))
	if err != nil {
		return false, fmt.Errorf("failed to pack call data: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= h.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, h.timeout)
		caller, err := h.getCaller(attemptCtx)
		if err != nil {
			cancel()
			lastErr = err
			if !shouldRetry(ctx, attempt, h.retries) {
				break
			}
			continue
		}

		output, err := caller.CallContract(attemptCtx, ethereum.CallMsg{To: &h.contract, Data: data}, nil)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("rpc call failed: %w", err)
			if !shouldRetry(ctx, attempt, h.retries) {
				break
			}
			continue
		}
		valid, err := unpackBool(output)
		if err != nil {
			// A malformed answer is a rejection, not a transient failure.
			h.cacheSet(key, false)
			return h.verdict(false)
		}
		h.cacheSet(key, valid)
		return h.verdict(valid)
	}
	metrics.PolicyRejects.WithLabelValues("contract_unavailable").Inc()
	return false, lastErr
}

func (h *ContractHook) verdict(valid bool) (bool, error) {
	if !valid {
		metrics.PolicyRejects.WithLabelValues("contract_declined").Inc()
	}
	return valid, nil
}

func unpackBool(output []byte) (bool, error) {
	values, err := parsedPolicyABI.Unpack("validate", output)
	if err != nil {
		return false, err
	}
	if len(values) != 1 {
		return false, fmt.Errorf("unexpected output arity %d", len(values))
	}
	valid, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected output type %T", values[0])
	}
	return valid, nil
}

func (h *ContractHook) getCaller(ctx context.Context) (ethereum.ContractCaller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.caller != nil {
		return h.caller, nil
	}
	if h.rpcURL == "" {
		return nil, fmt.Errorf("rpc url not configured")
	}
	client, err := ethclient.DialContext(ctx, h.rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect rpc: %w", err)
	}
	h.caller = client
	return h.caller, nil
}

func cacheKey(signer common.Address, amount *big.Int, commitment common.Hash) string {
	return strings.ToLower(signer.Hex()) + ":" + amount.String() + ":" + commitment.Hex()
}

func (h *ContractHook) cacheGet(key string) (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.cache[key]
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expires) {
		delete(h.cache, key)
		return false, false
	}
	return entry.valid, true
}

func (h *ContractHook) cacheSet(key string, valid bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache[key] = cacheEntry{
		valid:   valid,
		expires: time.Now().Add(h.cacheTTL),
	}
}

func shouldRetry(ctx context.Context, attempt, max int) bool {
	if attempt >= max {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	default:
	}
	time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	return true
}
