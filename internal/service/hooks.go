package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GoPolymarket/solvergate/internal/config"
	"github.com/GoPolymarket/solvergate/internal/policy"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

const (
	HookNone     = "none"
	HookRisk     = "risk"
	HookContract = "contract"
)

// HookFactory builds policy hooks from configuration. The risk hook is a
// singleton so its usage counters survive hook changes; the factory forwards
// settlement events to it whether or not it is currently installed.
type HookFactory struct {
	cfg      config.PolicyConfig
	rpcURL   string
	decimals int32
	usage    policy.UsageRepo
	caller   ethereum.ContractCaller

	mu   sync.Mutex
	risk *policy.RiskHook
}

func NewHookFactory(cfg *config.Config, usage policy.UsageRepo) *HookFactory {
	return &HookFactory{
		cfg:      cfg.Policy,
		rpcURL:   cfg.Chain.RPCURL,
		decimals: cfg.Settlement.AmountDecimals,
		usage:    usage,
	}
}

// Default builds the hook named by policy.type.
func (f *HookFactory) Default() (settlement.Hook, error) {
	return f.Build(f.cfg.Type, f.cfg.ContractAddress)
}

// Build returns the hook for kind. contractAddr overrides the configured
// policy contract when set.
func (f *HookFactory) Build(kind, contractAddr string) (settlement.Hook, error) {
	switch kind {
	case "", HookNone:
		return settlement.NoopHook{}, nil
	case HookRisk:
		return f.riskHook()
	case HookContract:
		if contractAddr == "" {
			contractAddr = f.cfg.ContractAddress
		}
		addr, err := ParseAddress("contract_address", contractAddr)
		if err != nil {
			return nil, err
		}
		if f.rpcURL == "" && f.caller == nil {
			return nil, fmt.Errorf("contract policy requires chain.rpc_url")
		}
		var opts []policy.ContractOption
		if f.caller != nil {
			opts = append(opts, policy.WithCaller(f.caller))
		}
		return policy.NewContractHook(f.rpcURL, addr,
			time.Duration(f.cfg.ContractCacheSeconds)*time.Second,
			time.Duration(f.cfg.ContractTimeoutMs)*time.Millisecond,
			f.cfg.ContractRetries, opts...), nil
	default:
		return nil, fmt.Errorf("unknown policy type %q", kind)
	}
}

func (f *HookFactory) riskHook() (*policy.RiskHook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.risk != nil {
		return f.risk, nil
	}
	limits, err := f.riskLimits()
	if err != nil {
		return nil, err
	}
	f.risk = policy.NewRiskHook(limits, f.usage)
	return f.risk, nil
}

func (f *HookFactory) riskLimits() (policy.RiskLimits, error) {
	var limits policy.RiskLimits
	var err error
	if limits.MaxClaim, err = ScaleDisplay(f.cfg.MaxClaim, f.decimals); err != nil {
		return limits, fmt.Errorf("policy.max_claim: %w", err)
	}
	if limits.MaxDailyVolume, err = ScaleDisplay(f.cfg.MaxDailyVolume, f.decimals); err != nil {
		return limits, fmt.Errorf("policy.max_daily_volume: %w", err)
	}
	limits.MaxDailyOrders = f.cfg.MaxDailyOrders
	for _, raw := range f.cfg.BlockedCommitments {
		h, err := parseHash("policy.blocked_commitments", raw)
		if err != nil {
			return limits, err
		}
		limits.BlockedCommitments = append(limits.BlockedCommitments, h)
	}
	for _, raw := range f.cfg.AllowedSigners {
		a, err := ParseAddress("policy.allowed_signers", raw)
		if err != nil {
			return limits, err
		}
		limits.AllowedSigners = append(limits.AllowedSigners, a)
	}
	return limits, nil
}

// Publish feeds committed settlements into the risk hook's usage counters.
func (f *HookFactory) Publish(ctx context.Context, ev settlement.Event) error {
	f.mu.Lock()
	risk := f.risk
	f.mu.Unlock()
	if risk == nil {
		return nil
	}
	return risk.Publish(ctx, ev)
}

// ContractOf reports the policy contract behind h, if any.
func ContractOf(h settlement.Hook) (common.Address, bool) {
	if ch, ok := h.(*policy.ContractHook); ok {
		return ch.Contract(), true
	}
	return common.Address{}, false
}

var _ settlement.Publisher = (*HookFactory)(nil)
