package policy

import (
	"context"
	"fmt"
	"math/big"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/GoPolymarket/solvergate/internal/pkg/metrics"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/ethereum/go-ethereum/common"
)

// RiskLimits bounds what a single signer may claim. Zero values disable a check.
type RiskLimits struct {
	MaxClaim           *big.Int
	MaxDailyVolume     *big.Int
	MaxDailyOrders     int
	BlockedCommitments []common.Hash
	AllowedSigners     []common.Address
}

// RiskHook enforces RiskLimits before a settlement commits. Usage is recorded
// from settlement events, so only committed orders count toward daily caps.
type RiskHook struct {
	limits  RiskLimits
	repo    UsageRepo
	blocked map[common.Hash]struct{}
	allowed map[common.Address]struct{}
}

var (
	_ settlement.Hook      = (*RiskHook)(nil)
	_ settlement.Publisher = (*RiskHook)(nil)
)

func NewRiskHook(limits RiskLimits, repo UsageRepo) *RiskHook {
	if repo == nil {
		repo = NewMemoryUsage()
	}
	h := &RiskHook{
		limits:  limits,
		repo:    repo,
		blocked: make(map[common.Hash]struct{}, len(limits.BlockedCommitments)),
		allowed: make(map[common.Address]struct{}, len(limits.AllowedSigners)),
	}
	for _, c := range limits.BlockedCommitments {
		h.blocked[c] = struct{}{}
	}
	for _, a := range limits.AllowedSigners {
		h.allowed[a] = struct{}{}
	}
	return h
}

func (h *RiskHook) Name() string { return "risk" }

// Validate 执行结算前的所有风控检查
func (h *RiskHook) Validate(ctx context.Context, signer common.Address, amount *big.Int, commitment common.Hash) (bool, error) {
	// 1. 白名单 (Allowed Signers)
	if len(h.allowed) > 0 {
		if _, ok := h.allowed[signer]; !ok {
			return h.reject("signer_not_allowed", "signer %s is not allowed", signer.Hex())
		}
	}

	// 2. 黑名单执行计划 (Blocked Commitments)
	if _, ok := h.blocked[commitment]; ok {
		return h.reject("blocked_commitment", "actions commitment %s is blocked", commitment.Hex())
	}

	// 3. 单笔限额 (Max Claim)
	if positive(h.limits.MaxClaim) && amount.Cmp(h.limits.MaxClaim) > 0 {
		return h.reject("max_claim", "claim %s exceeds limit %s", amount, h.limits.MaxClaim)
	}

	// 4. 每日限额 (Daily Limit)
	if positive(h.limits.MaxDailyVolume) || h.limits.MaxDailyOrders > 0 {
		orders, volume, err := h.repo.GetDailyUsage(ctx, signer)
		if err != nil {
			return false, fmt.Errorf("risk check failed: %w", err)
		}
		next := new(big.Int).Add(volume, amount)
		if positive(h.limits.MaxDailyVolume) && next.Cmp(h.limits.MaxDailyVolume) > 0 {
			return h.reject("daily_volume_limit", "daily volume limit exceeded (curr: %s, new: %s, max: %s)",
				volume, amount, h.limits.MaxDailyVolume)
		}
		if h.limits.MaxDailyOrders > 0 && orders+1 > h.limits.MaxDailyOrders {
			return h.reject("daily_order_limit", "daily order limit exceeded (curr: %d, max: %d)",
				orders, h.limits.MaxDailyOrders)
		}
	}
	return true, nil
}

// Publish records usage for committed settlements.
func (h *RiskHook) Publish(ctx context.Context, ev settlement.Event) error {
	if ev.Kind != settlement.EventSettled {
		return nil
	}
	if err := h.repo.AddDailyUsage(ctx, ev.Identity, 1, ev.Amount); err != nil {
		logger.Warn("failed to record risk usage", "signer", ev.Identity.Hex(), "error", err.Error())
		return err
	}
	return nil
}

func (h *RiskHook) reject(reason, format string, args ...any) (bool, error) {
	metrics.PolicyRejects.WithLabelValues(reason).Inc()
	return false, fmt.Errorf("risk reject: "+format, args...)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
