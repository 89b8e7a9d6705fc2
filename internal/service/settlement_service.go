package service

import (
	"context"
	"time"

	"github.com/GoPolymarket/solvergate/internal/model"
	"github.com/GoPolymarket/solvergate/internal/pkg/apperrors"
	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/GoPolymarket/solvergate/internal/pkg/metrics"
	"github.com/GoPolymarket/solvergate/internal/settlement"
	"github.com/GoPolymarket/solvergate/internal/signer"
	"github.com/ethereum/go-ethereum/common"
)

// SettlementService translates API requests into engine calls and engine
// results into API responses.
type SettlementService struct {
	engine   *settlement.Engine
	domain   *signer.Domain
	hooks    *HookFactory
	decimals int32
}

func NewSettlementService(engine *settlement.Engine, domain *signer.Domain, hooks *HookFactory, decimals int32) *SettlementService {
	return &SettlementService{
		engine:   engine,
		domain:   domain,
		hooks:    hooks,
		decimals: decimals,
	}
}

func (s *SettlementService) SubmitOrder(ctx context.Context, req model.SubmitOrderRequest) (*model.SettlementReceipt, error) {
	start := time.Now()
	receipt, err := s.submit(ctx, req)
	metrics.SettlementsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		logger.Debug("settlement rejected", "signer", req.Order.Signer, "sequence", req.Order.Sequence, "error", err.Error())
		return nil, err
	}
	logger.Debug("settlement committed", "signer", receipt.Signer, "digest", receipt.Digest, "latency_ms", time.Since(start).Milliseconds())
	return receipt, nil
}

func (s *SettlementService) submit(ctx context.Context, req model.SubmitOrderRequest) (*model.SettlementReceipt, error) {
	order, err := ParseOrder(req.Order)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	sig, err := ParseSignature(req.Signature)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInvalidSignature, err.Error(), settlement.ErrInvalidSignature)
	}
	value, err := ParseAmount("value", req.Value)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}

	r, err := s.engine.SubmitOrder(ctx, order, sig, value)
	if err != nil {
		return nil, toAppError(err)
	}
	return &model.SettlementReceipt{
		ID:                   r.ID,
		Signer:               r.Signer.Hex(),
		Digest:               r.Digest.Hex(),
		Sequence:             r.Sequence,
		Amount:               r.Amount.String(),
		AmountDisplay:        FormatAmount(r.Amount, s.decimals),
		SolverShare:          r.SolverShare.String(),
		SolverShareDisplay:   FormatAmount(r.SolverShare, s.decimals),
		TreasuryShare:        r.TreasuryShare.String(),
		TreasuryShareDisplay: FormatAmount(r.TreasuryShare, s.decimals),
		NextSequence:         r.Sequence + 1,
		SettledAt:            r.SettledAt,
	}, nil
}

// Digest returns the canonical digest and EIP-712 typed data for an unsigned order.
func (s *SettlementService) Digest(p model.OrderPayload) (*model.DigestResponse, error) {
	order, err := ParseOrder(p)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	if err := order.Validate(); err != nil {
		return nil, toAppError(err)
	}
	td, err := s.domain.TypedData(order)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrInternal, "build typed data", err)
	}
	return &model.DigestResponse{
		Digest:    s.engine.Digest(order).Hex(),
		TypedData: td,
	}, nil
}

func (s *SettlementService) IsSettled(raw string) (*model.SettledResponse, error) {
	digest, err := parseHash("digest", raw)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	return &model.SettledResponse{
		Digest:  digest.Hex(),
		Settled: s.engine.IsSettled(digest),
	}, nil
}

func (s *SettlementService) Withdraw(ctx context.Context, caller common.Address) (*model.WithdrawalResponse, error) {
	amount, err := s.engine.Withdraw(ctx, caller)
	metrics.WithdrawalsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, toAppError(err)
	}
	return &model.WithdrawalResponse{
		Identity:      caller.Hex(),
		Amount:        amount.String(),
		AmountDisplay: FormatAmount(amount, s.decimals),
	}, nil
}

func (s *SettlementService) Rescue(ctx context.Context, caller common.Address, req model.RescueRequest) (*model.RescueResponse, error) {
	dest, err := ParseAddress("destination", req.Destination)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	amount, err := ParseAmount("amount", req.Amount)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	ref, err := s.engine.Rescue(ctx, caller, dest, amount)
	metrics.RescuesTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return nil, toAppError(err)
	}
	return &model.RescueResponse{
		Destination:   dest.Hex(),
		Amount:        amount.String(),
		AmountDisplay: FormatAmount(amount, s.decimals),
		Reference:     ref,
	}, nil
}

func (s *SettlementService) ConfigureHook(ctx context.Context, caller common.Address, req model.ConfigureHookRequest) (*model.HookResponse, error) {
	// owner check first so non-owners learn nothing about hook configuration
	if caller != s.engine.Owner() {
		return nil, toAppError(settlement.ErrUnauthorized)
	}
	hook, err := s.hooks.Build(req.Type, req.ContractAddress)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	if err := s.engine.ConfigureHook(ctx, caller, hook); err != nil {
		return nil, toAppError(err)
	}
	resp := &model.HookResponse{Hook: s.engine.HookName()}
	if addr, ok := ContractOf(hook); ok {
		resp.Contract = addr.Hex()
	}
	return resp, nil
}

func (s *SettlementService) Balance(raw string) (*model.BalanceResponse, error) {
	id, err := ParseAddress("identity", raw)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	amount := s.engine.Withdrawable(id)
	return &model.BalanceResponse{
		Identity:      id.Hex(),
		Amount:        amount.String(),
		AmountDisplay: FormatAmount(amount, s.decimals),
	}, nil
}

func (s *SettlementService) Sequence(raw string) (*model.SequenceResponse, error) {
	id, err := ParseAddress("identity", raw)
	if err != nil {
		return nil, apperrors.NewInvalidRequest(err.Error())
	}
	return &model.SequenceResponse{
		Identity:     id.Hex(),
		NextSequence: s.engine.Sequence(id),
	}, nil
}

func (s *SettlementService) State() *model.ReserveResponse {
	reserve := s.engine.Reserve()
	general := s.engine.GeneralFunds()
	split := s.engine.Split()
	return &model.ReserveResponse{
		Owner:               s.engine.Owner().Hex(),
		Treasury:            s.engine.Treasury().Hex(),
		Hook:                s.engine.HookName(),
		Reserve:             reserve.String(),
		ReserveDisplay:      FormatAmount(reserve, s.decimals),
		GeneralFunds:        general.String(),
		GeneralFundsDisplay: FormatAmount(general, s.decimals),
		SplitNumerator:      split.Numerator,
		SplitDenominator:    split.Denominator,
		ChainID:             s.domain.ChainID.Int64(),
		VerifyingContract:   s.domain.VerifyingContract.Hex(),
	}
}
