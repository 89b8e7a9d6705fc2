package service

import (
	"context"
	"math/big"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/GoPolymarket/solvergate/internal/pkg/metrics"
	"github.com/GoPolymarket/solvergate/internal/settlement"
)

// LogPublisher writes every committed event to the structured log.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev settlement.Event) error {
	args := []any{"kind", string(ev.Kind), "identity", ev.Identity.Hex()}
	switch ev.Kind {
	case settlement.EventSettled:
		args = append(args,
			"digest", ev.Digest.Hex(),
			"sequence", ev.Sequence,
			"amount", amountString(ev.Amount),
			"solver_share", amountString(ev.SolverShare),
			"treasury_share", amountString(ev.TreasuryShare),
			"receipt", ev.Reference)
	case settlement.EventWithdrawn, settlement.EventRescued:
		args = append(args, "amount", amountString(ev.Amount), "reference", ev.Reference)
	case settlement.EventHookChanged:
		args = append(args, "hook", ev.Hook)
	}
	logger.Info("settlement event", args...)
	return nil
}

// MetricsPublisher counts events and settled volume.
type MetricsPublisher struct{}

func (MetricsPublisher) Publish(_ context.Context, ev settlement.Event) error {
	metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == settlement.EventSettled && ev.Amount != nil {
		f, _ := new(big.Float).SetInt(ev.Amount).Float64()
		metrics.SettledVolume.Add(f)
	}
	return nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
