package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventSettled     EventKind = "settlement"
	EventWithdrawn   EventKind = "withdrawal"
	EventRescued     EventKind = "rescue"
	EventHookChanged EventKind = "hook_changed"
)

// Event is the externally observable trace of a successful mutation.
// Identity is the signer, the withdrawing party or the rescue destination.
type Event struct {
	Kind          EventKind
	Identity      common.Address
	Digest        common.Hash
	Sequence      uint64
	Amount        *big.Int
	SolverShare   *big.Int
	TreasuryShare *big.Int
	Reference     string
	Hook          string
	At            time.Time
}

type eventJSON struct {
	Kind          EventKind `json:"kind"`
	Identity      string    `json:"identity"`
	Digest        string    `json:"digest,omitempty"`
	Sequence      *uint64   `json:"sequence,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	SolverShare   string    `json:"solver_share,omitempty"`
	TreasuryShare string    `json:"treasury_share,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	Hook          string    `json:"hook,omitempty"`
	At            time.Time `json:"at"`
}

// MarshalJSON renders amounts as decimal strings.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Kind:          e.Kind,
		Identity:      e.Identity.Hex(),
		Amount:        bigString(e.Amount),
		SolverShare:   bigString(e.SolverShare),
		TreasuryShare: bigString(e.TreasuryShare),
		Reference:     e.Reference,
		Hook:          e.Hook,
		At:            e.At,
	}
	if e.Kind == EventSettled {
		out.Digest = e.Digest.Hex()
		seq := e.Sequence
		out.Sequence = &seq
	}
	return json.Marshal(out)
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// Publisher receives events after the state change has committed.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Publishers fans an event out to every sink and joins their errors.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
