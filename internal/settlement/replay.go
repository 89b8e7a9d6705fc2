package settlement

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// replayGuard owns the sequence table and the settled-digest set. admit never
// mutates; stage records the commit into a batch.
type replayGuard struct {
	st *state
}

// admit checks expiry, then sequence, then digest. A clock before the epoch
// cannot vouch for freshness, so every order counts as expired.
func (g replayGuard) admit(o *Order, digest common.Hash, now time.Time) error {
	if ts := now.Unix(); ts < 0 || uint64(ts) >= o.Expiry {
		return fmt.Errorf("%w: expiry %d, now %d", ErrExpired, o.Expiry, ts)
	}
	if next := g.st.sequences[o.Signer]; o.Sequence != next {
		return fmt.Errorf("%w: presented %d, expected %d", ErrSequenceMismatch, o.Sequence, next)
	}
	if _, ok := g.st.settled[digest]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadySettled, digest.Hex())
	}
	return nil
}

func (g replayGuard) stage(b *Batch, o *Order, digest common.Hash, at time.Time) {
	b.Sequences[o.Signer] = o.Sequence + 1
	b.Settled = append(b.Settled, SettledRecord{
		Digest:    digest,
		Signer:    o.Signer,
		Sequence:  o.Sequence,
		Amount:    new(big.Int).Set(o.Amount),
		SettledAt: at,
	})
}
