package settlement

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GoPolymarket/solvergate/internal/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const defaultHookTimeout = 2 * time.Second

type Config struct {
	Owner       common.Address
	Treasury    common.Address
	Split       Split
	HookTimeout time.Duration
}

func (c Config) Validate() error {
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("owner address is required")
	}
	if c.Treasury == (common.Address{}) {
		return fmt.Errorf("treasury address is required")
	}
	return c.Split.Validate()
}

// Receipt describes one committed settlement.
type Receipt struct {
	ID            string
	Signer        common.Address
	Digest        common.Hash
	Sequence      uint64
	Amount        *big.Int
	SolverShare   *big.Int
	TreasuryShare *big.Int
	SettledAt     time.Time
}

type Option func(*Engine)

// WithHook installs the initial policy hook.
func WithHook(h Hook) Option {
	return func(e *Engine) { e.setHook(h) }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type hookBox struct {
	hook Hook
}

// Engine owns the sequence table, the settled-digest set, the balance ledger and
// the reserve. All mutation goes through SubmitOrder, Withdraw and Rescue.
type Engine struct {
	cfg       Config
	verifier  Verifier
	store     Store
	payout    Payout
	publisher Publisher
	now       func() time.Time

	hook atomic.Pointer[hookBox]

	// settleMu serializes admit -> policy -> commit.
	settleMu sync.Mutex
	mu       sync.RWMutex
	st       *state

	guardMu  sync.Mutex
	inFlight map[string]struct{}
}

// New loads persisted state from store and returns a ready engine.
func New(ctx context.Context, cfg Config, verifier Verifier, store Store, payout Payout, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if verifier == nil || store == nil || payout == nil {
		return nil, fmt.Errorf("verifier, store and payout are required")
	}
	if cfg.HookTimeout <= 0 {
		cfg.HookTimeout = defaultHookTimeout
	}
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load state: %v", ErrStorage, err)
	}
	e := &Engine{
		cfg:       cfg,
		verifier:  verifier,
		store:     store,
		payout:    payout,
		publisher: Publishers(nil),
		now:       time.Now,
		st:        stateFromSnapshot(snap),
		inFlight:  make(map[string]struct{}),
	}
	e.setHook(NoopHook{})
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SubmitOrder verifies, admits, validates and commits one order. value is the
// amount attached to the request and must equal o.Amount exactly.
func (e *Engine) SubmitOrder(ctx context.Context, o *Order, signature []byte, value *big.Int) (*Receipt, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if value == nil {
		value = new(big.Int)
	}
	if _, err := e.verifier.Verify(o, signature); err != nil {
		return nil, err
	}
	digest := e.verifier.Digest(o)

	e.settleMu.Lock()
	defer e.settleMu.Unlock()

	// The hook is captured here; ConfigureHook only affects later attempts.
	hook := e.currentHook()
	now := e.now()

	e.mu.RLock()
	err := replayGuard{st: e.st}.admit(o, digest, now)
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if value.Cmp(o.Amount) != 0 {
		return nil, fmt.Errorf("%w: attached %s, claimed %s", ErrValueMismatch, value, o.Amount)
	}

	hctx, cancel := context.WithTimeout(ctx, e.cfg.HookTimeout)
	ok, herr := consult(hctx, hook, o)
	cancel()
	if herr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPolicyRejected, hookName(hook), herr)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s declined", ErrPolicyRejected, hookName(hook))
	}

	e.mu.Lock()
	b := newBatch()
	replayGuard{st: e.st}.stage(b, o, digest, now)
	solverShare, treasuryShare := ledger{st: e.st, split: e.cfg.Split, treasury: e.cfg.Treasury}.stageCredit(b, o.Signer, o.Amount, value)
	if err := e.store.Apply(ctx, b); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: commit settlement: %v", ErrStorage, err)
	}
	e.st.apply(b)
	e.mu.Unlock()

	receipt := &Receipt{
		ID:            uuid.New().String(),
		Signer:        o.Signer,
		Digest:        digest,
		Sequence:      o.Sequence,
		Amount:        new(big.Int).Set(o.Amount),
		SolverShare:   solverShare,
		TreasuryShare: treasuryShare,
		SettledAt:     now,
	}
	e.emit(ctx, Event{
		Kind:          EventSettled,
		Identity:      o.Signer,
		Digest:        digest,
		Sequence:      o.Sequence,
		Amount:        receipt.Amount,
		SolverShare:   solverShare,
		TreasuryShare: treasuryShare,
		Reference:     receipt.ID,
		At:            now,
	})
	return receipt, nil
}

// Withdrawable returns the credited balance of id.
func (e *Engine) Withdrawable(id common.Address) *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.balance(id)
}

// Sequence returns the next sequence number id must present.
func (e *Engine) Sequence(id common.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.sequences[id]
}

func (e *Engine) IsSettled(digest common.Hash) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.st.settled[digest]
	return ok
}

// Reserve is the total value held, earmarked or not.
func (e *Engine) Reserve() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.st.reserve)
}

// GeneralFunds is the part of the reserve not owed to any credited party.
func (e *Engine) GeneralFunds() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.generalFunds()
}

// Digest exposes the verifier's canonical digest.
func (e *Engine) Digest(o *Order) common.Hash {
	return e.verifier.Digest(o)
}

func (e *Engine) Owner() common.Address    { return e.cfg.Owner }
func (e *Engine) Treasury() common.Address { return e.cfg.Treasury }
func (e *Engine) Split() Split             { return e.cfg.Split }

func (e *Engine) HookName() string {
	return hookName(e.currentHook())
}

func (e *Engine) currentHook() Hook {
	if box := e.hook.Load(); box != nil {
		return box.hook
	}
	return NoopHook{}
}

func (e *Engine) setHook(h Hook) {
	if h == nil {
		h = NoopHook{}
	}
	e.hook.Store(&hookBox{hook: h})
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("event publish failed", "kind", string(ev.Kind), "identity", ev.Identity.Hex(), "error", err.Error())
	}
}

// enter marks key in flight; it reports false if key is already in flight.
func (e *Engine) enter(key string) bool {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	if _, busy := e.inFlight[key]; busy {
		return false
	}
	e.inFlight[key] = struct{}{}
	return true
}

func (e *Engine) exit(key string) {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	delete(e.inFlight, key)
}
