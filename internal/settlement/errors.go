package settlement

import "errors"

// Every error aborts the triggering call with no state change.
var (
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrExpired           = errors.New("order expired")
	ErrSequenceMismatch  = errors.New("sequence mismatch")
	ErrAlreadySettled    = errors.New("order already settled")
	ErrPolicyRejected    = errors.New("policy rejected")
	ErrValueMismatch     = errors.New("attached value does not match claimed amount")
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
	ErrPayoutFailed      = errors.New("payout failed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrZeroDestination   = errors.New("zero destination")

	ErrReentrantCall       = errors.New("reentrant call")
	ErrInsufficientReserve = errors.New("insufficient general funds")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrStorage             = errors.New("storage failure")
)

// ErrPayoutPending marks a payout that was broadcast but not confirmed in
// time. The transfer may still land, so the engine keeps the debit.
var ErrPayoutPending = errors.New("payout pending confirmation")
