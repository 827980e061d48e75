package services

import "errors"

// Rejection categories for intake and ledger operations. Handlers map these
// to HTTP codes; everything except ErrSettlementFailed is synchronous and
// side-effect-free.
var (
	// ErrInputRejected marks malformed or duplicate input that never enters
	// engine state: bad commitment hex, duplicate commitment, out-of-bounds
	// amount, same-token swap, invalid address.
	ErrInputRejected = errors.New("input rejected")

	// ErrWindowExpired marks a reveal or cancel arriving after its absolute
	// deadline. Dropped without mutation; the caller gets a distinct status.
	ErrWindowExpired = errors.New("window expired")

	// ErrVerificationFailed marks a cryptographic check that did not hold:
	// commitment mismatch after decrypt, a signature that recovers the wrong
	// signer, or a stale nonce. Never retried.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrSettlementFailed marks a failure reported by the external settlement
	// collaborator after a match or payout was computed. Fatal for that item;
	// no automatic retry.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrTimelockNotElapsed marks a premature emergency withdrawal attempt.
	// Retryable once the delay has passed.
	ErrTimelockNotElapsed = errors.New("timelock not elapsed")

	// ErrNotFound marks a lookup for a commitment, order or channel that does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrTradingPaused marks intake attempts while the exchange is paused.
	ErrTradingPaused = errors.New("trading is currently paused")
)
