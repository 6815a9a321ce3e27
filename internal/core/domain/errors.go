package domain

import "errors"

// Sentinel errors surfaced by the core. Callers decide retryability with
// errors.Is: ErrConcurrencyConflict means re-fetch and possibly retry,
// everything else is final for the triggering call.
var (
	// ErrInvalidCoordinate flags an out-of-range latitude or longitude.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrInvalidRadius flags a non-positive coverage radius.
	ErrInvalidRadius = errors.New("invalid radius")

	// ErrDuplicateApplication flags a second application by the same
	// provider against the same request.
	ErrDuplicateApplication = errors.New("duplicate application")

	// ErrRequestClosed flags an operation against a request that is no
	// longer open, or that already has an accepted application.
	ErrRequestClosed = errors.New("request closed")

	// ErrUnauthorized flags a status mutation by someone other than the
	// owning requester.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIllegalTransition flags a status change the state machine does
	// not permit from the current state.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrConcurrencyConflict flags a lost race, typically on acceptance.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrFeedGap flags a detected missed or duplicate change-feed event;
	// the consumer must re-project from the store instead of trusting
	// partial state.
	ErrFeedGap = errors.New("change feed delivery gap")

	// ErrNotFound flags a missing entity.
	ErrNotFound = errors.New("not found")
)
