package usecase

import "errors"

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrNotFound              = errors.New("resource not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Upstream outcome markers. Clients mark their errors with these so the
// governor can tell health failures from quota overruns.
var (
	ErrUpstreamTransient     = errors.New("upstream transient failure")
	ErrUpstreamQuotaExceeded = errors.New("upstream quota exceeded")
)

// Governor and scheduler refusals.
var (
	ErrCircuitOpen      = errors.New("upstream circuit open")
	ErrRateLimited      = errors.New("upstream per-minute limit reached")
	ErrQuotaExhausted   = errors.New("upstream daily quota exhausted")
	ErrEmergencyStopped = errors.New("polling emergency stop engaged")
	ErrPollTooSoon      = errors.New("poll requested too soon after previous poll")
	ErrPollInFlight     = errors.New("poll already in flight")
	ErrAlreadyRunning   = errors.New("polling already running")
)

// IsGovernorDenial reports whether err is a refusal issued before any
// upstream request was made.
func IsGovernorDenial(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrQuotaExhausted)
}
