package domain

import "errors"

// Domain errors
var (
	// ErrUnauthenticated means no Steam identity could be resolved for the request.
	ErrUnauthenticated = errors.New("no steam identity")

	// ErrProfileUnreadable means Steam reported an expected failure for this
	// profile/game pair (private profile, game not owned, no stats). It is a
	// normal condition, not a system fault.
	ErrProfileUnreadable = errors.New("profile stats unreadable")

	// ErrUpstreamUnavailable means a transport or HTTP-level failure talking
	// to the Steam Web API.
	ErrUpstreamUnavailable = errors.New("steam upstream unavailable")

	// ErrMalformedUpstreamResponse means Steam returned 200 with an unexpected
	// body shape. Indicates upstream contract drift; fatal for the request.
	ErrMalformedUpstreamResponse = errors.New("malformed steam response")

	// ErrChainQueryFailure is worker-only; the watcher absorbs it and retries
	// the same block window next cycle.
	ErrChainQueryFailure = errors.New("chain query failed")

	ErrAchievementLocked = errors.New("achievement not unlocked")
	ErrMintRejected      = errors.New("mint rejected")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInternalError     = errors.New("internal server error")
)

// IsNotFoundError checks if an error maps to a 404-class response
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrProfileUnreadable)
}

// IsUpstreamError checks if an error originated from the Steam upstream
func IsUpstreamError(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrMalformedUpstreamResponse)
}
