package model

import "errors"

// Domain errors surfaced across the engine. Callers match with errors.Is;
// adapters wrap them with context via fmt.Errorf("...: %w", err).
var (
	// ErrAuth indicates a bad or expired platform credential, or an
	// unreachable login endpoint. Surfaced to an administrator, never
	// retried automatically.
	ErrAuth = errors.New("platform authentication failed")

	// ErrTransport indicates a network or timeout failure that exhausted
	// the bounded retry budget for read-only platform calls.
	ErrTransport = errors.New("platform transport failure")

	// ErrRateLimited indicates the platform rejected a flag submission due
	// to rate limiting. The caller may retry explicitly after a cooldown.
	ErrRateLimited = errors.New("platform rate limited the submission")

	// ErrRegistration indicates a platform-side business rule rejected the
	// team registration (name taken, registration closed).
	ErrRegistration = errors.New("team registration rejected")

	ErrCompetitionNotFound  = errors.New("competition not found")
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrDuplicateCompetition = errors.New("an active competition with that name already exists")
	ErrDuplicateChallenge   = errors.New("a challenge with that name and category already exists")
	ErrAlreadySolved        = errors.New("challenge is already marked solved")
	ErrNotSolved            = errors.New("challenge is not marked solved")
	ErrSubmissionInProgress = errors.New("a submission for this challenge is already in flight")

	// ErrNoPlatform indicates the competition has no platform backend bound
	// yet (e.g. it was materialized from the calendar feed).
	ErrNoPlatform = errors.New("competition has no platform configured")
)

// IsUserError reports whether err is a user-input or state-machine conflict
// rather than an infrastructure failure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrDuplicateCompetition) ||
		errors.Is(err, ErrDuplicateChallenge) ||
		errors.Is(err, ErrAlreadySolved) ||
		errors.Is(err, ErrNotSolved) ||
		errors.Is(err, ErrSubmissionInProgress)
}
