package driven

import (
	"context"

	"github.com/squadctf/ctfsync/internal/domain/model"
)

// Session is an authenticated platform session. CTFd-style platforms carry
// cookies; rCTF-style platforms carry a bearer token.
type Session struct {
	Token   string
	Cookies map[string]string
}

// Valid reports whether the session holds any credential material.
func (s *Session) Valid() bool {
	return s != nil && (s.Token != "" || len(s.Cookies) > 0)
}

// PlatformClient defines the driven port every scoring-platform backend must
// implement. Backends own their transport-level retry policy for transient
// network errors on read calls, but must never retry SubmitFlag: a resend of
// an already-accepted flag can be mis-scored by some platforms, so submission
// retry policy belongs to the submission coordinator.
type PlatformClient interface {
	// Authenticate logs in with the given credential and returns a session.
	// Fails wrapping model.ErrAuth on bad credentials or unreachable host.
	Authenticate(ctx context.Context, cred model.Credential) (*Session, error)

	// ListChallenges returns the challenges currently visible to the team,
	// in platform order. Hidden and locked challenges are excluded by the
	// platform itself.
	ListChallenges(ctx context.Context, session *Session) ([]model.RemoteChallenge, error)

	// SubmitFlag submits a flag for the given platform-native challenge id
	// and returns the platform's verdict. Called at most once per attempt;
	// never retried at this layer.
	SubmitFlag(ctx context.Context, session *Session, challengeID, flag string) (model.FlagResult, error)

	// FetchScoreboard returns up to limit scoreboard rows ordered by rank.
	FetchScoreboard(ctx context.Context, session *Session, limit int) ([]model.ScoreboardRow, error)

	// RegisterTeam creates a team account on the platform. Fails wrapping
	// model.ErrRegistration when the platform rejects the registration
	// (name taken, registration closed).
	RegisterTeam(ctx context.Context, reg model.Registration) (*model.TeamAccount, error)
}
