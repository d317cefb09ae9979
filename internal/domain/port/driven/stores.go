package driven

import (
	"context"
	"time"

	"github.com/squadctf/ctfsync/internal/domain/model"
)

// CompetitionStore defines the driven port for competition persistence.
type CompetitionStore interface {
	Insert(ctx context.Context, comp model.Competition) error
	GetByID(ctx context.Context, id string) (*model.Competition, error)
	// GetActiveByName returns the active competition with the given name,
	// or nil if none exists. Archived and deleted competitions do not
	// block name reuse.
	GetActiveByName(ctx context.Context, name string) (*model.Competition, error)
	ListAll(ctx context.Context) ([]model.Competition, error)
	UpdateState(ctx context.Context, id string, state model.CompetitionState) error
	// DeleteCascade removes the competition together with its challenges,
	// solver records, and credential in a single transaction.
	DeleteCascade(ctx context.Context, id string) error
}

// ChallengeStore defines the driven port for challenge persistence.
type ChallengeStore interface {
	Insert(ctx context.Context, ch model.Challenge) (int64, error)
	// GetByRemoteID returns the challenge with the given platform-native id
	// within a competition, or nil if unknown.
	GetByRemoteID(ctx context.Context, competitionID, remoteID string) (*model.Challenge, error)
	// GetByNameCategory returns the challenge with the given name+category
	// pair within a competition, or nil if unknown.
	GetByNameCategory(ctx context.Context, competitionID, name, category string) (*model.Challenge, error)
	ListByCompetition(ctx context.Context, competitionID string) ([]model.Challenge, error)
	UpdateState(ctx context.Context, id int64, state model.SolveState) error
	Rename(ctx context.Context, id int64, name, category string) error
}

// SolverStore defines the driven port for solve attribution records.
// Records are append-only: an unsolve supersedes the active record rather
// than deleting it.
type SolverStore interface {
	Insert(ctx context.Context, rec model.SolverRecord) (int64, error)
	// GetActive returns the non-superseded record for a challenge, or nil.
	GetActive(ctx context.Context, challengeID int64) (*model.SolverRecord, error)
	// Supersede marks every active record for the challenge as superseded.
	Supersede(ctx context.Context, challengeID int64) error
}

// CredentialStore defines the driven port for encrypted credential
// persistence. The adapter owns encryption; values cross this interface as
// plaintext.
type CredentialStore interface {
	Set(ctx context.Context, cred model.Credential) error
	// Get returns the credential for a competition, or nil if none is stored.
	Get(ctx context.Context, competitionID string) (*model.Credential, error)
	Delete(ctx context.Context, competitionID string) error
}

// CalendarStore defines the driven port for calendar entry persistence.
type CalendarStore interface {
	// Upsert inserts the entry or refreshes its name and times. The
	// materialized competition reference is never touched by Upsert.
	Upsert(ctx context.Context, entry model.CalendarEntry) error
	Get(ctx context.Context, externalID string) (*model.CalendarEntry, error)
	// Materialize records the competition created for an entry. It is a
	// no-op returning false when the entry is already materialized.
	Materialize(ctx context.Context, externalID, competitionID string) (bool, error)
}

// CalendarFeed defines the driven port for the read-only external calendar
// collaborator. Entries are polled on an externally-owned timer.
type CalendarFeed interface {
	// FetchUpcoming returns entries for events starting between now and
	// now+horizon.
	FetchUpcoming(ctx context.Context, now time.Time, horizon time.Duration) ([]model.CalendarEntry, error)
}
