package model

import "time"

// Challenge represents one scoring-platform problem inside a competition.
// RemoteID is the platform-native identifier (kept as a string since rCTF
// uses UUIDs where CTFd uses integers). (CompetitionID, RemoteID) and
// (CompetitionID, Name, Category) are both unique.
type Challenge struct {
	ID            int64
	CompetitionID string
	RemoteID      string
	Name          string
	Category      string
	Points        int
	State         SolveState

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Solved reports whether the challenge is currently credited as solved.
func (c Challenge) Solved() bool {
	return c.State == SolveStateSolved
}

// SolverRecord attributes a solve to participants. Records are immutable
// once created; on unsolve the active record is superseded, not deleted,
// so the audit trail survives unsolve+resolve cycles.
type SolverRecord struct {
	ID             int64
	ChallengeID    int64
	PrimarySolver  string
	SupportSolvers []string
	Superseded     bool
	SolvedAt       time.Time
}

// PlatformSolver is the synthetic primary solver recorded when the remote
// platform reports a solve that no local submission produced.
const PlatformSolver = "platform"

// RemoteChallenge is a challenge as reported by a platform listing. The
// listing reflects the platform's visibility rules; hidden or locked
// challenges never appear here.
type RemoteChallenge struct {
	ID           string
	Name         string
	Category     string
	Points       int
	SolvedByTeam bool
}

// FlagResult is the platform's verdict on a single flag submission.
type FlagResult struct {
	Status  SubmissionStatus
	Message string
}
