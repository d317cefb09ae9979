package model

// PlatformKind identifies the scoring-platform engine a competition runs on.
// The backend is selected once at competition creation and never switched.
type PlatformKind string

const (
	PlatformCTFd PlatformKind = "ctfd"
	PlatformRCTF PlatformKind = "rctf"
)

// CompetitionState represents the lifecycle state of a competition.
type CompetitionState string

const (
	CompetitionPlanned  CompetitionState = "planned"
	CompetitionActive   CompetitionState = "active"
	CompetitionArchived CompetitionState = "archived"
	CompetitionDeleted  CompetitionState = "deleted"
)

// SolveState represents whether a challenge is currently credited as solved.
type SolveState string

const (
	SolveStateUnsolved SolveState = "unsolved"
	SolveStateSolved   SolveState = "solved"
)

// SubmissionStatus is the terminal outcome of a flag submission as reported
// by the platform.
type SubmissionStatus string

const (
	SubmissionCorrect       SubmissionStatus = "correct"
	SubmissionIncorrect     SubmissionStatus = "incorrect"
	SubmissionAlreadySolved SubmissionStatus = "already_solved"
	SubmissionRateLimited   SubmissionStatus = "rate_limited"
)
