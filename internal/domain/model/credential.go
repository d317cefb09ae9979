package model

import "time"

// Credential holds the platform account used for API calls on behalf of one
// competition. The Secret is plaintext at the domain boundary; the
// persistence adapter encrypts it at rest, and it must never be logged.
type Credential struct {
	CompetitionID string
	Username      string
	Secret        string
	UpdatedAt     time.Time
}

// Registration carries the fields needed to register a team account on a
// platform. Email is used by rCTF-style platforms; CTFd-style platforms use
// all three.
type Registration struct {
	TeamName string
	Email    string
	Password string
}

// TeamAccount is the result of a successful team registration. Token and
// InviteToken are populated by rCTF-style platforms only.
type TeamAccount struct {
	Name        string
	Token       string
	InviteToken string
}

// ScoreboardRow is one entry of a platform scoreboard, ordered by rank.
type ScoreboardRow struct {
	Rank     int
	TeamName string
	Score    int
}
