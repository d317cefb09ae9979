package model

import "time"

// Competition represents one CTF event tracked by the engine. Exactly one
// platform backend is bound at a time; Platform and BaseURL are empty for
// competitions materialized from the calendar feed before credentials are
// configured.
type Competition struct {
	ID       string
	Name     string
	Platform PlatformKind
	BaseURL  string
	State    CompetitionState

	StartsAt time.Time
	EndsAt   time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPlatform reports whether a platform backend has been bound.
func (c Competition) HasPlatform() bool {
	return c.Platform != "" && c.BaseURL != ""
}

// IsLive reports whether the competition accepts challenge and submission
// operations.
func (c Competition) IsLive() bool {
	return c.State == CompetitionActive
}
