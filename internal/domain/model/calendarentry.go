package model

import "time"

// CalendarEntry is a discovered upcoming competition from the external
// calendar feed. Materialization is monotonic: once CompetitionID is set it
// is never cleared, which is what prevents duplicate competition creation on
// repeated ingestion even if the feed later corrects names or times.
type CalendarEntry struct {
	ExternalID string
	Name       string
	StartsAt   time.Time
	EndsAt     time.Time

	// CompetitionID references the materialized competition, empty until
	// the entry has been ingested.
	CompetitionID string
	UpdatedAt     time.Time
}

// Materialized reports whether a competition has been created for this entry.
func (e CalendarEntry) Materialized() bool {
	return e.CompetitionID != ""
}

// StartsWithin reports whether the entry starts between now and now+horizon.
func (e CalendarEntry) StartsWithin(now time.Time, horizon time.Duration) bool {
	return !e.StartsAt.Before(now) && e.StartsAt.Sub(now) <= horizon
}
