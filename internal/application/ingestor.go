package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Ingestor materializes upcoming competitions from the external calendar
// feed into planned registry entries. Materialization is keyed solely on the
// feed's external id, independent of name or start time, because feeds may
// correct those after initial publication; re-running ingestion with
// overlapping feed data never duplicates a competition.
type Ingestor struct {
	feed     driven.CalendarFeed
	calendar driven.CalendarStore
	registry *Registry
	horizon  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewIngestor creates an Ingestor with all required dependencies.
func NewIngestor(
	feed driven.CalendarFeed,
	calendar driven.CalendarStore,
	registry *Registry,
	horizon time.Duration,
	interval time.Duration,
	logger *slog.Logger,
) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		feed:     feed,
		calendar: calendar,
		registry: registry,
		horizon:  horizon,
		interval: interval,
		logger:   logger,
	}
}

// Start runs an immediate ingest cycle, then repeats on the configured
// interval until the context is canceled.
func (s *Ingestor) Start(ctx context.Context) {
	if err := s.poll(ctx); err != nil {
		s.logger.Error("initial calendar ingest failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("calendar ingestor stopped")
			return
		case <-ticker.C:
			if err := s.poll(ctx); err != nil {
				s.logger.Error("calendar ingest cycle failed", "error", err)
			}
		}
	}
}

// poll fetches the feed and ingests the result.
func (s *Ingestor) poll(ctx context.Context) error {
	entries, err := s.feed.FetchUpcoming(ctx, time.Now(), s.horizon)
	if err != nil {
		return err
	}

	_, err = s.Ingest(ctx, entries, s.horizon)
	return err
}

// Ingest materializes each feed entry that starts within the horizon and has
// no competition yet, and returns the competitions it created. Entries seen
// before but not yet materialized have their name and times refreshed from
// the feed; materialized entries are left alone.
func (s *Ingestor) Ingest(ctx context.Context, entries []model.CalendarEntry, horizon time.Duration) ([]model.Competition, error) {
	now := time.Now()
	var created []model.Competition

	for _, entry := range entries {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if !entry.StartsWithin(now, horizon) {
			continue
		}

		existing, err := s.calendar.Get(ctx, entry.ExternalID)
		if err != nil {
			s.logger.Error("calendar lookup failed", "entry", entry.ExternalID, "error", err)
			continue
		}
		if existing != nil && existing.Materialized() {
			continue
		}

		if err := s.calendar.Upsert(ctx, entry); err != nil {
			s.logger.Error("calendar upsert failed", "entry", entry.ExternalID, "error", err)
			continue
		}

		comp, err := s.registry.CreatePlanned(ctx, entry.Name, entry.StartsAt, entry.EndsAt)
		if err != nil {
			s.logger.Error("materialize competition failed", "entry", entry.ExternalID, "error", err)
			continue
		}

		ok, err := s.calendar.Materialize(ctx, entry.ExternalID, comp.ID)
		if err != nil {
			s.logger.Error("record materialization failed", "entry", entry.ExternalID, "error", err)
			continue
		}
		if !ok {
			// Lost a race with another ingest cycle; back out the extra
			// competition so the entry maps to exactly one.
			s.logger.Warn("entry materialized concurrently, removing duplicate",
				"entry", entry.ExternalID, "competition", comp.ID)
			if err := s.registry.Delete(ctx, comp.ID); err != nil {
				s.logger.Error("remove duplicate competition failed", "competition", comp.ID, "error", err)
			}
			continue
		}

		created = append(created, *comp)
		s.logger.Info("competition materialized from calendar",
			"entry", entry.ExternalID,
			"competition", comp.ID,
			"name", entry.Name,
			"starts_at", entry.StartsAt,
		)
	}

	return created, nil
}
