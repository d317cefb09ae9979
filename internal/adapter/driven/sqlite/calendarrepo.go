package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CalendarStore = (*CalendarRepo)(nil)

// CalendarRepo is the SQLite implementation of the CalendarStore port.
type CalendarRepo struct {
	db *DB
}

// NewCalendarRepo creates a CalendarRepo backed by the given DB.
func NewCalendarRepo(db *DB) *CalendarRepo {
	return &CalendarRepo{db: db}
}

// Upsert inserts the entry or refreshes its name and times. External feeds
// may correct names and times after initial publication, so those fields
// always track the feed; the materialized competition reference is never
// touched here.
func (r *CalendarRepo) Upsert(ctx context.Context, entry model.CalendarEntry) error {
	const query = `
		INSERT INTO calendar_entries (external_id, name, starts_at, ends_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		entry.ExternalID, entry.Name, entry.StartsAt.UTC(), entry.EndsAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert calendar entry %q: %w", entry.ExternalID, err)
	}
	return nil
}

// Get retrieves a calendar entry by external id. Returns nil, nil if unknown.
func (r *CalendarRepo) Get(ctx context.Context, externalID string) (*model.CalendarEntry, error) {
	const query = `
		SELECT external_id, name, starts_at, ends_at, competition_id, updated_at
		FROM calendar_entries
		WHERE external_id = ?
	`

	var entry model.CalendarEntry
	var startsAt, endsAt, updatedAt string
	var competitionID sql.NullString

	err := r.db.Reader.QueryRowContext(ctx, query, externalID).Scan(
		&entry.ExternalID, &entry.Name, &startsAt, &endsAt, &competitionID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get calendar entry %q: %w", externalID, err)
	}

	entry.CompetitionID = competitionID.String
	if entry.StartsAt, err = parseTime(startsAt); err != nil {
		return nil, fmt.Errorf("parse starts_at: %w", err)
	}
	if entry.EndsAt, err = parseTime(endsAt); err != nil {
		return nil, fmt.Errorf("parse ends_at: %w", err)
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &entry, nil
}

// Materialize records the competition created for an entry. Materialization
// is monotonic: the guard clause refuses to overwrite an existing reference,
// and the false return tells the caller the entry was already materialized.
func (r *CalendarRepo) Materialize(ctx context.Context, externalID, competitionID string) (bool, error) {
	const query = `
		UPDATE calendar_entries
		SET competition_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE external_id = ? AND competition_id IS NULL
	`

	res, err := r.db.Writer.ExecContext(ctx, query, competitionID, externalID)
	if err != nil {
		return false, fmt.Errorf("materialize calendar entry %q: %w", externalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("materialize calendar entry %q: rows affected: %w", externalID, err)
	}
	return n == 1, nil
}
