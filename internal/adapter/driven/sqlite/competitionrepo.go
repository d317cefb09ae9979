package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CompetitionStore = (*CompetitionRepo)(nil)

// CompetitionRepo is the SQLite implementation of the CompetitionStore port.
type CompetitionRepo struct {
	db *DB
}

// NewCompetitionRepo creates a CompetitionRepo backed by the given DB.
func NewCompetitionRepo(db *DB) *CompetitionRepo {
	return &CompetitionRepo{db: db}
}

// Insert stores a new competition.
func (r *CompetitionRepo) Insert(ctx context.Context, comp model.Competition) error {
	const query = `
		INSERT INTO competitions (id, name, platform, base_url, state, starts_at, ends_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		comp.ID, comp.Name, string(comp.Platform), comp.BaseURL, string(comp.State),
		nullableTime(comp.StartsAt), nullableTime(comp.EndsAt),
	)
	if err != nil {
		return fmt.Errorf("insert competition %q: %w", comp.Name, err)
	}
	return nil
}

// GetByID retrieves a competition by id. Returns nil, nil if unknown.
func (r *CompetitionRepo) GetByID(ctx context.Context, id string) (*model.Competition, error) {
	const query = `
		SELECT id, name, platform, base_url, state, starts_at, ends_at, created_at, updated_at
		FROM competitions
		WHERE id = ?
	`

	comp, err := scanCompetition(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get competition %q: %w", id, err)
	}
	return comp, nil
}

// GetActiveByName retrieves the active competition with the given name.
// Returns nil, nil if none exists.
func (r *CompetitionRepo) GetActiveByName(ctx context.Context, name string) (*model.Competition, error) {
	const query = `
		SELECT id, name, platform, base_url, state, starts_at, ends_at, created_at, updated_at
		FROM competitions
		WHERE name = ? AND state = ?
	`

	comp, err := scanCompetition(r.db.Reader.QueryRowContext(ctx, query, name, string(model.CompetitionActive)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active competition %q: %w", name, err)
	}
	return comp, nil
}

// ListAll returns every competition ordered by creation time.
func (r *CompetitionRepo) ListAll(ctx context.Context) ([]model.Competition, error) {
	const query = `
		SELECT id, name, platform, base_url, state, starts_at, ends_at, created_at, updated_at
		FROM competitions
		ORDER BY created_at
	`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	defer rows.Close()

	var comps []model.Competition
	for rows.Next() {
		comp, err := scanCompetition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan competition: %w", err)
		}
		comps = append(comps, *comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate competitions: %w", err)
	}

	return comps, nil
}

// UpdateState transitions the competition's lifecycle state.
func (r *CompetitionRepo) UpdateState(ctx context.Context, id string, state model.CompetitionState) error {
	const query = `UPDATE competitions SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, string(state), id)
	if err != nil {
		return fmt.Errorf("update competition %q state: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update competition %q state: %w", id, model.ErrCompetitionNotFound)
	}
	return nil
}

// DeleteCascade removes the competition row; challenges, solver records and
// the credential cascade via foreign keys inside the same transaction.
func (r *CompetitionRepo) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete of competition %q: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM competitions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete competition %q: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete competition %q: %w", id, model.ErrCompetitionNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete of competition %q: %w", id, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompetition(row rowScanner) (*model.Competition, error) {
	var comp model.Competition
	var platform, state string
	var startsAt, endsAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&comp.ID, &comp.Name, &platform, &comp.BaseURL, &state,
		&startsAt, &endsAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	comp.Platform = model.PlatformKind(platform)
	comp.State = model.CompetitionState(state)

	if comp.StartsAt, err = parseNullTime(startsAt); err != nil {
		return nil, fmt.Errorf("parse starts_at: %w", err)
	}
	if comp.EndsAt, err = parseNullTime(endsAt); err != nil {
		return nil, fmt.Errorf("parse ends_at: %w", err)
	}
	if comp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if comp.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &comp, nil
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
