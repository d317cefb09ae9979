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
var _ driven.ChallengeStore = (*ChallengeRepo)(nil)

// ChallengeRepo is the SQLite implementation of the ChallengeStore port.
type ChallengeRepo struct {
	db *DB
}

// NewChallengeRepo creates a ChallengeRepo backed by the given DB.
func NewChallengeRepo(db *DB) *ChallengeRepo {
	return &ChallengeRepo{db: db}
}

// Insert stores a new challenge and returns its local id. A (name, category)
// collision within the competition surfaces as model.ErrDuplicateChallenge.
func (r *ChallengeRepo) Insert(ctx context.Context, ch model.Challenge) (int64, error) {
	const query = `
		INSERT INTO challenges (competition_id, remote_id, name, category, points, state)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		ch.CompetitionID, ch.RemoteID, ch.Name, ch.Category, ch.Points, string(ch.State))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert challenge %q: %w", ch.Name, model.ErrDuplicateChallenge)
		}
		return 0, fmt.Errorf("insert challenge %q: %w", ch.Name, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert challenge %q: last insert id: %w", ch.Name, err)
	}
	return id, nil
}

// GetByRemoteID retrieves a challenge by its platform-native id within a
// competition. Returns nil, nil if unknown.
func (r *ChallengeRepo) GetByRemoteID(ctx context.Context, competitionID, remoteID string) (*model.Challenge, error) {
	const query = `
		SELECT id, competition_id, remote_id, name, category, points, state, created_at, updated_at
		FROM challenges
		WHERE competition_id = ? AND remote_id = ?
	`

	ch, err := scanChallenge(r.db.Reader.QueryRowContext(ctx, query, competitionID, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge %s/%s: %w", competitionID, remoteID, err)
	}
	return ch, nil
}

// GetByNameCategory retrieves a challenge by its name+category pair within a
// competition. Returns nil, nil if unknown.
func (r *ChallengeRepo) GetByNameCategory(ctx context.Context, competitionID, name, category string) (*model.Challenge, error) {
	const query = `
		SELECT id, competition_id, remote_id, name, category, points, state, created_at, updated_at
		FROM challenges
		WHERE competition_id = ? AND name = ? AND category = ?
	`

	ch, err := scanChallenge(r.db.Reader.QueryRowContext(ctx, query, competitionID, name, category))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge %s %s/%s: %w", competitionID, category, name, err)
	}
	return ch, nil
}

// ListByCompetition returns all challenges of a competition ordered by
// category then name.
func (r *ChallengeRepo) ListByCompetition(ctx context.Context, competitionID string) ([]model.Challenge, error) {
	const query = `
		SELECT id, competition_id, remote_id, name, category, points, state, created_at, updated_at
		FROM challenges
		WHERE competition_id = ?
		ORDER BY category, name
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, competitionID)
	if err != nil {
		return nil, fmt.Errorf("list challenges for %q: %w", competitionID, err)
	}
	defer rows.Close()

	var challenges []model.Challenge
	for rows.Next() {
		ch, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan challenge: %w", err)
		}
		challenges = append(challenges, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate challenges: %w", err)
	}

	return challenges, nil
}

// UpdateState transitions a challenge's solve state.
func (r *ChallengeRepo) UpdateState(ctx context.Context, id int64, state model.SolveState) error {
	const query = `UPDATE challenges SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, string(state), id)
	if err != nil {
		return fmt.Errorf("update challenge %d state: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update challenge %d state: %w", id, model.ErrChallengeNotFound)
	}
	return nil
}

// Rename updates a challenge's name and category. A collision with another
// challenge in the same competition surfaces as model.ErrDuplicateChallenge.
func (r *ChallengeRepo) Rename(ctx context.Context, id int64, name, category string) error {
	const query = `UPDATE challenges SET name = ?, category = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, name, category, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("rename challenge %d: %w", id, model.ErrDuplicateChallenge)
		}
		return fmt.Errorf("rename challenge %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rename challenge %d: %w", id, model.ErrChallengeNotFound)
	}
	return nil
}

func scanChallenge(row rowScanner) (*model.Challenge, error) {
	var ch model.Challenge
	var state string
	var createdAt, updatedAt string

	err := row.Scan(&ch.ID, &ch.CompetitionID, &ch.RemoteID, &ch.Name, &ch.Category,
		&ch.Points, &state, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	ch.State = model.SolveState(state)

	if ch.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if ch.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &ch, nil
}
