package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SolverStore = (*SolverRepo)(nil)

// SolverRepo is the SQLite implementation of the SolverStore port. Support
// solvers are serialized as a JSON array in the TEXT column.
type SolverRepo struct {
	db *DB
}

// NewSolverRepo creates a SolverRepo backed by the given DB.
func NewSolverRepo(db *DB) *SolverRepo {
	return &SolverRepo{db: db}
}

// Insert stores a new solver record and returns its id.
func (r *SolverRepo) Insert(ctx context.Context, rec model.SolverRecord) (int64, error) {
	support := rec.SupportSolvers
	if support == nil {
		support = []string{}
	}
	supportJSON, err := json.Marshal(support)
	if err != nil {
		return 0, fmt.Errorf("marshal support solvers: %w", err)
	}

	const query = `
		INSERT INTO solver_records (challenge_id, primary_solver, support_solvers, superseded, solved_at)
		VALUES (?, ?, ?, 0, ?)
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		rec.ChallengeID, rec.PrimarySolver, string(supportJSON), rec.SolvedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert solver record for challenge %d: %w", rec.ChallengeID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert solver record: last insert id: %w", err)
	}
	return id, nil
}

// GetActive retrieves the non-superseded record for a challenge. Returns
// nil, nil if none exists.
func (r *SolverRepo) GetActive(ctx context.Context, challengeID int64) (*model.SolverRecord, error) {
	const query = `
		SELECT id, challenge_id, primary_solver, support_solvers, superseded, solved_at
		FROM solver_records
		WHERE challenge_id = ? AND superseded = 0
		ORDER BY id DESC
		LIMIT 1
	`

	rec, err := scanSolverRecord(r.db.Reader.QueryRowContext(ctx, query, challengeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active solver record for challenge %d: %w", challengeID, err)
	}
	return rec, nil
}

// Supersede marks every active record for the challenge as superseded. The
// records themselves are retained for audit.
func (r *SolverRepo) Supersede(ctx context.Context, challengeID int64) error {
	const query = `UPDATE solver_records SET superseded = 1 WHERE challenge_id = ? AND superseded = 0`

	if _, err := r.db.Writer.ExecContext(ctx, query, challengeID); err != nil {
		return fmt.Errorf("supersede solver records for challenge %d: %w", challengeID, err)
	}
	return nil
}

func scanSolverRecord(row rowScanner) (*model.SolverRecord, error) {
	var rec model.SolverRecord
	var supportJSON string
	var superseded int
	var solvedAt string

	err := row.Scan(&rec.ID, &rec.ChallengeID, &rec.PrimarySolver, &supportJSON, &superseded, &solvedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(supportJSON), &rec.SupportSolvers); err != nil {
		return nil, fmt.Errorf("unmarshal support solvers: %w", err)
	}
	rec.Superseded = superseded != 0

	if rec.SolvedAt, err = parseTime(solvedAt); err != nil {
		return nil, fmt.Errorf("parse solved_at: %w", err)
	}

	return &rec, nil
}
