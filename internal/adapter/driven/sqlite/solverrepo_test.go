package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadctf/ctfsync/internal/domain/model"
)

func addTestChallenge(t *testing.T, db *DB, competitionID, remoteID string) int64 {
	t.Helper()
	repo := NewChallengeRepo(db)
	id, err := repo.Insert(context.Background(), makeChallenge(competitionID, remoteID, "chal-"+remoteID, "misc"))
	require.NoError(t, err)
	return id
}

func TestSolverRepo_InsertAndGetActive(t *testing.T) {
	db := setupTestDB(t)
	addTestCompetition(t, db, "comp-1", "ExampleCTF 2026")
	chalID := addTestChallenge(t, db, "comp-1", "1")
	repo := NewSolverRepo(db)
	ctx := context.Background()

	solvedAt := time.Date(2026, 9, 6, 14, 30, 0, 0, time.UTC)
	id, err := repo.Insert(ctx, model.SolverRecord{
		ChallengeID:    chalID,
		PrimarySolver:  "alice",
		SupportSolvers: []string{"bob", "carol"},
		SolvedAt:       solvedAt,
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := repo.GetActive(ctx, chalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.PrimarySolver)
	assert.Equal(t, []string{"bob", "carol"}, got.SupportSolvers)
	assert.False(t, got.Superseded)
	assert.Equal(t, solvedAt, got.SolvedAt.UTC())
}

func TestSolverRepo_GetActive_None(t *testing.T) {
	db := setupTestDB(t)
	addTestCompetition(t, db, "comp-1", "ExampleCTF 2026")
	chalID := addTestChallenge(t, db, "comp-1", "1")
	repo := NewSolverRepo(db)

	got, err := repo.GetActive(context.Background(), chalID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSolverRepo_Insert_EmptySupport(t *testing.T) {
	db := setupTestDB(t)
	addTestCompetition(t, db, "comp-1", "ExampleCTF 2026")
	chalID := addTestChallenge(t, db, "comp-1", "1")
	repo := NewSolverRepo(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, model.SolverRecord{
		ChallengeID:   chalID,
		PrimarySolver: "alice",
		SolvedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err := repo.GetActive(ctx, chalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.SupportSolvers)
}

func TestSolverRepo_Supersede(t *testing.T) {
	db := setupTestDB(t)
	addTestCompetition(t, db, "comp-1", "ExampleCTF 2026")
	chalID := addTestChallenge(t, db, "comp-1", "1")
	repo := NewSolverRepo(db)
	ctx := context.Background()

	_, err := repo.Insert(ctx, model.SolverRecord{
		ChallengeID:   chalID,
		PrimarySolver: "alice",
		SolvedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	require.NoError(t, repo.Supersede(ctx, chalID))

	got, err := repo.GetActive(ctx, chalID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A fresh record after supersede becomes the new active one.
	_, err = repo.Insert(ctx, model.SolverRecord{
		ChallengeID:   chalID,
		PrimarySolver: "bob",
		SolvedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err = repo.GetActive(ctx, chalID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bob", got.PrimarySolver)
}
