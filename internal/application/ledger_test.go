package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadctf/ctfsync/internal/domain/model"
)

func remoteListing(challenges ...model.RemoteChallenge) func() ([]model.RemoteChallenge, error) {
	return func() ([]model.RemoteChallenge, error) {
		return challenges, nil
	}
}

func TestLedger_Pull_DiscoversNewChallenges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
		model.RemoteChallenge{ID: "2", Name: "rev1", Category: "rev", Points: 250},
	)

	discovered, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)
	assert.Len(t, discovered, 2)

	stored, err := env.ledger.List(ctx, comp.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, ch := range stored {
		assert.Equal(t, model.SolveStateUnsolved, ch.State)
	}
}

func TestLedger_Pull_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
	)

	first, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)
	assert.Empty(t, second, "unchanged remote state must produce no discoveries")

	stored, err := env.ledger.List(ctx, comp.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestLedger_Pull_ReconcilesPlatformSolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100, SolvedByTeam: true},
	)

	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	ch, err := env.ledger.Get(ctx, comp.ID, "1")
	require.NoError(t, err)
	assert.True(t, ch.Solved())

	rec, err := env.ledger.Solvers(ctx, comp.ID, "1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, model.PlatformSolver, rec.PrimarySolver)
}

func TestLedger_Pull_KeepsLocalAttribution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
	)
	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	_, err = env.ledger.MarkSolved(ctx, comp.ID, "1", "alice", nil)
	require.NoError(t, err)

	// The platform also reports the solve now; the local record must not be
	// replaced by a synthetic one.
	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100, SolvedByTeam: true},
	)
	_, err = env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	rec, err := env.ledger.Solvers(ctx, comp.ID, "1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "alice", rec.PrimarySolver)
}

func TestLedger_Pull_NeverUnsolves(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
	)
	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	_, err = env.ledger.MarkSolved(ctx, comp.ID, "1", "alice", nil)
	require.NoError(t, err)

	// Remote still reports unsolved (its listing lags); local solved state
	// must survive the pull.
	_, err = env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	ch, err := env.ledger.Get(ctx, comp.ID, "1")
	require.NoError(t, err)
	assert.True(t, ch.Solved())
}

func TestLedger_Pull_AbsentChallengesRetained(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
		model.RemoteChallenge{ID: "2", Name: "rev1", Category: "rev", Points: 250},
	)
	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	// A partial listing must not be read as challenge removal.
	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
	)
	_, err = env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	stored, err := env.ledger.List(ctx, comp.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestLedger_MarkSolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
	)
	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	rec, err := env.ledger.MarkSolved(ctx, comp.ID, "1", "alice", []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.PrimarySolver)
	assert.Equal(t, []string{"bob"}, rec.SupportSolvers)

	// Solving a solved challenge is rejected until an explicit unsolve.
	_, err = env.ledger.MarkSolved(ctx, comp.ID, "1", "carol", nil)
	require.ErrorIs(t, err, model.ErrAlreadySolved)
}

func TestLedger_SolveUnsolveSolveCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
	)
	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	_, err = env.ledger.MarkSolved(ctx, comp.ID, "1", "alice", nil)
	require.NoError(t, err)
	require.NoError(t, env.ledger.MarkUnsolved(ctx, comp.ID, "1"))

	ch, err := env.ledger.Get(ctx, comp.ID, "1")
	require.NoError(t, err)
	assert.False(t, ch.Solved())

	rec, err := env.ledger.MarkSolved(ctx, comp.ID, "1", "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.PrimarySolver)

	// Both records survive; only the newest is active.
	records := env.solvers.all()
	require.Len(t, records, 2)
	assert.True(t, records[0].Superseded)
	assert.False(t, records[1].Superseded)
}

func TestLedger_MarkUnsolved_NotSolved(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
	)
	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	err = env.ledger.MarkUnsolved(ctx, comp.ID, "1")
	require.ErrorIs(t, err, model.ErrNotSolved)
}

func TestLedger_Rename(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	comp := env.createCompetition(t, "ExampleCTF 2026")

	env.platform.listFn = remoteListing(
		model.RemoteChallenge{ID: "1", Name: "warmup", Category: "misc", Points: 100},
		model.RemoteChallenge{ID: "2", Name: "rev1", Category: "rev", Points: 250},
	)
	_, err := env.ledger.Pull(ctx, comp.ID)
	require.NoError(t, err)

	require.NoError(t, env.ledger.Rename(ctx, comp.ID, "1", "warmup v2", "misc"))

	ch, err := env.ledger.Get(ctx, comp.ID, "1")
	require.NoError(t, err)
	assert.Equal(t, "warmup v2", ch.Name)

	// Renaming onto another challenge's pair is rejected.
	err = env.ledger.Rename(ctx, comp.ID, "1", "rev1", "rev")
	require.ErrorIs(t, err, model.ErrDuplicateChallenge)

	// Renaming a challenge onto its own current pair is a no-op, not a
	// collision.
	require.NoError(t, env.ledger.Rename(ctx, comp.ID, "1", "warmup v2", "misc"))
}

func TestLedger_Get_NotFound(t *testing.T) {
	env := newTestEnv(t)
	comp := env.createCompetition(t, "ExampleCTF 2026")

	_, err := env.ledger.Get(context.Background(), comp.ID, "missing")
	require.ErrorIs(t, err, model.ErrChallengeNotFound)
}
