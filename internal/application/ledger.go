package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Ledger keeps the per-competition challenge set consistent with the remote
// platform. All local mutations for one competition run under that
// competition's lock, so there is a single writer at a time; the network
// half of Pull runs outside the lock.
type Ledger struct {
	registry   *Registry
	challenges driven.ChallengeStore
	solvers    driven.SolverStore
	logger     *slog.Logger

	mu        sync.Mutex
	compLocks map[string]*sync.Mutex
}

// NewLedger creates a Ledger with all required dependencies.
func NewLedger(registry *Registry, challenges driven.ChallengeStore, solvers driven.SolverStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		registry:   registry,
		challenges: challenges,
		solvers:    solvers,
		logger:     logger,
		compLocks:  make(map[string]*sync.Mutex),
	}
}

// Pull refreshes local challenge state from the bound platform and returns
// the newly discovered challenges. New remote challenges are inserted as
// unsolved; challenges the platform reports solved-by-team are reconciled to
// solved with a synthetic solver record when no local record exists.
// Challenges absent from the remote listing are left untouched: the listing
// may be partial, so removal is never inferred from absence. The diff only
// ever moves challenges toward solved, which makes a Pull racing a
// just-accepted submission benign. A second Pull with unchanged remote state
// produces no mutation.
func (l *Ledger) Pull(ctx context.Context, competitionID string) ([]model.Challenge, error) {
	var remote []model.RemoteChallenge
	err := l.registry.WithClient(ctx, competitionID, func(client driven.PlatformClient, session *driven.Session) error {
		var listErr error
		remote, listErr = client.ListChallenges(ctx, session)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("pull competition %q: %w", competitionID, err)
	}

	unlock := l.lockCompetition(competitionID)
	defer unlock()

	stored, err := l.challenges.ListByCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	storedByRemoteID := make(map[string]model.Challenge, len(stored))
	for _, ch := range stored {
		storedByRemoteID[ch.RemoteID] = ch
	}

	var discovered []model.Challenge
	var reconciled int

	for _, rc := range remote {
		existing, known := storedByRemoteID[rc.ID]
		if !known {
			ch := model.Challenge{
				CompetitionID: competitionID,
				RemoteID:      rc.ID,
				Name:          rc.Name,
				Category:      rc.Category,
				Points:        rc.Points,
				State:         model.SolveStateUnsolved,
			}
			id, err := l.challenges.Insert(ctx, ch)
			if err != nil {
				l.logger.Error("insert discovered challenge failed",
					"competition", competitionID, "challenge", rc.ID, "error", err)
				continue
			}
			ch.ID = id
			discovered = append(discovered, ch)
			existing = ch
		}

		if rc.SolvedByTeam && existing.State == model.SolveStateUnsolved {
			if err := l.reconcileSolvedLocked(ctx, existing); err != nil {
				l.logger.Error("reconcile remote solve failed",
					"competition", competitionID, "challenge", rc.ID, "error", err)
				continue
			}
			reconciled++
		}
	}

	l.logger.Info("challenges pulled",
		"competition", competitionID,
		"remote", len(remote),
		"discovered", len(discovered),
		"reconciled", reconciled,
	)
	return discovered, nil
}

// MarkSolved transitions a challenge to solved and records the solve
// attribution. Fails with model.ErrAlreadySolved when the challenge is
// already solved; callers must unsolve first.
func (l *Ledger) MarkSolved(ctx context.Context, competitionID, remoteID, primarySolver string, supportSolvers []string) (*model.SolverRecord, error) {
	unlock := l.lockCompetition(competitionID)
	defer unlock()

	ch, err := l.getLocked(ctx, competitionID, remoteID)
	if err != nil {
		return nil, err
	}
	if ch.Solved() {
		return nil, fmt.Errorf("challenge %q: %w", ch.Name, model.ErrAlreadySolved)
	}

	if err := l.challenges.UpdateState(ctx, ch.ID, model.SolveStateSolved); err != nil {
		return nil, err
	}

	rec := model.SolverRecord{
		ChallengeID:    ch.ID,
		PrimarySolver:  primarySolver,
		SupportSolvers: supportSolvers,
		SolvedAt:       time.Now().UTC(),
	}
	rec.ID, err = l.solvers.Insert(ctx, rec)
	if err != nil {
		return nil, err
	}

	l.logger.Info("challenge marked solved",
		"competition", competitionID,
		"challenge", remoteID,
		"solver", primarySolver,
	)
	return &rec, nil
}

// MarkUnsolved transitions a challenge back to unsolved. The prior solver
// record is superseded, not deleted, so the audit trail survives. Fails with
// model.ErrNotSolved when the challenge is not solved.
func (l *Ledger) MarkUnsolved(ctx context.Context, competitionID, remoteID string) error {
	unlock := l.lockCompetition(competitionID)
	defer unlock()

	ch, err := l.getLocked(ctx, competitionID, remoteID)
	if err != nil {
		return err
	}
	if !ch.Solved() {
		return fmt.Errorf("challenge %q: %w", ch.Name, model.ErrNotSolved)
	}

	if err := l.solvers.Supersede(ctx, ch.ID); err != nil {
		return err
	}
	if err := l.challenges.UpdateState(ctx, ch.ID, model.SolveStateUnsolved); err != nil {
		return err
	}

	l.logger.Info("challenge marked unsolved", "competition", competitionID, "challenge", remoteID)
	return nil
}

// Rename updates a challenge's name and category, failing with
// model.ErrDuplicateChallenge when the new pair collides with another
// challenge in the same competition.
func (l *Ledger) Rename(ctx context.Context, competitionID, remoteID, newName, newCategory string) error {
	unlock := l.lockCompetition(competitionID)
	defer unlock()

	ch, err := l.getLocked(ctx, competitionID, remoteID)
	if err != nil {
		return err
	}

	if other, err := l.challenges.GetByNameCategory(ctx, competitionID, newName, newCategory); err != nil {
		return err
	} else if other != nil && other.ID != ch.ID {
		return fmt.Errorf("rename to %s/%s: %w", newCategory, newName, model.ErrDuplicateChallenge)
	}

	return l.challenges.Rename(ctx, ch.ID, newName, newCategory)
}

// ReconcilePlatformSolve corrects local state to solved after the platform
// reported a flag as already solved. Returns the synthetic solver record,
// or nil when local state already agreed.
func (l *Ledger) ReconcilePlatformSolve(ctx context.Context, competitionID, remoteID string) (*model.SolverRecord, error) {
	unlock := l.lockCompetition(competitionID)
	defer unlock()

	ch, err := l.getLocked(ctx, competitionID, remoteID)
	if err != nil {
		return nil, err
	}
	if ch.Solved() {
		return nil, nil
	}

	if err := l.reconcileSolvedLocked(ctx, *ch); err != nil {
		return nil, err
	}
	return l.solvers.GetActive(ctx, ch.ID)
}

// Get retrieves one challenge by its platform-native id, failing with
// model.ErrChallengeNotFound when unknown.
func (l *Ledger) Get(ctx context.Context, competitionID, remoteID string) (*model.Challenge, error) {
	ch, err := l.challenges.GetByRemoteID(ctx, competitionID, remoteID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, fmt.Errorf("challenge %s/%s: %w", competitionID, remoteID, model.ErrChallengeNotFound)
	}
	return ch, nil
}

// List returns all challenges of a competition.
func (l *Ledger) List(ctx context.Context, competitionID string) ([]model.Challenge, error) {
	return l.challenges.ListByCompetition(ctx, competitionID)
}

// Solvers returns the active solver record for a challenge, or nil.
func (l *Ledger) Solvers(ctx context.Context, competitionID, remoteID string) (*model.SolverRecord, error) {
	ch, err := l.Get(ctx, competitionID, remoteID)
	if err != nil {
		return nil, err
	}
	return l.solvers.GetActive(ctx, ch.ID)
}

// reconcileSolvedLocked moves a challenge to solved with a synthetic solver
// record attributed to the platform. Caller holds the competition lock.
func (l *Ledger) reconcileSolvedLocked(ctx context.Context, ch model.Challenge) error {
	if err := l.challenges.UpdateState(ctx, ch.ID, model.SolveStateSolved); err != nil {
		return err
	}

	active, err := l.solvers.GetActive(ctx, ch.ID)
	if err != nil {
		return err
	}
	if active != nil {
		return nil
	}

	_, err = l.solvers.Insert(ctx, model.SolverRecord{
		ChallengeID:   ch.ID,
		PrimarySolver: model.PlatformSolver,
		SolvedAt:      time.Now().UTC(),
	})
	return err
}

// getLocked fetches a challenge while the competition lock is held.
func (l *Ledger) getLocked(ctx context.Context, competitionID, remoteID string) (*model.Challenge, error) {
	return l.Get(ctx, competitionID, remoteID)
}

// Forget drops the per-competition mutex after the competition is deleted.
// Taking the lock first ensures no in-flight mutation still holds it.
func (l *Ledger) Forget(competitionID string) {
	unlock := l.lockCompetition(competitionID)
	unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.compLocks, competitionID)
}

// lockCompetition takes the per-competition mutex, creating it lazily.
func (l *Ledger) lockCompetition(competitionID string) func() {
	l.mu.Lock()
	lock, ok := l.compLocks[competitionID]
	if !ok {
		lock = &sync.Mutex{}
		l.compLocks[competitionID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
