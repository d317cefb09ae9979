package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// SubmitResult is the structured outcome of a flag submission. Reconciled is
// the reconciliation notice: it is set when the platform reported the
// challenge as already solved while local state said unsolved, and the
// ledger was corrected to match.
type SubmitResult struct {
	Status     model.SubmissionStatus
	Message    string
	Reconciled bool
	Record     *model.SolverRecord
}

// Coordinator serializes concurrent flag submissions per challenge and
// reconciles every outcome into the ledger. Submissions reach the platform
// at most once per attempt: a transport failure or timeout surfaces to the
// caller without retry, since the platform-side effect is unknown.
type Coordinator struct {
	registry *Registry
	ledger   *Ledger
	slots    *SlotTable
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator with all required dependencies. The
// slot table must be the same one the registry drains on delete.
func NewCoordinator(registry *Registry, ledger *Ledger, slots *SlotTable, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		ledger:   ledger,
		slots:    slots,
		logger:   logger,
	}
}

// Submit attempts a flag for a challenge on behalf of actor. Exactly one
// submission per challenge is in flight at a time; a concurrent attempt
// fails immediately with model.ErrSubmissionInProgress. When the ledger
// already shows the challenge solved, Submit fails with
// model.ErrAlreadySolved without contacting the platform.
func (c *Coordinator) Submit(ctx context.Context, competitionID, challengeID, flag, actor string, supportActors []string) (*SubmitResult, error) {
	release, err := c.slots.Acquire(competitionID, challengeID)
	if err != nil {
		return nil, err
	}
	defer release()

	ch, err := c.ledger.Get(ctx, competitionID, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.Solved() {
		return nil, fmt.Errorf("challenge %q: %w", ch.Name, model.ErrAlreadySolved)
	}

	var verdict model.FlagResult
	err = c.registry.WithClient(ctx, competitionID, func(client driven.PlatformClient, session *driven.Session) error {
		var submitErr error
		verdict, submitErr = client.SubmitFlag(ctx, session, challengeID, flag)
		return submitErr
	})
	if err != nil {
		return nil, fmt.Errorf("submit to challenge %s/%s: %w", competitionID, challengeID, err)
	}

	result := &SubmitResult{Status: verdict.Status, Message: verdict.Message}

	switch verdict.Status {
	case model.SubmissionCorrect:
		rec, err := c.ledger.MarkSolved(ctx, competitionID, challengeID, actor, supportActors)
		if errors.Is(err, model.ErrAlreadySolved) {
			// A concurrent pull reconciled the solve between our platform
			// call and now; the platform verdict stands.
			c.logger.Warn("solve already recorded by concurrent pull",
				"competition", competitionID, "challenge", challengeID)
		} else if err != nil {
			return nil, err
		} else {
			result.Record = rec
		}

	case model.SubmissionIncorrect:
		// No mutation; the failure is reported in-band.

	case model.SubmissionAlreadySolved:
		rec, err := c.ledger.ReconcilePlatformSolve(ctx, competitionID, challengeID)
		if err != nil {
			return nil, err
		}
		result.Reconciled = true
		result.Record = rec
		c.logger.Info("local state reconciled with platform solve",
			"competition", competitionID, "challenge", challengeID)

	case model.SubmissionRateLimited:
		return nil, fmt.Errorf("challenge %s/%s: %w", competitionID, challengeID, model.ErrRateLimited)
	}

	c.logger.Info("flag submitted",
		"competition", competitionID,
		"challenge", challengeID,
		"actor", actor,
		"status", string(verdict.Status),
	)
	return result, nil
}
