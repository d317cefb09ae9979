// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/squadctf/ctfsync/internal/domain/model"
)

const drainPollInterval = 25 * time.Millisecond

type slotKey struct {
	competitionID string
	challengeID   string
}

type slot struct {
	acquiredAt time.Time
}

// SlotTable is the in-process keyed mutex serializing per-challenge
// submissions. A slot exists only while held; entries are removed on release,
// so idle challenges carry no state. A slot held past the configured timeout
// is treated as leaked by a crashed attempt: the next acquirer force-releases
// it, and the anomaly is logged.
type SlotTable struct {
	mu      sync.Mutex
	held    map[slotKey]*slot
	blocked map[string]struct{}
	timeout time.Duration
	logger  *slog.Logger
}

// NewSlotTable creates a SlotTable with the given force-release timeout.
func NewSlotTable(timeout time.Duration, logger *slog.Logger) *SlotTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlotTable{
		held:    make(map[slotKey]*slot),
		blocked: make(map[string]struct{}),
		timeout: timeout,
		logger:  logger,
	}
}

// Acquire takes the submission slot for a challenge. If the slot is already
// held, it fails immediately with model.ErrSubmissionInProgress; there is no
// queuing, since a second concurrent attempt is a user error. The returned
// release function must be called on every exit path; it is safe to call
// after a force-release has reassigned the slot.
func (t *SlotTable) Acquire(competitionID, challengeID string) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.blocked[competitionID]; ok {
		return nil, fmt.Errorf("competition %s blocked for deletion: %w", competitionID, model.ErrSubmissionInProgress)
	}

	key := slotKey{competitionID: competitionID, challengeID: challengeID}

	if current, ok := t.held[key]; ok {
		heldFor := time.Since(current.acquiredAt)
		if heldFor <= t.timeout {
			return nil, fmt.Errorf("challenge %s/%s: %w", competitionID, challengeID, model.ErrSubmissionInProgress)
		}
		t.logger.Error("submission slot held past timeout, force releasing",
			"competition", competitionID,
			"challenge", challengeID,
			"held_for", heldFor.Round(time.Millisecond),
		)
	}

	s := &slot{acquiredAt: time.Now()}
	t.held[key] = s

	release := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		// Only delete our own acquisition: a force-release may have handed
		// the slot to a newer attempt.
		if t.held[key] == s {
			delete(t.held, key)
		}
	}
	return release, nil
}

// Drain blocks until no slot for the competition is held, the per-slot
// timeout elapses, or the context is canceled. On timeout the remaining
// slots are force-released so lifecycle transitions can proceed.
func (t *SlotTable) Drain(ctx context.Context, competitionID string) error {
	deadline := time.Now().Add(t.timeout)

	for {
		if !t.anyHeld(competitionID) {
			return nil
		}
		if time.Now().After(deadline) {
			forced := t.forceReleaseAll(competitionID)
			t.logger.Error("drain timed out, force released in-flight slots",
				"competition", competitionID,
				"slots", forced,
			)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(drainPollInterval):
		}
	}
}

// Block makes every Acquire for the competition fail until Unblock. Used
// around deletion so a fresh submission cannot slip in between the drain and
// the cascade.
func (t *SlotTable) Block(competitionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked[competitionID] = struct{}{}
}

// Unblock lifts a Block.
func (t *SlotTable) Unblock(competitionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.blocked, competitionID)
}

func (t *SlotTable) anyHeld(competitionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key := range t.held {
		if key.competitionID == competitionID {
			return true
		}
	}
	return false
}

func (t *SlotTable) forceReleaseAll(competitionID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var n int
	for key := range t.held {
		if key.competitionID == competitionID {
			delete(t.held, key)
			n++
		}
	}
	return n
}
