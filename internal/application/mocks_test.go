package application_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- In-memory store fakes ---

type memCompetitionStore struct {
	mu    sync.Mutex
	comps map[string]model.Competition
}

func newMemCompetitionStore() *memCompetitionStore {
	return &memCompetitionStore{comps: make(map[string]model.Competition)}
}

func (m *memCompetitionStore) Insert(_ context.Context, comp model.Competition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comp.CreatedAt = time.Now().UTC()
	comp.UpdatedAt = comp.CreatedAt
	m.comps[comp.ID] = comp
	return nil
}

func (m *memCompetitionStore) GetByID(_ context.Context, id string) (*model.Competition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	comp, ok := m.comps[id]
	if !ok {
		return nil, nil
	}
	return &comp, nil
}

func (m *memCompetitionStore) GetActiveByName(_ context.Context, name string) (*model.Competition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, comp := range m.comps {
		if comp.Name == name && comp.State == model.CompetitionActive {
			c := comp
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memCompetitionStore) ListAll(_ context.Context) ([]model.Competition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	comps := make([]model.Competition, 0, len(m.comps))
	for _, comp := range m.comps {
		comps = append(comps, comp)
	}
	return comps, nil
}

func (m *memCompetitionStore) UpdateState(_ context.Context, id string, state model.CompetitionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	comp, ok := m.comps[id]
	if !ok {
		return fmt.Errorf("competition %q: %w", id, model.ErrCompetitionNotFound)
	}
	comp.State = state
	m.comps[id] = comp
	return nil
}

func (m *memCompetitionStore) DeleteCascade(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.comps[id]; !ok {
		return fmt.Errorf("competition %q: %w", id, model.ErrCompetitionNotFound)
	}
	delete(m.comps, id)
	return nil
}

type memChallengeStore struct {
	mu         sync.Mutex
	nextID     int64
	challenges map[int64]model.Challenge
}

func newMemChallengeStore() *memChallengeStore {
	return &memChallengeStore{challenges: make(map[int64]model.Challenge)}
}

func (m *memChallengeStore) Insert(_ context.Context, ch model.Challenge) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.challenges {
		if existing.CompetitionID != ch.CompetitionID {
			continue
		}
		if existing.RemoteID == ch.RemoteID ||
			(existing.Name == ch.Name && existing.Category == ch.Category) {
			return 0, fmt.Errorf("insert challenge %q: %w", ch.Name, model.ErrDuplicateChallenge)
		}
	}
	m.nextID++
	ch.ID = m.nextID
	m.challenges[ch.ID] = ch
	return ch.ID, nil
}

func (m *memChallengeStore) GetByRemoteID(_ context.Context, competitionID, remoteID string) (*model.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.challenges {
		if ch.CompetitionID == competitionID && ch.RemoteID == remoteID {
			c := ch
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memChallengeStore) GetByNameCategory(_ context.Context, competitionID, name, category string) (*model.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.challenges {
		if ch.CompetitionID == competitionID && ch.Name == name && ch.Category == category {
			c := ch
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memChallengeStore) ListByCompetition(_ context.Context, competitionID string) ([]model.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var challenges []model.Challenge
	for _, ch := range m.challenges {
		if ch.CompetitionID == competitionID {
			challenges = append(challenges, ch)
		}
	}
	return challenges, nil
}

func (m *memChallengeStore) UpdateState(_ context.Context, id int64, state model.SolveState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[id]
	if !ok {
		return fmt.Errorf("challenge %d: %w", id, model.ErrChallengeNotFound)
	}
	ch.State = state
	m.challenges[id] = ch
	return nil
}

func (m *memChallengeStore) Rename(_ context.Context, id int64, name, category string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[id]
	if !ok {
		return fmt.Errorf("challenge %d: %w", id, model.ErrChallengeNotFound)
	}
	ch.Name = name
	ch.Category = category
	m.challenges[id] = ch
	return nil
}

type memSolverStore struct {
	mu      sync.Mutex
	nextID  int64
	records []model.SolverRecord
}

func newMemSolverStore() *memSolverStore {
	return &memSolverStore{}
}

func (m *memSolverStore) Insert(_ context.Context, rec model.SolverRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, rec)
	return rec.ID, nil
}

func (m *memSolverStore) GetActive(_ context.Context, challengeID int64) (*model.SolverRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].ChallengeID == challengeID && !m.records[i].Superseded {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *memSolverStore) Supersede(_ context.Context, challengeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ChallengeID == challengeID {
			m.records[i].Superseded = true
		}
	}
	return nil
}

func (m *memSolverStore) all() []model.SolverRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SolverRecord(nil), m.records...)
}

type memCredentialStore struct {
	mu     sync.Mutex
	creds  map[string]model.Credential
	setErr error
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{creds: make(map[string]model.Credential)}
}

func (m *memCredentialStore) Set(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.creds[cred.CompetitionID] = cred
	return nil
}

func (m *memCredentialStore) Get(_ context.Context, competitionID string) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[competitionID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (m *memCredentialStore) Delete(_ context.Context, competitionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, competitionID)
	return nil
}

type memCalendarStore struct {
	mu      sync.Mutex
	entries map[string]model.CalendarEntry
}

func newMemCalendarStore() *memCalendarStore {
	return &memCalendarStore{entries: make(map[string]model.CalendarEntry)}
}

func (m *memCalendarStore) Upsert(_ context.Context, entry model.CalendarEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[entry.ExternalID]; ok {
		entry.CompetitionID = existing.CompetitionID
	}
	m.entries[entry.ExternalID] = entry
	return nil
}

func (m *memCalendarStore) Get(_ context.Context, externalID string) (*model.CalendarEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[externalID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (m *memCalendarStore) Materialize(_ context.Context, externalID, competitionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[externalID]
	if !ok || entry.CompetitionID != "" {
		return false, nil
	}
	entry.CompetitionID = competitionID
	m.entries[externalID] = entry
	return true, nil
}

// --- Platform client fake ---

// fakePlatform is a scriptable PlatformClient. Call counts are tracked so
// tests can assert the at-most-once submission property.
type fakePlatform struct {
	mu          sync.Mutex
	authCalls   int
	listCalls   int
	submitCalls int

	authFn   func(cred model.Credential) (*driven.Session, error)
	listFn   func() ([]model.RemoteChallenge, error)
	submitFn func(challengeID, flag string) (model.FlagResult, error)
	scoreFn  func(limit int) ([]model.ScoreboardRow, error)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		authFn: func(model.Credential) (*driven.Session, error) {
			return &driven.Session{Token: "test-token"}, nil
		},
	}
}

func (f *fakePlatform) Authenticate(_ context.Context, cred model.Credential) (*driven.Session, error) {
	f.mu.Lock()
	f.authCalls++
	fn := f.authFn
	f.mu.Unlock()
	return fn(cred)
}

func (f *fakePlatform) ListChallenges(_ context.Context, _ *driven.Session) ([]model.RemoteChallenge, error) {
	f.mu.Lock()
	f.listCalls++
	fn := f.listFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn()
}

func (f *fakePlatform) SubmitFlag(_ context.Context, _ *driven.Session, challengeID, flag string) (model.FlagResult, error) {
	f.mu.Lock()
	f.submitCalls++
	fn := f.submitFn
	f.mu.Unlock()
	if fn == nil {
		return model.FlagResult{Status: model.SubmissionIncorrect}, nil
	}
	return fn(challengeID, flag)
}

func (f *fakePlatform) FetchScoreboard(_ context.Context, _ *driven.Session, limit int) ([]model.ScoreboardRow, error) {
	if f.scoreFn == nil {
		return nil, nil
	}
	return f.scoreFn(limit)
}

func (f *fakePlatform) RegisterTeam(_ context.Context, reg model.Registration) (*model.TeamAccount, error) {
	return &model.TeamAccount{Name: reg.TeamName}, nil
}

func (f *fakePlatform) submitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakePlatform) authenticated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.authCalls
}
