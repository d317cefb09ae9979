package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// ClientFactory constructs a platform backend for a competition. Injected so
// tests can substitute fakes for the HTTP backends.
type ClientFactory func(kind model.PlatformKind, baseURL string) (driven.PlatformClient, error)

// binding pairs a constructed backend with its authenticated session.
type binding struct {
	client  driven.PlatformClient
	session *driven.Session
}

// Registry is the catalogue of active and archived competitions. It owns
// each competition's credential and cached platform session exclusively; no
// other component holds a session directly. The registry is constructed
// explicitly and passed by reference, with Close as the documented teardown.
type Registry struct {
	comps   driven.CompetitionStore
	creds   driven.CredentialStore
	factory ClientFactory
	slots   *SlotTable
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*binding
}

// NewRegistry creates a Registry with all required dependencies.
func NewRegistry(
	comps driven.CompetitionStore,
	creds driven.CredentialStore,
	factory ClientFactory,
	slots *SlotTable,
	logger *slog.Logger,
) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		comps:    comps,
		creds:    creds,
		factory:  factory,
		slots:    slots,
		logger:   logger,
		sessions: make(map[string]*binding),
	}
}

// Create registers a new active competition bound to one platform backend
// and one credential. Fails with model.ErrDuplicateCompetition when an
// active competition with the same name exists.
func (r *Registry) Create(ctx context.Context, name string, kind model.PlatformKind, baseURL, username, secret string) (*model.Competition, error) {
	existing, err := r.comps.GetActiveByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("competition %q: %w", name, model.ErrDuplicateCompetition)
	}

	comp := model.Competition{
		ID:       uuid.NewString(),
		Name:     name,
		Platform: kind,
		BaseURL:  baseURL,
		State:    model.CompetitionActive,
	}
	if err := r.comps.Insert(ctx, comp); err != nil {
		return nil, err
	}

	cred := model.Credential{CompetitionID: comp.ID, Username: username, Secret: secret}
	if err := r.creds.Set(ctx, cred); err != nil {
		// Remove the just-inserted row so the name is free for a retry;
		// a competition without its credential is unusable anyway.
		if delErr := r.comps.DeleteCascade(ctx, comp.ID); delErr != nil {
			r.logger.Error("roll back competition after credential store failure",
				"competition", comp.ID, "error", delErr)
		}
		return nil, fmt.Errorf("store credential for competition %q: %w", name, err)
	}

	r.logger.Info("competition created",
		"competition", comp.ID,
		"name", name,
		"platform", string(kind),
	)
	return &comp, nil
}

// CreatePlanned registers a planned competition with no platform bound yet.
// Used by the calendar ingestor, which discovers events before credentials
// exist.
func (r *Registry) CreatePlanned(ctx context.Context, name string, startsAt, endsAt time.Time) (*model.Competition, error) {
	comp := model.Competition{
		ID:       uuid.NewString(),
		Name:     name,
		State:    model.CompetitionPlanned,
		StartsAt: startsAt,
		EndsAt:   endsAt,
	}
	if err := r.comps.Insert(ctx, comp); err != nil {
		return nil, err
	}

	r.logger.Info("planned competition created", "competition", comp.ID, "name", name)
	return &comp, nil
}

// Get retrieves a competition by id, failing with
// model.ErrCompetitionNotFound when unknown.
func (r *Registry) Get(ctx context.Context, id string) (*model.Competition, error) {
	comp, err := r.comps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if comp == nil {
		return nil, fmt.Errorf("competition %q: %w", id, model.ErrCompetitionNotFound)
	}
	return comp, nil
}

// List returns all competitions.
func (r *Registry) List(ctx context.Context) ([]model.Competition, error) {
	return r.comps.ListAll(ctx)
}

// WithClient runs fn with the competition's platform client and cached
// session, authenticating lazily on first use. When fn surfaces
// model.ErrAuth the session is invalidated, re-authenticated, and fn is
// retried exactly once; an auth rejection means the platform refused the
// call before acting on it, so the retry cannot double-apply a side effect.
func (r *Registry) WithClient(ctx context.Context, competitionID string, fn func(driven.PlatformClient, *driven.Session) error) error {
	b, err := r.bind(ctx, competitionID)
	if err != nil {
		return err
	}

	err = fn(b.client, b.session)
	if !errors.Is(err, model.ErrAuth) {
		return err
	}

	r.logger.Warn("cached session rejected, re-authenticating",
		"competition", competitionID, "error", err)
	r.Invalidate(competitionID)

	b, bindErr := r.bind(ctx, competitionID)
	if bindErr != nil {
		return bindErr
	}
	return fn(b.client, b.session)
}

// Invalidate drops the cached session for a competition. The next WithClient
// call re-authenticates.
func (r *Registry) Invalidate(competitionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, competitionID)
}

// Archive transitions the competition to archived. Data is retained; the
// cached session is dropped.
func (r *Registry) Archive(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	if err := r.comps.UpdateState(ctx, id, model.CompetitionArchived); err != nil {
		return err
	}
	r.Invalidate(id)

	r.logger.Info("competition archived", "competition", id)
	return nil
}

// Delete removes the competition and cascades removal of its challenges,
// solver records, and credential. In-flight submission slots drain first so
// the credential is never destroyed mid-call.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}

	// Block first so no submission can start between the drain and the
	// cascade. Unblocking afterwards is safe: the rows are gone, so a late
	// attempt fails challenge lookup.
	r.slots.Block(id)
	defer r.slots.Unblock(id)

	if err := r.slots.Drain(ctx, id); err != nil {
		return fmt.Errorf("drain submissions for competition %q: %w", id, err)
	}

	if err := r.comps.DeleteCascade(ctx, id); err != nil {
		return err
	}
	r.Invalidate(id)

	r.logger.Info("competition deleted", "competition", id)
	return nil
}

// Close drops all cached sessions. Persistent state is untouched.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*binding)
}

// bind returns the cached client+session for a competition, constructing and
// authenticating on first use.
func (r *Registry) bind(ctx context.Context, competitionID string) (*binding, error) {
	r.mu.Lock()
	if b, ok := r.sessions[competitionID]; ok {
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	comp, err := r.Get(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if !comp.HasPlatform() {
		return nil, fmt.Errorf("competition %q: %w", competitionID, model.ErrNoPlatform)
	}

	cred, err := r.creds.Get(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: no credential stored for competition %q", model.ErrAuth, competitionID)
	}

	client, err := r.factory(comp.Platform, comp.BaseURL)
	if err != nil {
		return nil, err
	}

	session, err := client.Authenticate(ctx, *cred)
	if err != nil {
		return nil, err
	}

	b := &binding{client: client, session: session}

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent bind may have won; keep the first session to avoid two
	// live logins for one competition.
	if existing, ok := r.sessions[competitionID]; ok {
		return existing, nil
	}
	r.sessions[competitionID] = b
	return b, nil
}
