// Package httphandler is the HTTP driving adapter serving the engine's JSON
// API. The chat-gateway collaborator maps chat-native identifiers to the
// logical references used here and renders the structured outcomes back into
// user-facing messages.
package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/squadctf/ctfsync/internal/application"
	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	registry    *application.Registry
	ledger      *application.Ledger
	coordinator *application.Coordinator
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	registry *application.Registry,
	ledger *application.Ledger,
	coordinator *application.Coordinator,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		registry:    registry,
		ledger:      ledger,
		coordinator: coordinator,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/competitions", h.CreateCompetition)
	mux.HandleFunc("GET /api/v1/competitions", h.ListCompetitions)
	mux.HandleFunc("GET /api/v1/competitions/{id}", h.GetCompetition)
	mux.HandleFunc("POST /api/v1/competitions/{id}/archive", h.ArchiveCompetition)
	mux.HandleFunc("DELETE /api/v1/competitions/{id}", h.DeleteCompetition)

	mux.HandleFunc("POST /api/v1/competitions/{id}/pull", h.PullChallenges)
	mux.HandleFunc("GET /api/v1/competitions/{id}/challenges", h.ListChallenges)
	mux.HandleFunc("POST /api/v1/competitions/{id}/challenges/{chal}/submit", h.SubmitFlag)
	mux.HandleFunc("POST /api/v1/competitions/{id}/challenges/{chal}/solve", h.MarkSolved)
	mux.HandleFunc("POST /api/v1/competitions/{id}/challenges/{chal}/unsolve", h.MarkUnsolved)
	mux.HandleFunc("POST /api/v1/competitions/{id}/challenges/{chal}/rename", h.RenameChallenge)

	mux.HandleFunc("GET /api/v1/competitions/{id}/scoreboard", h.Scoreboard)
	mux.HandleFunc("POST /api/v1/competitions/{id}/register", h.RegisterTeam)

	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// CreateCompetition registers a new active competition.
func (h *Handler) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Platform string `json:"platform"`
		BaseURL  string `json:"base_url"`
		Username string `json:"username"`
		Secret   string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Platform == "" || req.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "name, platform, and base_url are required")
		return
	}

	comp, err := h.registry.Create(r.Context(), req.Name, model.PlatformKind(req.Platform), req.BaseURL, req.Username, req.Secret)
	if err != nil {
		h.logger.Error("create competition failed", "name", req.Name, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCompetitionResponse(*comp))
}

// ListCompetitions returns all competitions.
func (h *Handler) ListCompetitions(w http.ResponseWriter, r *http.Request) {
	comps, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("list competitions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]CompetitionResponse, 0, len(comps))
	for _, comp := range comps {
		resp = append(resp, toCompetitionResponse(comp))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCompetition returns a single competition by id.
func (h *Handler) GetCompetition(w http.ResponseWriter, r *http.Request) {
	comp, err := h.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCompetitionResponse(*comp))
}

// ArchiveCompetition transitions a competition to archived.
func (h *Handler) ArchiveCompetition(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Archive(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCompetition removes a competition and all its data.
func (h *Handler) DeleteCompetition(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.registry.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	h.ledger.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

// PullChallenges refreshes challenge state from the platform and returns the
// newly discovered challenges.
func (h *Handler) PullChallenges(w http.ResponseWriter, r *http.Request) {
	discovered, err := h.ledger.Pull(r.Context(), r.PathValue("id"))
	if err != nil {
		h.logger.Error("pull failed", "competition", r.PathValue("id"), "error", err)
		writeDomainError(w, err)
		return
	}

	resp := make([]ChallengeResponse, 0, len(discovered))
	for _, ch := range discovered {
		resp = append(resp, toChallengeResponse(ch))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListChallenges returns all tracked challenges of a competition.
func (h *Handler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	challenges, err := h.ledger.List(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]ChallengeResponse, 0, len(challenges))
	for _, ch := range challenges {
		resp = append(resp, toChallengeResponse(ch))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitFlag attempts a flag submission on behalf of an actor.
func (h *Handler) SubmitFlag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Flag    string   `json:"flag"`
		Actor   string   `json:"actor"`
		Support []string `json:"support"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Flag == "" || req.Actor == "" {
		writeError(w, http.StatusBadRequest, "flag and actor are required")
		return
	}

	result, err := h.coordinator.Submit(r.Context(), r.PathValue("id"), r.PathValue("chal"), req.Flag, req.Actor, req.Support)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubmitResponse(result))
}

// MarkSolved marks a challenge solved without contacting the platform.
func (h *Handler) MarkSolved(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Actor   string   `json:"actor"`
		Support []string `json:"support"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, "actor is required")
		return
	}

	rec, err := h.ledger.MarkSolved(r.Context(), r.PathValue("id"), r.PathValue("chal"), req.Actor, req.Support)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{
		Status:  string(model.SubmissionCorrect),
		Solver:  rec.PrimarySolver,
		Support: rec.SupportSolvers,
	})
}

// MarkUnsolved marks a challenge unsolved, retaining the prior solver record
// for audit.
func (h *Handler) MarkUnsolved(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.MarkUnsolved(r.Context(), r.PathValue("id"), r.PathValue("chal")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RenameChallenge updates a challenge's name and category.
func (h *Handler) RenameChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Category == "" {
		writeError(w, http.StatusBadRequest, "name and category are required")
		return
	}

	if err := h.ledger.Rename(r.Context(), r.PathValue("id"), r.PathValue("chal"), req.Name, req.Category); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Scoreboard returns the platform scoreboard for a competition.
func (h *Handler) Scoreboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	var rows []model.ScoreboardRow
	err := h.registry.WithClient(r.Context(), r.PathValue("id"), func(client driven.PlatformClient, session *driven.Session) error {
		var fetchErr error
		rows, fetchErr = client.FetchScoreboard(r.Context(), session, limit)
		return fetchErr
	})
	if err != nil {
		h.logger.Error("scoreboard fetch failed", "competition", r.PathValue("id"), "error", err)
		writeDomainError(w, err)
		return
	}

	resp := make([]ScoreboardRowResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, ScoreboardRowResponse{Rank: row.Rank, Team: row.TeamName, Score: row.Score})
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterTeam registers a team account on the competition's platform.
func (h *Handler) RegisterTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamName string `json:"team_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TeamName == "" {
		writeError(w, http.StatusBadRequest, "team_name is required")
		return
	}

	reg := model.Registration{TeamName: req.TeamName, Email: req.Email, Password: req.Password}

	var account *model.TeamAccount
	err := h.registry.WithClient(r.Context(), r.PathValue("id"), func(client driven.PlatformClient, _ *driven.Session) error {
		var regErr error
		account, regErr = client.RegisterTeam(r.Context(), reg)
		return regErr
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"name":         account.Name,
		"token":        account.Token,
		"invite_token": account.InviteToken,
	})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
