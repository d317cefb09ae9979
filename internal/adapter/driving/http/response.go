package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/squadctf/ctfsync/internal/application"
	"github.com/squadctf/ctfsync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it with the given status code. If
// marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps a domain error to its HTTP status and writes it.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFromError(err), err.Error())
}

// statusFromError maps the engine's error taxonomy to HTTP status codes.
// Conflicts (duplicates, state-machine violations, the concurrency guard)
// are 409; rate limiting is 429 so callers know to retry after a cooldown.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, model.ErrCompetitionNotFound),
		errors.Is(err, model.ErrChallengeNotFound):
		return http.StatusNotFound
	case model.IsUserError(err):
		return http.StatusConflict
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrRegistration),
		errors.Is(err, model.ErrNoPlatform):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// CompetitionResponse is the JSON representation of a competition.
type CompetitionResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`
	State    string `json:"state"`
	StartsAt string `json:"starts_at,omitempty"`
	EndsAt   string `json:"ends_at,omitempty"`
}

func toCompetitionResponse(comp model.Competition) CompetitionResponse {
	resp := CompetitionResponse{
		ID:       comp.ID,
		Name:     comp.Name,
		Platform: string(comp.Platform),
		BaseURL:  comp.BaseURL,
		State:    string(comp.State),
	}
	if !comp.StartsAt.IsZero() {
		resp.StartsAt = comp.StartsAt.UTC().Format(time.RFC3339)
	}
	if !comp.EndsAt.IsZero() {
		resp.EndsAt = comp.EndsAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// ChallengeResponse is the JSON representation of a challenge.
type ChallengeResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Points   int    `json:"points"`
	State    string `json:"state"`
}

func toChallengeResponse(ch model.Challenge) ChallengeResponse {
	return ChallengeResponse{
		ID:       ch.RemoteID,
		Name:     ch.Name,
		Category: ch.Category,
		Points:   ch.Points,
		State:    string(ch.State),
	}
}

// SubmitResponse is the JSON representation of a submission outcome.
type SubmitResponse struct {
	Status     string   `json:"status"`
	Message    string   `json:"message,omitempty"`
	Reconciled bool     `json:"reconciled"`
	Solver     string   `json:"solver,omitempty"`
	Support    []string `json:"support,omitempty"`
}

func toSubmitResponse(result *application.SubmitResult) SubmitResponse {
	resp := SubmitResponse{
		Status:     string(result.Status),
		Message:    result.Message,
		Reconciled: result.Reconciled,
	}
	if result.Record != nil {
		resp.Solver = result.Record.PrimarySolver
		resp.Support = result.Record.SupportSolvers
	}
	return resp
}

// ScoreboardRowResponse is one scoreboard entry.
type ScoreboardRowResponse struct {
	Rank  int    `json:"rank"`
	Team  string `json:"team"`
	Score int    `json:"score"`
}
