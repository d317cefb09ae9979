package rctf_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadctf/ctfsync/internal/adapter/driven/rctf"
	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *rctf.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return rctf.NewClientWithHTTPClient(server.Client(), server.URL)
}

func testSession() *driven.Session {
	return &driven.Session{Token: "bearer-token-1"}
}

func writeEnvelope(w http.ResponseWriter, kind, message string, data any) {
	json.NewEncoder(w).Encode(map[string]any{
		"kind":    kind,
		"message": message,
		"data":    data,
	})
}

func requireBearer(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "Bearer bearer-token-1", r.Header.Get("Authorization"))
}

func TestAuthenticate_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TeamToken string `json:"teamToken"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "team-token-secret", body.TeamToken)

		writeEnvelope(w, "goodLogin", "logged in", map[string]string{"authToken": "bearer-token-1"})
	})
	client := newTestClient(t, mux)

	session, err := client.Authenticate(context.Background(), model.Credential{Secret: "team-token-secret"})

	require.NoError(t, err)
	assert.Equal(t, "bearer-token-1", session.Token)
}

func TestAuthenticate_BadToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "badTokenVerification", "invalid token", nil)
	})
	client := newTestClient(t, mux)

	_, err := client.Authenticate(context.Background(), model.Credential{Secret: "bogus"})

	require.ErrorIs(t, err, model.ErrAuth)
}

func TestListChallenges_MergesSolves(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/challs", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeEnvelope(w, "goodChallenges", "", []map[string]any{
			{"id": "warmup-chall", "name": "warmup", "category": "misc", "points": 100},
			{"id": "rev1-chall", "name": "rev1", "category": "rev", "points": 250},
		})
	})
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r)
		writeEnvelope(w, "goodUserData", "", map[string]any{
			"name":   "squad",
			"solves": []map[string]string{{"id": "warmup-chall"}},
		})
	})
	client := newTestClient(t, mux)

	challenges, err := client.ListChallenges(context.Background(), testSession())

	require.NoError(t, err)
	require.Len(t, challenges, 2)
	assert.Equal(t, "warmup-chall", challenges[0].ID)
	assert.True(t, challenges[0].SolvedByTeam)
	assert.False(t, challenges[1].SolvedByTeam)
}

func TestListChallenges_SessionExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/challs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client := newTestClient(t, mux)

	_, err := client.ListChallenges(context.Background(), testSession())

	require.ErrorIs(t, err, model.ErrAuth)
}

func TestSubmitFlag(t *testing.T) {
	tests := []struct {
		name string
		kind string
		want model.SubmissionStatus
	}{
		{"correct", "goodFlag", model.SubmissionCorrect},
		{"incorrect", "badFlag", model.SubmissionIncorrect},
		{"already solved", "badAlreadySolvedChallenge", model.SubmissionAlreadySolved},
		{"rate limited", "badRateLimit", model.SubmissionRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/v1/challs/{id}/submit", func(w http.ResponseWriter, r *http.Request) {
				requireBearer(t, r)
				assert.Equal(t, "rev1-chall", r.PathValue("id"))

				var body struct {
					Flag string `json:"flag"`
				}
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "flag{test}", body.Flag)

				writeEnvelope(w, tt.kind, "msg", nil)
			})
			client := newTestClient(t, mux)

			result, err := client.SubmitFlag(context.Background(), testSession(), "rev1-chall", "flag{test}")

			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
		})
	}
}

func TestFetchScoreboard(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/leaderboard/now", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		writeEnvelope(w, "goodLeaderboard", "", map[string]any{
			"total": 2,
			"leaderboard": []map[string]any{
				{"name": "red team", "score": 1500},
				{"name": "blue team", "score": 1200},
			},
		})
	})
	client := newTestClient(t, mux)

	rows, err := client.FetchScoreboard(context.Background(), testSession(), 2)

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, rows[0].Rank)
	assert.Equal(t, "red team", rows[0].TeamName)
	assert.Equal(t, 2, rows[1].Rank)
}

func TestRegisterTeam_Success(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "squad", body.Name)

		writeEnvelope(w, "goodRegister", "", map[string]string{"authToken": "bearer-token-1"})
	})
	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "goodUserData", "", map[string]any{
			"name":      "squad",
			"teamToken": "invite-token-1",
			"solves":    []any{},
		})
	})
	client := newTestClient(t, mux)

	account, err := client.RegisterTeam(context.Background(), model.Registration{
		TeamName: "squad",
		Email:    "squad@example.com",
	})

	require.NoError(t, err)
	assert.Equal(t, "squad", account.Name)
	assert.Equal(t, "bearer-token-1", account.Token)
	assert.Equal(t, "invite-token-1", account.InviteToken)
}

func TestRegisterTeam_NameTaken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "badKnownName", "name taken", nil)
	})
	client := newTestClient(t, mux)

	_, err := client.RegisterTeam(context.Background(), model.Registration{
		TeamName: "taken",
		Email:    "squad@example.com",
	})

	require.ErrorIs(t, err, model.ErrRegistration)
	assert.Contains(t, err.Error(), "already taken")
}
