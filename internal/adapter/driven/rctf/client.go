// Package rctf implements the PlatformClient port for rCTF-style platforms.
// rCTF is a pure JSON API: every response carries a "kind" discriminator and
// a "data" payload, and authenticated calls use a bearer token obtained from
// the team token.
package rctf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/squadctf/ctfsync/internal/adapter/driven/transport"
	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*Client)(nil)

// Client implements driven.PlatformClient against an rCTF instance.
type Client struct {
	tx      *transport.Client
	baseURL string
}

// NewClient creates an rCTF client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		tx:      transport.New(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// NewClientWithHTTPClient creates a Client around an existing http.Client.
// Intended for tests injecting an httptest server.
func NewClientWithHTTPClient(hc *http.Client, baseURL string) *Client {
	return &Client{
		tx:      transport.NewWithHTTPClient(hc),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// envelope is the common rCTF response shape. Data is deferred so each call
// can decode its own payload.
type envelope struct {
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Authenticate exchanges the team token (stored as the credential secret)
// for a bearer token via /api/v1/auth/login.
func (c *Client) Authenticate(ctx context.Context, cred model.Credential) (*driven.Session, error) {
	env, err := c.postJSON(ctx, nil, "/api/v1/auth/login", map[string]string{"teamToken": cred.Secret})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAuth, err)
	}
	if env.Kind != "goodLogin" {
		return nil, fmt.Errorf("%w: login returned kind %q", model.ErrAuth, env.Kind)
	}

	var data struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AuthToken == "" {
		return nil, fmt.Errorf("%w: login response carried no auth token", model.ErrAuth)
	}

	return &driven.Session{Token: data.AuthToken}, nil
}

// ListChallenges combines /api/v1/challs (visible challenges) with the
// team's own solves from /api/v1/users/me, since rCTF does not flag solved
// challenges in the listing itself.
func (c *Client) ListChallenges(ctx context.Context, session *driven.Session) ([]model.RemoteChallenge, error) {
	env, err := c.getJSON(ctx, session, "/api/v1/challs")
	if err != nil {
		return nil, err
	}
	if env.Kind != "goodChallenges" {
		return nil, fmt.Errorf("%w: challenge listing returned kind %q", model.ErrTransport, env.Kind)
	}

	var listing []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Category string `json:"category"`
		Points   int    `json:"points"`
	}
	if err := json.Unmarshal(env.Data, &listing); err != nil {
		return nil, fmt.Errorf("%w: decode challenge listing: %v", model.ErrTransport, err)
	}

	solved, err := c.fetchSolvedSet(ctx, session)
	if err != nil {
		return nil, err
	}

	challenges := make([]model.RemoteChallenge, 0, len(listing))
	for _, ch := range listing {
		challenges = append(challenges, model.RemoteChallenge{
			ID:           ch.ID,
			Name:         ch.Name,
			Category:     ch.Category,
			Points:       ch.Points,
			SolvedByTeam: solved[ch.ID],
		})
	}
	return challenges, nil
}

// SubmitFlag posts a single attempt to /api/v1/challs/{id}/submit, exactly
// once.
func (c *Client) SubmitFlag(ctx context.Context, session *driven.Session, challengeID, flag string) (model.FlagResult, error) {
	body, err := json.Marshal(map[string]string{"flag": flag})
	if err != nil {
		return model.FlagResult{}, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/challs/"+challengeID+"/submit", bytes.NewReader(body))
	if err != nil {
		return model.FlagResult{}, fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, session)

	resp, err := c.tx.Do(req)
	if err != nil {
		return model.FlagResult{}, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return model.FlagResult{}, fmt.Errorf("%w: decode submit response: %v", model.ErrTransport, err)
	}

	status, ok := map[string]model.SubmissionStatus{
		"goodFlag":                  model.SubmissionCorrect,
		"badFlag":                   model.SubmissionIncorrect,
		"badAlreadySolvedChallenge": model.SubmissionAlreadySolved,
		"badRateLimit":              model.SubmissionRateLimited,
	}[env.Kind]
	if !ok {
		return model.FlagResult{}, fmt.Errorf("%w: unrecognized submit kind %q", model.ErrTransport, env.Kind)
	}

	return model.FlagResult{Status: status, Message: env.Message}, nil
}

// FetchScoreboard fetches /api/v1/leaderboard/now with the given limit.
func (c *Client) FetchScoreboard(ctx context.Context, session *driven.Session, limit int) ([]model.ScoreboardRow, error) {
	if limit <= 0 {
		limit = 20
	}

	env, err := c.getJSON(ctx, session, fmt.Sprintf("/api/v1/leaderboard/now?limit=%d&offset=0", limit))
	if err != nil {
		return nil, err
	}
	if env.Kind != "goodLeaderboard" {
		return nil, fmt.Errorf("%w: leaderboard returned kind %q", model.ErrTransport, env.Kind)
	}

	var data struct {
		Leaderboard []struct {
			Name  string `json:"name"`
			Score int    `json:"score"`
		} `json:"leaderboard"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: decode leaderboard: %v", model.ErrTransport, err)
	}

	rows := make([]model.ScoreboardRow, 0, len(data.Leaderboard))
	for i, team := range data.Leaderboard {
		if i >= limit {
			break
		}
		rows = append(rows, model.ScoreboardRow{Rank: i + 1, TeamName: team.Name, Score: team.Score})
	}
	return rows, nil
}

// RegisterTeam creates a team via /api/v1/auth/register. rCTF returns the
// team's auth token on success; the invite token comes from a follow-up
// /api/v1/users/me call.
func (c *Client) RegisterTeam(ctx context.Context, reg model.Registration) (*model.TeamAccount, error) {
	env, err := c.postJSON(ctx, nil, "/api/v1/auth/register", map[string]string{
		"name":  reg.TeamName,
		"email": reg.Email,
	})
	if err != nil {
		return nil, err
	}

	rejections := map[string]string{
		"badKnownName":             "team name already taken",
		"badKnownEmail":            "email already in use",
		"badName":                  "invalid team name",
		"badEmail":                 "invalid email",
		"badCompetitionNotAllowed": "registration closed",
	}
	if reason, rejected := rejections[env.Kind]; rejected {
		return nil, fmt.Errorf("%w: %s", model.ErrRegistration, reason)
	}

	var data struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AuthToken == "" {
		return nil, fmt.Errorf("%w: registration returned no auth token (kind %q)", model.ErrRegistration, env.Kind)
	}

	account := &model.TeamAccount{Name: reg.TeamName, Token: data.AuthToken}

	// Best effort: the invite token is informational only.
	session := &driven.Session{Token: data.AuthToken}
	if me, err := c.fetchSelf(ctx, session); err == nil {
		account.InviteToken = me.TeamToken
	}

	return account, nil
}

type selfInfo struct {
	Name      string `json:"name"`
	TeamToken string `json:"teamToken"`
	Solves    []struct {
		ID string `json:"id"`
	} `json:"solves"`
}

// fetchSolvedSet returns the set of challenge ids the team has solved,
// keyed by challenge id.
func (c *Client) fetchSolvedSet(ctx context.Context, session *driven.Session) (map[string]bool, error) {
	me, err := c.fetchSelf(ctx, session)
	if err != nil {
		return nil, err
	}

	solved := make(map[string]bool, len(me.Solves))
	for _, solve := range me.Solves {
		solved[solve.ID] = true
	}
	return solved, nil
}

func (c *Client) fetchSelf(ctx context.Context, session *driven.Session) (*selfInfo, error) {
	env, err := c.getJSON(ctx, session, "/api/v1/users/me")
	if err != nil {
		return nil, err
	}
	if env.Kind != "goodUserData" {
		return nil, fmt.Errorf("%w: self lookup returned kind %q", model.ErrTransport, env.Kind)
	}

	var me selfInfo
	if err := json.Unmarshal(env.Data, &me); err != nil {
		return nil, fmt.Errorf("%w: decode self lookup: %v", model.ErrTransport, err)
	}
	return &me, nil
}

// getJSON performs an authenticated GET with read-call retry policy.
func (c *Client) getJSON(ctx context.Context, session *driven.Session, path string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	setAuth(req, session)

	resp, err := c.tx.DoRetry(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: %s returned status %d", model.ErrAuth, path, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", model.ErrTransport, path, err)
	}
	return &env, nil
}

// postJSON performs a POST without retry (auth and registration mutate
// server-side state).
func (c *Client) postJSON(ctx context.Context, session *driven.Session, path string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	setAuth(req, session)

	resp, err := c.tx.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", model.ErrTransport, path, err)
	}
	return &env, nil
}

func setAuth(req *http.Request, session *driven.Session) {
	if session != nil && session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}
}
