// Package ctfd implements the PlatformClient port for CTFd-style platforms.
// CTFd authenticates with an HTML login form (nonce + session cookie) and
// exposes challenge data under /api/v1.
package ctfd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/squadctf/ctfsync/internal/adapter/driven/transport"
	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*Client)(nil)

var (
	noncePattern = regexp.MustCompile(`<input\s+id="nonce"[^>]*value="([^"]+)"`)
	csrfPattern  = regexp.MustCompile(`'csrfNonce':\s*"([A-Fa-f0-9]+)"`)
)

// Client implements driven.PlatformClient against a CTFd instance.
type Client struct {
	tx      *transport.Client
	baseURL string
}

// NewClient creates a CTFd client for the given base URL.
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

// Authenticate performs the CTFd form login: fetch the login page for its
// nonce and pre-session cookie, then post the credentials. A successful login
// redirects (302) and sets the session cookie; a 200 means the form was
// re-rendered with an error.
func (c *Client) Authenticate(ctx context.Context, cred model.Credential) (*driven.Session, error) {
	nonce, cookies, err := c.fetchNonce(ctx, c.baseURL+"/login", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAuth, err)
	}

	form := url.Values{
		"name":     {cred.Username},
		"password": {cred.Secret},
		"_submit":  {"Submit"},
		"nonce":    {nonce},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setCookies(req, cookies)

	resp, err := c.tx.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrAuth, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("%w: login rejected with status %d", model.ErrAuth, resp.StatusCode)
	}

	session := &driven.Session{Cookies: mergeCookies(cookies, resp.Cookies())}
	if !session.Valid() {
		return nil, fmt.Errorf("%w: login response carried no session cookie", model.ErrAuth)
	}
	return session, nil
}

// ListChallenges fetches /api/v1/challenges. CTFd already filters hidden and
// locked challenges for the authenticated session, so the listing is taken
// as-is.
func (c *Client) ListChallenges(ctx context.Context, session *driven.Session) ([]model.RemoteChallenge, error) {
	var payload struct {
		Success bool `json:"success"`
		Data    []struct {
			ID         int    `json:"id"`
			Name       string `json:"name"`
			Category   string `json:"category"`
			Value      int    `json:"value"`
			SolvedByMe bool   `json:"solved_by_me"`
		} `json:"data"`
	}

	if err := c.getJSON(ctx, session, "/api/v1/challenges", &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, fmt.Errorf("%w: challenge listing unsuccessful", model.ErrTransport)
	}

	challenges := make([]model.RemoteChallenge, 0, len(payload.Data))
	for _, ch := range payload.Data {
		challenges = append(challenges, model.RemoteChallenge{
			ID:           strconv.Itoa(ch.ID),
			Name:         ch.Name,
			Category:     ch.Category,
			Points:       ch.Value,
			SolvedByTeam: ch.SolvedByMe,
		})
	}
	return challenges, nil
}

// SubmitFlag posts a single attempt to /api/v1/challenges/attempt. The CSRF
// nonce is scraped from the challenges page first (a read, retried as such);
// the attempt itself is sent exactly once.
func (c *Client) SubmitFlag(ctx context.Context, session *driven.Session, challengeID, flag string) (model.FlagResult, error) {
	csrf, err := c.fetchCSRFNonce(ctx, session)
	if err != nil {
		return model.FlagResult{}, err
	}

	id, err := strconv.Atoi(challengeID)
	if err != nil {
		return model.FlagResult{}, fmt.Errorf("%w: non-numeric challenge id %q", model.ErrChallengeNotFound, challengeID)
	}

	body, err := json.Marshal(map[string]any{"challenge_id": id, "submission": flag})
	if err != nil {
		return model.FlagResult{}, fmt.Errorf("marshal attempt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/challenges/attempt", bytes.NewReader(body))
	if err != nil {
		return model.FlagResult{}, fmt.Errorf("build attempt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("CSRF-Token", csrf)
	setCookies(req, session.Cookies)

	resp, err := c.tx.Do(req)
	if err != nil {
		return model.FlagResult{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return model.FlagResult{}, fmt.Errorf("%w: decode attempt response: %v", model.ErrTransport, err)
	}

	status, ok := map[string]model.SubmissionStatus{
		"correct":        model.SubmissionCorrect,
		"incorrect":      model.SubmissionIncorrect,
		"already_solved": model.SubmissionAlreadySolved,
		"ratelimited":    model.SubmissionRateLimited,
		"paused":         model.SubmissionRateLimited,
	}[strings.ToLower(payload.Data.Status)]
	if !ok {
		return model.FlagResult{}, fmt.Errorf("%w: unrecognized attempt status %q", model.ErrTransport, payload.Data.Status)
	}

	return model.FlagResult{Status: status, Message: payload.Data.Message}, nil
}

// FetchScoreboard fetches /api/v1/scoreboard and returns up to limit rows.
func (c *Client) FetchScoreboard(ctx context.Context, session *driven.Session, limit int) ([]model.ScoreboardRow, error) {
	var payload struct {
		Success bool `json:"success"`
		Data    []struct {
			Pos   int    `json:"pos"`
			Name  string `json:"name"`
			Score int    `json:"score"`
		} `json:"data"`
	}

	if err := c.getJSON(ctx, session, "/api/v1/scoreboard", &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, fmt.Errorf("%w: scoreboard fetch unsuccessful", model.ErrTransport)
	}

	if limit <= 0 || limit > len(payload.Data) {
		limit = len(payload.Data)
	}
	rows := make([]model.ScoreboardRow, 0, limit)
	for _, entry := range payload.Data[:limit] {
		rows = append(rows, model.ScoreboardRow{Rank: entry.Pos, TeamName: entry.Name, Score: entry.Score})
	}
	return rows, nil
}

// RegisterTeam registers a user account via the /register form, then creates
// the team via /teams/new. CTFd re-renders the form with a 200 on rejection
// (name or email taken) and redirects on success.
func (c *Client) RegisterTeam(ctx context.Context, reg model.Registration) (*model.TeamAccount, error) {
	nonce, cookies, err := c.fetchNonce(ctx, c.baseURL+"/register", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: registration may be closed: %v", model.ErrRegistration, err)
	}

	form := url.Values{
		"name":     {reg.TeamName},
		"email":    {reg.Email},
		"password": {reg.Password},
		"_submit":  {"Submit"},
		"nonce":    {nonce},
	}
	cookies, err = c.postForm(ctx, c.baseURL+"/register", form, cookies, "registration rejected")
	if err != nil {
		return nil, err
	}

	nonce, cookies, err = c.fetchNonce(ctx, c.baseURL+"/teams/new", cookies)
	if err != nil {
		return nil, fmt.Errorf("%w: team creation unavailable: %v", model.ErrRegistration, err)
	}

	form = url.Values{
		"name":     {reg.TeamName},
		"password": {reg.Password},
		"_submit":  {"Create"},
		"nonce":    {nonce},
	}
	if _, err := c.postForm(ctx, c.baseURL+"/teams/new", form, cookies, "team name already taken"); err != nil {
		return nil, err
	}

	return &model.TeamAccount{Name: reg.TeamName}, nil
}

// fetchNonce fetches an HTML page and extracts the form nonce plus any
// cookies set by the response.
func (c *Client) fetchNonce(ctx context.Context, pageURL string, cookies map[string]string) (string, map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build nonce request: %w", err)
	}
	setCookies(req, cookies)

	resp, err := c.tx.DoRetry(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", pageURL, err)
	}

	match := noncePattern.FindSubmatch(body)
	if match == nil {
		return "", nil, fmt.Errorf("no nonce on %s", pageURL)
	}

	return string(match[1]), mergeCookies(cookies, resp.Cookies()), nil
}

// fetchCSRFNonce scrapes the csrfNonce JavaScript variable from the
// challenges page.
func (c *Client) fetchCSRFNonce(ctx context.Context, session *driven.Session) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/challenges", nil)
	if err != nil {
		return "", fmt.Errorf("build csrf request: %w", err)
	}
	setCookies(req, session.Cookies)

	resp, err := c.tx.DoRetry(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read challenges page: %w", err)
	}

	match := csrfPattern.FindSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("%w: no csrf nonce on challenges page", model.ErrAuth)
	}
	return string(match[1]), nil
}

// postForm posts a registration-flow form. A 302 is success; a 200 means the
// form was re-rendered with validation errors.
func (c *Client) postForm(ctx context.Context, formURL string, form url.Values, cookies map[string]string, rejection string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, formURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build form request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	setCookies(req, cookies)

	resp, err := c.tx.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusFound:
		return mergeCookies(cookies, resp.Cookies()), nil
	case http.StatusOK:
		return nil, fmt.Errorf("%w: %s", model.ErrRegistration, rejection)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d posting %s", model.ErrRegistration, resp.StatusCode, formURL)
	}
}

// getJSON performs an authenticated GET with read-call retry policy and
// decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, session *driven.Session, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	setCookies(req, session.Cookies)

	resp, err := c.tx.DoRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s returned status %d", model.ErrAuth, path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d", model.ErrTransport, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", model.ErrTransport, path, err)
	}
	return nil
}

func setCookies(req *http.Request, cookies map[string]string) {
	for name, value := range cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func mergeCookies(base map[string]string, set []*http.Cookie) map[string]string {
	merged := make(map[string]string, len(base)+len(set))
	for name, value := range base {
		merged[name] = value
	}
	for _, cookie := range set {
		merged[cookie.Name] = cookie.Value
	}
	return merged
}
