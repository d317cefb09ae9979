// Package ctftime implements the CalendarFeed port against the CTFtime
// events API. The feed is read-only, so responses are served through an
// in-memory caching transport.
package ctftime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/squadctf/ctfsync/internal/domain/model"
	"github.com/squadctf/ctfsync/internal/domain/port/driven"
)

const defaultLimit = 100

// Compile-time interface satisfaction check.
var _ driven.CalendarFeed = (*Client)(nil)

// Client fetches upcoming events from a CTFtime-style calendar API.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a feed client for the given base URL with an ETag-aware
// memory cache in front of the API.
func NewClient(baseURL string, timeout time.Duration) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	return &Client{
		http: &http.Client{
			Transport: cacheTransport,
			Timeout:   timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// NewClientWithHTTPClient creates a Client around an existing http.Client.
// Intended for tests injecting an httptest server.
func NewClientWithHTTPClient(hc *http.Client, baseURL string) *Client {
	return &Client{http: hc, baseURL: strings.TrimRight(baseURL, "/")}
}

// FetchUpcoming returns feed entries for events starting between now and
// now+horizon, mapped to calendar entries keyed by the feed's numeric event
// id.
func (c *Client) FetchUpcoming(ctx context.Context, now time.Time, horizon time.Duration) ([]model.CalendarEntry, error) {
	reqURL := fmt.Sprintf("%s/api/v1/events/?limit=%d&start=%d&finish=%d",
		c.baseURL, defaultLimit, now.Unix(), now.Add(horizon).Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build events request: %w", err)
	}
	req.Header.Set("User-Agent", "ctfsync")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch events: %v", model.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: events feed returned status %d", model.ErrTransport, resp.StatusCode)
	}

	var events []struct {
		ID     int64     `json:"id"`
		Title  string    `json:"title"`
		Start  time.Time `json:"start"`
		Finish time.Time `json:"finish"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("%w: decode events feed: %v", model.ErrTransport, err)
	}

	entries := make([]model.CalendarEntry, 0, len(events))
	for _, event := range events {
		entries = append(entries, model.CalendarEntry{
			ExternalID: fmt.Sprintf("%d", event.ID),
			Name:       event.Title,
			StartsAt:   event.Start.UTC(),
			EndsAt:     event.Finish.UTC(),
		})
	}
	return entries, nil
}
