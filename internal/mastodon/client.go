// Package mastodon implements the fetch capability: a read-only client for
// the public Mastodon REST API, normalizing responses into Status values and
// applying per-source filters.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"toot2mail/internal/model"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; rv:128.0) Gecko/20100101 Firefox/128.0"

// Response bodies are bounded to guard against misbehaving instances.
const (
	maxAPIBody   = 5 * 1024 * 1024
	maxImageBody = 20 * 1024 * 1024
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to Mastodon instances over their public API. Responses are
// cached for the lifetime of the client (one run), so repeated lookups of
// the same resource hit the network once.
type Client struct {
	client HTTPClient
	cache  map[string][]byte
}

// New creates a Client using the given HTTP client. Timeout and proxy
// behavior belong to the HTTP client, configured by the caller.
func New(client HTTPClient) *Client {
	return &Client{
		client: client,
		cache:  make(map[string][]byte),
	}
}

// AccountStatuses fetches the most recent statuses of an account source,
// most-recent-first as the API returns them.
func (c *Client) AccountStatuses(ctx context.Context, src model.Source, limit int) ([]*Status, error) {
	accountID, err := c.lookupAccount(ctx, src.Instance, src.Name)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("https://%s/api/v1/accounts/%s/statuses?limit=%d",
		src.Instance, url.PathEscape(accountID), limit)
	return c.fetchStatuses(ctx, endpoint)
}

// TagTimeline fetches the most recent statuses of a hashtag source,
// most-recent-first as the API returns them.
func (c *Client) TagTimeline(ctx context.Context, src model.Source, limit int) ([]*Status, error) {
	endpoint := fmt.Sprintf("https://%s/api/v1/timelines/tag/%s?limit=%d",
		src.Instance, url.PathEscape(src.Name), limit)
	return c.fetchStatuses(ctx, endpoint)
}

// Status fetches a single status by ID from an instance.
func (c *Client) Status(ctx context.Context, instance, id string) (*Status, error) {
	endpoint := fmt.Sprintf("https://%s/api/v1/statuses/%s", instance, url.PathEscape(id))
	body, err := c.get(ctx, endpoint, "", maxAPIBody)
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

// FetchImage downloads an attachment or card image. The referer is the
// originating instance; some instances refuse media requests without it.
func (c *Client) FetchImage(ctx context.Context, imageURL, referer string) ([]byte, error) {
	return c.get(ctx, imageURL, referer, maxImageBody)
}

func (c *Client) lookupAccount(ctx context.Context, instance, handle string) (string, error) {
	endpoint := fmt.Sprintf("https://%s/api/v1/accounts/lookup?acct=%s",
		instance, url.QueryEscape(handle))
	body, err := c.get(ctx, endpoint, "", maxAPIBody)
	if err != nil {
		return "", fmt.Errorf("lookup account %s@%s: %w", handle, instance, err)
	}
	var account Account
	if err := json.Unmarshal(body, &account); err != nil {
		return "", fmt.Errorf("decode account: %w", err)
	}
	if account.ID == "" {
		return "", fmt.Errorf("lookup account %s@%s: empty account id", handle, instance)
	}
	return account.ID, nil
}

func (c *Client) fetchStatuses(ctx context.Context, endpoint string) ([]*Status, error) {
	body, err := c.get(ctx, endpoint, "", maxAPIBody)
	if err != nil {
		return nil, err
	}
	var statuses []*Status
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("decode statuses: %w", err)
	}
	return statuses, nil
}

func (c *Client) get(ctx context.Context, rawURL, referer string, maxBody int64) ([]byte, error) {
	if cached, ok := c.cache[rawURL]; ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if referer != "" {
		req.Header.Set("Referer", "https://"+referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	c.cache[rawURL] = body
	return body, nil
}

// APIError is a non-2xx response from an instance.
type APIError struct {
	URL        string
	StatusCode int
}

func (e *APIError) Error() string {
	return "unexpected status " + strconv.Itoa(e.StatusCode) + " for " + e.URL
}

// FilterStatuses applies the source flags: noboosts drops boosts, noreplies
// drops replies. Hashtag sources carry no flags and pass everything through.
func FilterStatuses(statuses []*Status, src model.Source) []*Status {
	if !src.ExcludeBoosts && !src.ExcludeReplies {
		return statuses
	}
	filtered := make([]*Status, 0, len(statuses))
	for _, status := range statuses {
		if src.ExcludeBoosts && status.IsBoost() {
			continue
		}
		if src.ExcludeReplies && status.IsReply() {
			continue
		}
		filtered = append(filtered, status)
	}
	return filtered
}
