package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Entry mirrors a committed audit ledger entry as served by auditd.
type Entry struct {
	Sequence   int64          `json:"sequence"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role"`
	Details    map[string]any `json:"details"`
	Timestamp  time.Time      `json:"timestamp"`
	PrevHash   string         `json:"prev_hash"`
	Hash       string         `json:"hash"`
}

// Tip is the (sequence, hash) pair of the most recently committed entry.
type Tip struct {
	Sequence int64  `json:"sequence"`
	Hash     string `json:"hash"`
}

// VerificationResult reports the outcome of a full-chain verification.
type VerificationResult struct {
	Intact           bool   `json:"intact"`
	TotalEntries     int64  `json:"total_entries"`
	BrokenAtSequence int64  `json:"broken_at_sequence,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

// AppendRequest is the payload for Append. Actor identity comes from the
// bearer token, not from this struct.
type AppendRequest struct {
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Details    map[string]any `json:"details,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to an auditd instance.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client for the auditd instance at baseURL
// (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Append records a new audit entry and returns it as committed.
func (c *Client) Append(ctx context.Context, req AppendRequest) (*Entry, error) {
	var entry Entry
	if err := c.do(ctx, http.MethodPost, "/api/v1/audit/entries", req, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Verify runs a full-chain integrity verification.
func (c *Client) Verify(ctx context.Context) (*VerificationResult, error) {
	var res VerificationResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/audit/verify", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Tip returns the current chain tip. An empty ledger reports sequence 0 and
// the genesis hash.
func (c *Client) Tip(ctx context.Context) (*Tip, error) {
	var tip Tip
	if err := c.do(ctx, http.MethodGet, "/api/v1/audit/tip", nil, &tip); err != nil {
		return nil, err
	}
	return &tip, nil
}

// Entry fetches a single committed entry by sequence number.
func (c *Client) Entry(ctx context.Context, sequence int64) (*Entry, error) {
	var entry Entry
	path := fmt.Sprintf("/api/v1/audit/entries/%d", sequence)
	if err := c.do(ctx, http.MethodGet, path, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Entries fetches up to limit entries in ascending sequence order; limit 0
// uses the server default.
func (c *Client) Entries(ctx context.Context, limit int) ([]*Entry, error) {
	path := "/api/v1/audit/entries"
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", path, limit)
	}
	var page struct {
		Entries []*Entry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return page.Entries, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		payload, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if respBody != nil {
		if err := json.Unmarshal(raw, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
