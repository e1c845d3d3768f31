package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lmb/settlements/internal/domain"
)

// updatedTokenHeader is set by the ledger on any response whose handling
// rotated the caller's access token.
const updatedTokenHeader = "X-Updated-Token"

// Client talks to the ledger HTTP API. It owns its Session; callers that
// process settlements concurrently construct one Client per worker.
type Client struct {
	baseURL string
	httpc   *http.Client
	session *Session
}

// NewClient creates a ledger client around the given session.
func NewClient(baseURL string, session *Session) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: 30 * time.Second},
		session: session,
	}
}

// Session exposes the current auth state, e.g. for persisting tokens after
// a run.
func (c *Client) Session() Session { return *c.session }

// FindEntriesByDocNumber returns entries whose document number contains
// substr.
func (c *Client) FindEntriesByDocNumber(ctx context.Context, substr string) ([]Entry, error) {
	var out struct {
		Entries []Entry `json:"entries"`
	}
	q := url.Values{"doc_number": {substr}}
	if err := c.call(ctx, http.MethodGet, "/v1/journal-entries?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("find entries by doc number %q: %w", substr, err)
	}
	return out.Entries, nil
}

// GetEntry fetches one entry by id.
func (c *Client) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var out Entry
	if err := c.call(ctx, http.MethodGet, "/v1/journal-entries/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	return &out, nil
}

// CreateEntry posts a new journal entry and returns it with its assigned id.
// The post is atomic on the ledger's side.
func (c *Client) CreateEntry(ctx context.Context, e *Entry) (*Entry, error) {
	var out Entry
	if err := c.call(ctx, http.MethodPost, "/v1/journal-entries", e, &out); err != nil {
		return nil, fmt.Errorf("create entry %s: %w", e.DocNumber, err)
	}
	return &out, nil
}

// ListAccounts fetches the chart of accounts.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/accounts", nil, &out); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out.Accounts, nil
}

// ListRecentEntries returns one page of previously posted settlement
// entries, newest first. Page numbering starts at 1; an empty page ends the
// scan.
func (c *Client) ListRecentEntries(ctx context.Context, page int) ([]Entry, error) {
	q := url.Values{
		"sort": {"created_desc"},
		"page": {strconv.Itoa(page)},
	}
	var out struct {
		Entries []Entry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, "/v1/journal-entries?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list entries page %d: %w", page, err)
	}
	return out.Entries, nil
}

// call performs one authenticated request, persisting any rotated token and
// refreshing once on a 401.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	status, err := c.do(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		if err := c.refresh(ctx); err != nil {
			return err
		}
		status, err = c.do(ctx, method, path, body, out)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return domain.E(domain.KindAuthFailed, "ledger rejected token after refresh")
		}
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("ledger returned status %d for %s %s", status, method, path)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.session.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Persist a rotated token before anything else; the next call depends
	// on it even when this response is an error.
	if tok := resp.Header.Get(updatedTokenHeader); tok != "" {
		c.session.AccessToken = tok
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) refresh(ctx context.Context) error {
	if c.session.RefreshToken == "" {
		return domain.E(domain.KindAuthFailed, "ledger token expired and no refresh token available")
	}
	payload := map[string]string{"refresh_token": c.session.RefreshToken}
	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	status, err := c.do(ctx, http.MethodPost, "/oauth/refresh", payload, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK || out.AccessToken == "" {
		return domain.E(domain.KindAuthFailed, "ledger token refresh failed with status %d", status)
	}
	c.session.AccessToken = out.AccessToken
	if out.RefreshToken != "" {
		c.session.RefreshToken = out.RefreshToken
	}
	return nil
}
