// Package amazon implements the marketplace event source against the
// Amazon finances HTTP API.
package amazon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/lmb/settlements/internal/domain"
	"github.com/lmb/settlements/internal/events"
)

// Client lists settlement event groups and their financial events. It is
// safe for concurrent use; the token is fixed for the client's lifetime.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 60 * time.Second},
	}
}

var _ events.Source = (*Client)(nil)

// EventGroupForSettlement resolves the event group carrying a settlement id.
func (c *Client) EventGroupForSettlement(ctx context.Context, settlementID string) (events.Group, error) {
	q := url.Values{"settlement_id": {settlementID}}
	var out struct {
		Groups []events.Group `json:"event_groups"`
	}
	if err := c.get(ctx, "/finances/v1/event-groups?"+q.Encode(), &out); err != nil {
		return events.Group{}, fmt.Errorf("event group for settlement %s: %w", settlementID, err)
	}
	switch len(out.Groups) {
	case 0:
		return events.Group{}, domain.E(domain.KindUnmapped, "no event group found for settlement %s", settlementID)
	case 1:
		return out.Groups[0], nil
	default:
		return events.Group{}, domain.E(domain.KindAmbiguous, "settlement %s matches %d event groups", settlementID, len(out.Groups))
	}
}

// ListEventGroups lists groups whose period overlaps [start, end].
func (c *Client) ListEventGroups(ctx context.Context, start, end time.Time) ([]events.Group, error) {
	q := url.Values{
		"start": {start.Format("2006-01-02")},
		"end":   {end.Format("2006-01-02")},
	}
	var out struct {
		Groups []events.Group `json:"event_groups"`
	}
	if err := c.get(ctx, "/finances/v1/event-groups?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("list event groups: %w", err)
	}
	return out.Groups, nil
}

// ListEvents returns one page of events for a group. The continuation token
// is opaque and passed back verbatim.
func (c *Client) ListEvents(ctx context.Context, groupID, token string) (events.Page, error) {
	path := "/finances/v1/event-groups/" + url.PathEscape(groupID) + "/events"
	if token != "" {
		path += "?" + url.Values{"next_token": {token}}.Encode()
	}

	body, err := c.getRaw(ctx, path)
	if err != nil {
		return events.Page{}, fmt.Errorf("list events for group %s: %w", groupID, err)
	}

	var envelope struct {
		Events    json.RawMessage `json:"events"`
		NextToken string          `json:"next_token"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return events.Page{}, domain.Wrap(domain.KindMalformed, err, "decode events page for group %s", groupID)
	}
	evs, err := events.DecodeList(envelope.Events)
	if err != nil {
		return events.Page{}, fmt.Errorf("group %s: %w", groupID, err)
	}
	return events.Page{Events: evs, NextToken: envelope.NextToken}, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	body, err := c.getRaw(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return domain.Wrap(domain.KindMalformed, err, "decode response")
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, domain.E(domain.KindAuthFailed, "marketplace rejected token with status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("marketplace returned status %d for %s", resp.StatusCode, path)
	}
	return io.ReadAll(resp.Body)
}
