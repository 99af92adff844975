package deallinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Dealline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Campaign is the API campaign model.
type Campaign struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Engagement is the API engagement model.
type Engagement struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	CreatorID  string `json:"creator_id"`
	State      string `json:"state"`
	Version    int64  `json:"version"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// PaymentIntent is the API payment intent model.
type PaymentIntent struct {
	ID           string `json:"id"`
	EngagementID string `json:"engagement_id"`
	Version      int64  `json:"version"`
	AmountCents  int64  `json:"amount_cents"`
	Status       string `json:"status"`
	ProcessorRef string `json:"processor_ref,omitempty"`
	Attempts     int    `json:"attempts"`
	LastError    string `json:"last_error,omitempty"`
}

// Event is one transition ledger entry.
type Event struct {
	ID           int64          `json:"id"`
	EngagementID string         `json:"engagement_id"`
	Transition   string         `json:"transition"`
	PriorState   string         `json:"prior_state,omitempty"`
	NewState     string         `json:"new_state"`
	Version      int64          `json:"version"`
	ActorID      string         `json:"actor_id"`
	TS           string         `json:"ts"`
	Payload      map[string]any `json:"payload"`
}

// TransitionOptions carries the optional transition payload.
type TransitionOptions struct {
	ContentRef  string `json:"content_ref,omitempty"`
	AmountCents int64  `json:"amount_cents,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCampaign creates a campaign owned by the authenticated actor.
func (c *Client) CreateCampaign(ctx context.Context, id, name string) (Campaign, error) {
	var resp Campaign
	err := c.do(ctx, http.MethodPost, "v1/campaigns", map[string]any{"id": id, "name": name}, &resp)
	return resp, err
}

// Apply creates an engagement for a creator on a campaign.
func (c *Client) Apply(ctx context.Context, campaignID, creatorID string) (Engagement, error) {
	var resp Engagement
	endpoint := fmt.Sprintf("v1/campaigns/%s/engagements", url.PathEscape(campaignID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"creator_id": creatorID}, &resp)
	return resp, err
}

// GetEngagement fetches an engagement by id.
func (c *Client) GetEngagement(ctx context.Context, id string) (Engagement, error) {
	var resp Engagement
	endpoint := fmt.Sprintf("v1/engagements/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Transition applies a lifecycle transition at the given version.
func (c *Client) Transition(ctx context.Context, engagementID, name string, expectedVersion int64, opts TransitionOptions) (Engagement, error) {
	body := map[string]any{
		"transition":       name,
		"expected_version": expectedVersion,
	}
	if opts.ContentRef != "" {
		body["content_ref"] = opts.ContentRef
	}
	if opts.AmountCents != 0 {
		body["amount_cents"] = opts.AmountCents
	}
	if opts.Notes != "" {
		body["notes"] = opts.Notes
	}
	var resp Engagement
	endpoint := fmt.Sprintf("v1/engagements/%s/transitions", url.PathEscape(engagementID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns an engagement's full transition history.
func (c *Client) Events(ctx context.Context, engagementID string) ([]Event, error) {
	var resp []Event
	endpoint := fmt.Sprintf("v1/engagements/%s/events", url.PathEscape(engagementID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetIntent fetches a payment intent by id.
func (c *Client) GetIntent(ctx context.Context, id string) (PaymentIntent, error) {
	var resp PaymentIntent
	endpoint := fmt.Sprintf("v1/intents/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ReleaseIntent submits a pending intent to the processor.
func (c *Client) ReleaseIntent(ctx context.Context, id string) (PaymentIntent, error) {
	var resp PaymentIntent
	endpoint := fmt.Sprintf("v1/intents/%s/release", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
