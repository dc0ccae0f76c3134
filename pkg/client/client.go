package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/naveenspark/grimora-push/pkg/domain"
)

// DefaultSyncPath is the subscription endpoint path on the API host.
const DefaultSyncPath = "/api/push-subscriptions"

// Client is the push subscription API client.
type Client struct {
	baseURL    string
	token      string
	syncPath   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithSyncPath sets the subscription endpoint path. The default is DefaultSyncPath.
func WithSyncPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.syncPath = path
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a new API client.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		token:    token,
		syncPath: DefaultSyncPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubscriptionKeys carries the subscription's key material, standard base64 encoded.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscriptionPayload is the wire form of a push subscription.
type SubscriptionPayload struct {
	Endpoint string           `json:"endpoint"`
	Keys     SubscriptionKeys `json:"keys"`
}

// SaveRequest is the body posted to the subscription endpoint.
type SaveRequest struct {
	Operation    string              `json:"operation"`
	UserID       string              `json:"user_id"`
	Subscription SubscriptionPayload `json:"subscription"`
}

// SyncResponse is the subscription endpoint's reply.
type SyncResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewSaveRequest builds the save payload for sub. Key material is encoded
// with standard (padded) base64, which is what the endpoint decodes.
func NewSaveRequest(userID string, sub domain.Subscription) SaveRequest {
	return SaveRequest{
		Operation: "save",
		UserID:    userID,
		Subscription: SubscriptionPayload{
			Endpoint: sub.Endpoint,
			Keys: SubscriptionKeys{
				P256dh: base64.StdEncoding.EncodeToString(sub.P256dh),
				Auth:   base64.StdEncoding.EncodeToString(sub.Auth),
			},
		},
	}
}

// Persist stores sub for userID. The endpoint keys records by user and
// endpoint, so repeating the call overwrites. There is a single attempt.
func (c *Client) Persist(ctx context.Context, userID string, sub domain.Subscription) error {
	var resp SyncResponse
	if err := c.post(ctx, c.syncPath, NewSaveRequest(userID, sub), &resp); err != nil {
		return fmt.Errorf("client.Persist: %w", err)
	}
	if resp.Status != "success" {
		return fmt.Errorf("client.Persist: %w", &SyncError{Status: resp.Status, Message: resp.Message})
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	return c.doRequest(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode >= 400 {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB max error body
		if readErr != nil {
			return &HTTPError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read body: %v", readErr)}
		}
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil {
			if apiErr.Error != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Error}
			}
			if apiErr.Message != "" {
				return &HTTPError{StatusCode: resp.StatusCode, Message: apiErr.Message}
			}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
