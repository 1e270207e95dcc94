// Package notify holds the notification-service client and the workflow
// identifiers it can trigger.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/signup-portal/internal/config"
	"github.com/ignite/signup-portal/internal/pkg/httpretry"
	"github.com/ignite/signup-portal/internal/pkg/logger"
)

const defaultBaseURL = "https://api.novu.co"

var (
	// ErrMissingAPIKey is returned by NewClient when no API key is supplied.
	ErrMissingAPIKey = errors.New("notify: api key is required")
	// ErrUnknownWorkflow is returned by Trigger for identifiers outside Workflows().
	ErrUnknownWorkflow = errors.New("notify: unknown workflow")
)

// APIError is a non-2xx answer from the notification service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notify: api returned %d: %s", e.StatusCode, e.Message)
}

// Recipient identifies who a workflow is triggered for.
type Recipient struct {
	SubscriberID string `json:"subscriberId"`
	Email        string `json:"email,omitempty"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
}

// TriggerResult is the service's acknowledgement of a trigger.
type TriggerResult struct {
	Acknowledged  bool   `json:"acknowledged"`
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

type triggerRequest struct {
	Name          WorkflowID     `json:"name"`
	TransactionID string         `json:"transactionId"`
	To            Recipient      `json:"to"`
	Payload       map[string]any `json:"payload,omitempty"`
}

type triggerResponse struct {
	Data    TriggerResult `json:"data"`
	Message string        `json:"message"`
}

// Client is bound to one API key for its whole lifetime. Construct it once
// at startup and share it; it holds no mutable state.
type Client struct {
	apiKey  string
	baseURL string
	http    httpretry.HTTPDoer
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient replaces the transport used for API calls.
func WithHTTPClient(doer httpretry.HTTPDoer) Option {
	return func(c *Client) { c.http = doer }
}

// NewClient creates a client bound to apiKey. An empty key is an error:
// no client is returned.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3)
	}
	return c, nil
}

// NewClientFromConfig creates the client from the notification config block.
func NewClientFromConfig(cfg config.NotificationConfig) (*Client, error) {
	doer := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.Retries())
	opts := []Option{WithHTTPClient(doer)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	client, err := NewClient(cfg.APIKey, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("notification client ready", "base_url", client.baseURL, "max_retries", cfg.Retries())
	return client, nil
}

// APIKey returns the key the client is bound to.
func (c *Client) APIKey() string {
	return c.apiKey
}

// Trigger starts workflow for the recipient with the given payload.
func (c *Client) Trigger(ctx context.Context, workflow WorkflowID, to Recipient, payload map[string]any) (*TriggerResult, error) {
	if !workflow.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, string(workflow))
	}

	// One transaction id per call; retries resend the same body so the
	// service can drop duplicates.
	body, err := json.Marshal(triggerRequest{
		Name:          workflow,
		TransactionID: uuid.New().String(),
		To:            to,
		Payload:       payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding trigger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/events/trigger", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating trigger request: %w", err)
	}
	req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("triggering workflow %s: %w", workflow, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading trigger response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var parsed triggerResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Message != "" {
			apiErr.Message = parsed.Message
		}
		return nil, apiErr
	}

	var parsed triggerResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding trigger response: %w", err)
	}

	logger.Info("notification workflow triggered",
		"workflow", workflow, "subscriber_id", to.SubscriberID,
		"transaction_id", parsed.Data.TransactionID, "status", parsed.Data.Status)
	return &parsed.Data, nil
}
