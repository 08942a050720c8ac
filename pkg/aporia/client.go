package aporia

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

	"github.com/run-bigpig/llm-guardrails/pkg/logging"
)

// DefaultBaseURL is the production guardrails endpoint
const DefaultBaseURL = "https://gr-prd.aporia.com"

// APIKeyHeader carries the project API key on every request
const APIKeyHeader = "X-APORIA-API-KEY"

// Client calls the guardrails validate endpoint of a single project
type Client struct {
	ProjectID  string
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	logger     logging.Logger
}

// Option represents an option for configuring the client
type Option func(*Client)

// WithBaseURL overrides the service base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.BaseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client used for validation requests
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client for the given project
func NewClient(projectID, apiKey string, options ...Option) (*Client, error) {
	if projectID == "" {
		return nil, ErrMissingProjectID
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	client := &Client{
		ProjectID:  projectID,
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client, nil
}

// Endpoint returns the validate URL with trailing slashes of the base removed
func (c *Client) Endpoint() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + c.ProjectID + "/validate"
}

// Validate submits req and returns the service decision. Failures are never retried.
func (c *Client) Validate(ctx context.Context, req *ValidationRequest) (*ValidationResponse, error) {
	if req.Messages == nil {
		req.Messages = []Message{}
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal validation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create validation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(APIKeyHeader, c.APIKey)

	c.logger.Debug(ctx, "Sending validation request", map[string]interface{}{
		"project_id": c.ProjectID,
		"target":     req.ValidationTarget,
		"messages":   len(req.Messages),
		"response":   len(req.Response),
	})

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		c.logger.Error(ctx, "Error calling guardrails service", map[string]interface{}{
			"error":      err.Error(),
			"project_id": c.ProjectID,
		})
		return nil, fmt.Errorf("failed to send validation request: %w", err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{
				"error": closeErr.Error(),
			})
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read validation response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		c.logger.Error(ctx, "Guardrails service returned an error", map[string]interface{}{
			"status_code": httpResp.StatusCode,
			"project_id":  c.ProjectID,
		})
		return nil, &TransportError{
			StatusCode: httpResp.StatusCode,
			Status:     http.StatusText(httpResp.StatusCode),
			Body:       string(respBody),
		}
	}

	var resp ValidationResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			return nil, schemaErr
		}
		return nil, &SchemaError{Reason: "malformed JSON", Err: err}
	}

	c.logger.Debug(ctx, "Received validation decision", map[string]interface{}{
		"target":  req.ValidationTarget,
		"action":  resp.Action,
		"revised": resp.RevisedResponse != nil,
	})

	return &resp, nil
}

// Validate is a one-shot helper that builds a client and validates a single exchange.
// An empty baseURL selects DefaultBaseURL.
func Validate(ctx context.Context, projectID, apiKey string, messages []Message, response string, target Target, baseURL string) (*ValidationResponse, error) {
	client, err := NewClient(projectID, apiKey, WithBaseURL(baseURL), WithLogger(logging.NewNop()))
	if err != nil {
		return nil, err
	}
	return client.Validate(ctx, &ValidationRequest{
		Messages:         messages,
		Response:         response,
		ValidationTarget: target,
	})
}
