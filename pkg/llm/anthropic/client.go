package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/retry"
)

const (
	providerName     = "anthropic"
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 2048
)

// AnthropicClient implements interfaces.ChatModel over the Anthropic messages API
type AnthropicClient struct {
	APIKey        string
	Model         string
	BaseURL       string
	HTTPClient    *http.Client
	logger        logging.Logger
	retryExecutor *retry.Executor
	tools         []interfaces.Tool
	toolChoice    string
	runConfig     interfaces.RunConfig
}

var _ interfaces.ChatModel = (*AnthropicClient)(nil)

// Option represents an option for configuring the Anthropic client
type Option func(*AnthropicClient)

// WithModel sets the model for the Anthropic client
func WithModel(model string) Option {
	return func(c *AnthropicClient) {
		c.Model = model
	}
}

// WithLogger sets the logger for the Anthropic client
func WithLogger(logger logging.Logger) Option {
	return func(c *AnthropicClient) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) Option {
	return func(c *AnthropicClient) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// WithBaseURL sets the base URL for the Anthropic API
func WithBaseURL(baseURL string) Option {
	return func(c *AnthropicClient) {
		c.BaseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the Anthropic client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *AnthropicClient) {
		c.HTTPClient = httpClient
	}
}

// NewClient creates a new Anthropic client
func NewClient(apiKey string, options ...Option) *AnthropicClient {
	client := &AnthropicClient{
		APIKey:     apiKey,
		Model:      Claude37Sonnet,
		BaseURL:    "https://api.anthropic.com",
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// APIError is a non-200 reply from the Anthropic API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("error from Anthropic API (status %d): %s", e.StatusCode, e.Body)
}

// Name implements interfaces.ChatModel.Name
func (c *AnthropicClient) Name() string {
	return providerName
}

// ToMessages implements interfaces.ChatModel.ToMessages
func (c *AnthropicClient) ToMessages(input any) ([]interfaces.Message, error) {
	return llm.ToMessages(input)
}

// BindTools implements interfaces.ChatModel.BindTools
func (c *AnthropicClient) BindTools(tools []interfaces.Tool, options ...interfaces.CallOption) (interfaces.ChatModel, error) {
	for i, tool := range tools {
		if tool == nil || tool.Name() == "" {
			return nil, fmt.Errorf("tool %d has no name", i)
		}
	}

	bound := *c
	bound.tools = append([]interfaces.Tool(nil), tools...)
	if params := interfaces.ApplyCallOptions(options...); params.ToolChoice != "" {
		bound.toolChoice = params.ToolChoice
	}
	return &bound, nil
}

// WithConfig implements interfaces.ChatModel.WithConfig
func (c *AnthropicClient) WithConfig(config interfaces.RunConfig) interfaces.ChatModel {
	configured := *c
	configured.runConfig = config
	return &configured
}

// Invoke implements interfaces.ChatModel.Invoke
func (c *AnthropicClient) Invoke(ctx context.Context, input any, options ...interfaces.CallOption) (*interfaces.Message, error) {
	req, err := c.buildRequest(input, options...)
	if err != nil {
		return nil, err
	}

	var resp CompletionResponse
	err = c.execute(ctx, func() error {
		c.logger.Debug(ctx, "Executing Anthropic API request", map[string]interface{}{
			"model":    c.Model,
			"messages": len(req.Messages),
			"tools":    len(req.Tools),
			"system":   req.System != "",
			"run_name": c.runConfig.RunName,
		})

		httpResp, err := c.send(ctx, req)
		if err != nil {
			return err
		}
		defer c.closeBody(ctx, httpResp)

		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if resp.StopReason == stopReasonRefusal {
		return nil, &llm.ContentFilterError{Provider: providerName, Message: "model refused to respond"}
	}

	c.logger.Debug(ctx, "Successfully received response from Anthropic", map[string]interface{}{
		"model":       c.Model,
		"stop_reason": resp.StopReason,
	})

	return fromCompletion(&resp), nil
}

// Stream implements interfaces.ChatModel.Stream
func (c *AnthropicClient) Stream(ctx context.Context, input any, options ...interfaces.CallOption) iter.Seq2[*interfaces.Chunk, error] {
	return func(yield func(*interfaces.Chunk, error) bool) {
		req, err := c.buildRequest(input, options...)
		if err != nil {
			yield(nil, err)
			return
		}
		req.Stream = true

		var httpResp *http.Response
		err = c.execute(ctx, func() error {
			var sendErr error
			httpResp, sendErr = c.send(ctx, req)
			return sendErr
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer c.closeBody(ctx, httpResp)

		var messageID string
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}

			var event streamEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
				yield(nil, fmt.Errorf("failed to decode stream event: %w", err))
				return
			}

			switch event.Type {
			case "message_start":
				if event.Message != nil {
					messageID = event.Message.ID
				}
			case "content_block_delta":
				if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
					continue
				}
				if !yield(&interfaces.Chunk{ID: messageID, Content: event.Delta.Text}, nil) {
					return
				}
			case "message_delta":
				if event.Delta.StopReason == stopReasonRefusal {
					yield(nil, &llm.ContentFilterError{Provider: providerName, Message: "model refused to respond"})
					return
				}
			case "error":
				msg := "stream error"
				if event.Error != nil {
					msg = event.Error.Type + ": " + event.Error.Message
				}
				yield(nil, fmt.Errorf("error from Anthropic stream: %s", msg))
				return
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, fmt.Errorf("failed to read stream: %w", err))
		}
	}
}

// send posts req and returns the response when the status is 200
func (c *AnthropicClient) send(ctx context.Context, req CompletionRequest) (*http.Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.BaseURL, "/")+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.APIKey)
	httpReq.Header.Set("Anthropic-Version", apiVersion)

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		c.logger.Error(ctx, "Error from Anthropic API", map[string]interface{}{
			"error": err.Error(),
			"model": c.Model,
		})
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer c.closeBody(ctx, httpResp)
		body, _ := io.ReadAll(httpResp.Body)
		c.logger.Error(ctx, "Error from Anthropic API", map[string]interface{}{
			"status_code": httpResp.StatusCode,
			"response":    string(body),
			"model":       c.Model,
		})
		return nil, &APIError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	return httpResp, nil
}

func (c *AnthropicClient) closeBody(ctx context.Context, resp *http.Response) {
	if closeErr := resp.Body.Close(); closeErr != nil {
		c.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{
			"error": closeErr.Error(),
		})
	}
}

func (c *AnthropicClient) execute(ctx context.Context, operation func() error) error {
	if c.retryExecutor == nil {
		return operation()
	}

	c.logger.Debug(ctx, "Using retry mechanism for Anthropic request", map[string]interface{}{
		"model": c.Model,
	})
	return c.retryExecutor.Execute(ctx, func() error {
		err := operation()
		if err != nil && !retryable(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *AnthropicClient) buildRequest(input any, options ...interfaces.CallOption) (CompletionRequest, error) {
	messages, err := c.ToMessages(input)
	if err != nil {
		return CompletionRequest{}, fmt.Errorf("failed to convert input to messages: %w", err)
	}
	params := interfaces.ApplyCallOptions(options...)

	system, converted := toAnthropicMessages(messages)
	req := CompletionRequest{
		Model:         c.Model,
		Messages:      converted,
		System:        system,
		MaxTokens:     defaultMaxTokens,
		Temperature:   c.runConfig.Temperature,
		StopSequences: params.StopSequences,
	}

	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if c.runConfig.MaxTokens > 0 {
		req.MaxTokens = c.runConfig.MaxTokens
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}

	if len(c.tools) > 0 {
		req.Tools = toAnthropicTools(c.tools)
		choice := c.toolChoice
		if params.ToolChoice != "" {
			choice = params.ToolChoice
		}
		if choice != "" {
			req.ToolChoice = toolChoice(choice)
		}
	}

	return req, nil
}

// retryable allows rate limits, overload and server errors
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}
