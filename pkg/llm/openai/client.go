package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/retry"
	"github.com/sashabaranov/go-openai"
)

const providerName = "openai"

// OpenAIClient implements interfaces.ChatModel for OpenAI compatible APIs.
// BindTools and WithConfig return modified copies; the receiver never changes.
type OpenAIClient struct {
	Client        *openai.Client
	Model         string
	config        openai.ClientConfig
	logger        logging.Logger
	retryExecutor *retry.Executor
	tools         []interfaces.Tool
	toolChoice    string
	runConfig     interfaces.RunConfig
}

var _ interfaces.ChatModel = (*OpenAIClient)(nil)

// Option represents an option for configuring the OpenAI client
type Option func(*OpenAIClient)

// WithModel sets the model for the OpenAI client
func WithModel(model string) Option {
	return func(c *OpenAIClient) {
		c.Model = model
	}
}

// WithLogger sets the logger for the OpenAI client
func WithLogger(logger logging.Logger) Option {
	return func(c *OpenAIClient) {
		c.logger = logger
	}
}

// WithRetry configures retry policy for the client
func WithRetry(opts ...retry.Option) Option {
	return func(c *OpenAIClient) {
		c.retryExecutor = retry.NewExecutor(retry.NewPolicy(opts...))
	}
}

// WithBaseURL points the client at a different OpenAI compatible endpoint
func WithBaseURL(baseURL string) Option {
	return func(c *OpenAIClient) {
		if baseURL != "" {
			c.config.BaseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *OpenAIClient) {
		c.config.HTTPClient = httpClient
	}
}

// NewClient creates a new OpenAI client
func NewClient(apiKey string, options ...Option) *OpenAIClient {
	client := &OpenAIClient{
		Model:  openai.GPT4oMini,
		config: openai.DefaultConfig(apiKey),
		logger: logging.New(),
	}

	for _, option := range options {
		option(client)
	}

	client.Client = openai.NewClientWithConfig(client.config)
	return client
}

// Name implements interfaces.ChatModel.Name
func (c *OpenAIClient) Name() string {
	return providerName
}

// ToMessages implements interfaces.ChatModel.ToMessages
func (c *OpenAIClient) ToMessages(input any) ([]interfaces.Message, error) {
	return llm.ToMessages(input)
}

// BindTools implements interfaces.ChatModel.BindTools
func (c *OpenAIClient) BindTools(tools []interfaces.Tool, options ...interfaces.CallOption) (interfaces.ChatModel, error) {
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
func (c *OpenAIClient) WithConfig(config interfaces.RunConfig) interfaces.ChatModel {
	configured := *c
	configured.runConfig = config
	return &configured
}

// Invoke implements interfaces.ChatModel.Invoke
func (c *OpenAIClient) Invoke(ctx context.Context, input any, options ...interfaces.CallOption) (*interfaces.Message, error) {
	req, err := c.buildRequest(input, options...)
	if err != nil {
		return nil, err
	}

	var resp openai.ChatCompletionResponse
	err = c.execute(ctx, func() error {
		c.logger.Debug(ctx, "Executing OpenAI API request", map[string]interface{}{
			"model":    c.Model,
			"messages": len(req.Messages),
			"tools":    len(req.Tools),
			"run_name": c.runConfig.RunName,
		})

		var callErr error
		resp, callErr = c.Client.CreateChatCompletion(ctx, req)
		if callErr != nil {
			c.logger.Error(ctx, "Error from OpenAI API", map[string]interface{}{
				"error": callErr.Error(),
				"model": c.Model,
			})
			return classify(callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completions returned")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, &llm.ContentFilterError{Provider: providerName, Message: "completion stopped by content filter"}
	}

	c.logger.Debug(ctx, "Successfully received response from OpenAI", map[string]interface{}{
		"model":      c.Model,
		"tool_calls": len(choice.Message.ToolCalls),
	})

	return fromOpenAIMessage(resp.ID, choice.Message), nil
}

// Stream implements interfaces.ChatModel.Stream
func (c *OpenAIClient) Stream(ctx context.Context, input any, options ...interfaces.CallOption) iter.Seq2[*interfaces.Chunk, error] {
	return func(yield func(*interfaces.Chunk, error) bool) {
		req, err := c.buildRequest(input, options...)
		if err != nil {
			yield(nil, err)
			return
		}
		req.Stream = true

		var stream *openai.ChatCompletionStream
		err = c.execute(ctx, func() error {
			var callErr error
			stream, callErr = c.Client.CreateChatCompletionStream(ctx, req)
			if callErr != nil {
				c.logger.Error(ctx, "Error opening OpenAI stream", map[string]interface{}{
					"error": callErr.Error(),
					"model": c.Model,
				})
				return classify(callErr)
			}
			return nil
		})
		if err != nil {
			yield(nil, err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, classify(err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			if choice.FinishReason == openai.FinishReasonContentFilter {
				yield(nil, &llm.ContentFilterError{Provider: providerName, Message: "stream stopped by content filter"})
				return
			}
			// Role-only deltas carry no text
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}

			chunk := &interfaces.Chunk{
				ID:           resp.ID,
				Content:      choice.Delta.Content,
				FinishReason: string(choice.FinishReason),
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (c *OpenAIClient) execute(ctx context.Context, operation func() error) error {
	if c.retryExecutor == nil {
		return operation()
	}

	c.logger.Debug(ctx, "Using retry mechanism for OpenAI request", map[string]interface{}{
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

func (c *OpenAIClient) buildRequest(input any, options ...interfaces.CallOption) (openai.ChatCompletionRequest, error) {
	messages, err := c.ToMessages(input)
	if err != nil {
		return openai.ChatCompletionRequest{}, fmt.Errorf("failed to convert input to messages: %w", err)
	}
	params := interfaces.ApplyCallOptions(options...)

	req := openai.ChatCompletionRequest{
		Model:    c.Model,
		Messages: toOpenAIMessages(messages),
		Stop:     params.StopSequences,
	}

	if c.runConfig.Temperature != nil {
		req.Temperature = float32(*c.runConfig.Temperature)
	}
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
	}

	req.MaxTokens = c.runConfig.MaxTokens
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}

	if len(c.tools) > 0 {
		req.Tools = toOpenAITools(c.tools)
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

// classify turns provider content filter rejections into llm.ContentFilterError
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && fmt.Sprint(apiErr.Code) == "content_filter" {
		return &llm.ContentFilterError{Provider: providerName, Message: apiErr.Message, Err: err}
	}
	return fmt.Errorf("failed to create chat completion: %w", err)
}

func retryable(err error) bool {
	if llm.IsContentFilter(err) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return true
}
