package interfaces

import (
	"context"
	"iter"
)

// ChatModel represents a conversational language model client
type ChatModel interface {
	// Invoke sends the input to the model and returns the final assistant message
	Invoke(ctx context.Context, input any, options ...CallOption) (*Message, error)

	// Stream sends the input to the model and yields the response incrementally.
	// The sequence is lazy: breaking out of it stops reading from the model.
	Stream(ctx context.Context, input any, options ...CallOption) iter.Seq2[*Chunk, error]

	// BindTools returns a derivative model that may call the given tools
	BindTools(tools []Tool, options ...CallOption) (ChatModel, error)

	// WithConfig returns a derivative model with the run configuration applied
	WithConfig(config RunConfig) ChatModel

	// ToMessages normalizes an arbitrary call input into a message sequence
	ToMessages(input any) ([]Message, error)

	// Name returns the name of the model provider
	Name() string
}

// CallOption represents an option for a single model call
type CallOption func(options *CallOptions)

// CallOptions contains per-call configuration
type CallOptions struct {
	Temperature   *float64 // Sampling temperature
	MaxTokens     int      // Upper bound on generated tokens
	StopSequences []string // Stop generation at these sequences
	ToolChoice    string   // "auto", "none", "required" or a tool name
}

// WithTemperature sets the sampling temperature for a call
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &temperature
	}
}

// WithMaxTokens sets the maximum number of tokens to generate
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithStopSequences sets the stop sequences for a call
func WithStopSequences(stop ...string) CallOption {
	return func(o *CallOptions) {
		o.StopSequences = stop
	}
}

// WithToolChoice controls how the model picks bound tools
func WithToolChoice(choice string) CallOption {
	return func(o *CallOptions) {
		o.ToolChoice = choice
	}
}

// ApplyCallOptions folds options over an empty CallOptions
func ApplyCallOptions(options ...CallOption) *CallOptions {
	params := &CallOptions{}
	for _, opt := range options {
		if opt != nil {
			opt(params)
		}
	}
	return params
}

// RunConfig is the configuration applied by ChatModel.WithConfig
type RunConfig struct {
	RunName     string
	Tags        []string
	Metadata    map[string]string
	Temperature *float64
	MaxTokens   int
}
