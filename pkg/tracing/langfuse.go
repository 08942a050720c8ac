package tracing

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/henomis/langfuse-go"
	"github.com/henomis/langfuse-go/model"
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
)

// LangfuseTracer records model generations in Langfuse
type LangfuseTracer struct {
	client      *langfuse.Langfuse
	enabled     bool
	environment string
	logger      logging.Logger
}

// LangfuseConfig contains configuration for Langfuse. The client itself reads
// LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY from the environment.
type LangfuseConfig struct {
	// Enabled determines whether Langfuse tracing is enabled
	Enabled bool `yaml:"enabled"`

	// Environment is the environment name (e.g., "production", "staging")
	Environment string `yaml:"environment"`
}

// NewLangfuseTracer creates a new Langfuse tracer
func NewLangfuseTracer(config LangfuseConfig, logger logging.Logger) *LangfuseTracer {
	if logger == nil {
		logger = logging.New()
	}
	if !config.Enabled {
		return &LangfuseTracer{enabled: false, logger: logger}
	}

	return &LangfuseTracer{
		client:      langfuse.New(context.Background()),
		enabled:     true,
		environment: config.Environment,
		logger:      logger,
	}
}

// Enabled reports whether generations are sent to Langfuse
func (t *LangfuseTracer) Enabled() bool {
	return t.enabled
}

// TraceGeneration traces a model generation
func (t *LangfuseTracer) TraceGeneration(ctx context.Context, modelName string, input []interfaces.Message, output string, startTime, endTime time.Time, metadata map[string]interface{}) (string, error) {
	if !t.enabled {
		return "", nil
	}

	metadataM := model.M{"environment": t.environment}
	for k, v := range metadata {
		metadataM[k] = v
	}
	if requestID, ok := ctx.Value(logging.RequestIDKey).(string); ok {
		metadataM["request_id"] = requestID
	}

	inputM := make([]model.M, len(input))
	for i, msg := range input {
		inputM[i] = model.M{"role": string(msg.Role), "content": msg.Content}
	}

	generation := &model.Generation{
		Name:      fmt.Sprintf("generation-%d", startTime.UnixNano()),
		StartTime: &startTime,
		EndTime:   &endTime,
		Model:     modelName,
		Input:     inputM,
		Output:    model.M{"completion": output},
		Metadata:  metadataM,
	}

	var id string
	created, err := t.client.Generation(generation, &id)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse generation: %w", err)
	}
	return created.ID, nil
}

// TraceError records a failed generation as an error event
func (t *LangfuseTracer) TraceError(ctx context.Context, name string, input []interfaces.Message, callErr error) (string, error) {
	if !t.enabled {
		return "", nil
	}

	event := &model.Event{
		Name:  name,
		Input: input,
		Level: model.ObservationLevel("ERROR"),
		Metadata: map[string]interface{}{
			"environment": t.environment,
			"error":       callErr.Error(),
		},
	}

	var id string
	created, err := t.client.Event(event, &id)
	if err != nil {
		return "", fmt.Errorf("failed to create Langfuse event: %w", err)
	}
	return created.ID, nil
}

// Flush sends buffered observations
func (t *LangfuseTracer) Flush(ctx context.Context) {
	if !t.enabled {
		return
	}
	t.client.Flush(ctx)
}

func (t *LangfuseTracer) record(ctx context.Context, modelName string, input []interfaces.Message, output string, start time.Time, callErr error, metadata map[string]interface{}) {
	var err error
	if callErr != nil {
		_, err = t.TraceError(ctx, "llm_error", input, callErr)
	} else {
		_, err = t.TraceGeneration(ctx, modelName, input, output, start, time.Now(), metadata)
	}
	if err != nil {
		t.logger.Warn(ctx, "Failed to trace generation", map[string]interface{}{"error": err.Error()})
	}
}

// ChatModelLangfuseMiddleware records every call of a ChatModel as a Langfuse generation
type ChatModelLangfuseMiddleware struct {
	model  interfaces.ChatModel
	tracer *LangfuseTracer
}

var _ interfaces.ChatModel = (*ChatModelLangfuseMiddleware)(nil)

// NewChatModelLangfuseMiddleware creates a new ChatModelLangfuseMiddleware
func NewChatModelLangfuseMiddleware(model interfaces.ChatModel, tracer *LangfuseTracer) *ChatModelLangfuseMiddleware {
	return &ChatModelLangfuseMiddleware{model: model, tracer: tracer}
}

// Invoke implements interfaces.ChatModel.Invoke
func (m *ChatModelLangfuseMiddleware) Invoke(ctx context.Context, input any, options ...interfaces.CallOption) (*interfaces.Message, error) {
	start := time.Now()
	resp, err := m.model.Invoke(ctx, input, options...)

	if m.tracer.Enabled() {
		messages, _ := m.model.ToMessages(input)
		var output string
		if resp != nil {
			output = resp.Content
		}
		m.tracer.record(ctx, m.model.Name(), messages, output, start, err, map[string]interface{}{"mode": "invoke"})
	}

	return resp, err
}

// Stream implements interfaces.ChatModel.Stream; the generation is recorded when the stream ends
func (m *ChatModelLangfuseMiddleware) Stream(ctx context.Context, input any, options ...interfaces.CallOption) iter.Seq2[*interfaces.Chunk, error] {
	if !m.tracer.Enabled() {
		return m.model.Stream(ctx, input, options...)
	}

	return func(yield func(*interfaces.Chunk, error) bool) {
		start := time.Now()
		var (
			output    strings.Builder
			chunks    int
			streamErr error
		)
		defer func() {
			messages, _ := m.model.ToMessages(input)
			m.tracer.record(ctx, m.model.Name(), messages, output.String(), start, streamErr, map[string]interface{}{
				"mode":   "stream",
				"chunks": chunks,
			})
		}()

		for chunk, err := range m.model.Stream(ctx, input, options...) {
			if err != nil {
				streamErr = err
			} else if chunk != nil {
				chunks++
				output.WriteString(chunk.Content)
			}
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// BindTools implements interfaces.ChatModel.BindTools
func (m *ChatModelLangfuseMiddleware) BindTools(tools []interfaces.Tool, options ...interfaces.CallOption) (interfaces.ChatModel, error) {
	bound, err := m.model.BindTools(tools, options...)
	if err != nil {
		return nil, err
	}
	return NewChatModelLangfuseMiddleware(bound, m.tracer), nil
}

// WithConfig implements interfaces.ChatModel.WithConfig
func (m *ChatModelLangfuseMiddleware) WithConfig(config interfaces.RunConfig) interfaces.ChatModel {
	return NewChatModelLangfuseMiddleware(m.model.WithConfig(config), m.tracer)
}

// ToMessages implements interfaces.ChatModel.ToMessages
func (m *ChatModelLangfuseMiddleware) ToMessages(input any) ([]interfaces.Message, error) {
	return m.model.ToMessages(input)
}

// Name implements interfaces.ChatModel.Name
func (m *ChatModelLangfuseMiddleware) Name() string {
	return m.model.Name()
}
