package tracing

import (
	"context"
	"fmt"
	"iter"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"go.opentelemetry.io/otel/attribute"
)

// ChatModelOTelMiddleware wraps a ChatModel with OpenTelemetry tracing
type ChatModelOTelMiddleware struct {
	model  interfaces.ChatModel
	tracer *OTelTracer
}

var _ interfaces.ChatModel = (*ChatModelOTelMiddleware)(nil)

// NewChatModelOTelMiddleware creates a new ChatModelOTelMiddleware
func NewChatModelOTelMiddleware(model interfaces.ChatModel, tracer *OTelTracer) *ChatModelOTelMiddleware {
	return &ChatModelOTelMiddleware{
		model:  model,
		tracer: tracer,
	}
}

// Invoke implements interfaces.ChatModel.Invoke
func (m *ChatModelOTelMiddleware) Invoke(ctx context.Context, input any, options ...interfaces.CallOption) (*interfaces.Message, error) {
	ctx, span := m.tracer.StartSpan(ctx, "llm.invoke", map[string]string{
		"model": m.model.Name(),
	})

	resp, err := m.model.Invoke(ctx, input, options...)
	if err == nil && resp != nil {
		span.SetAttributes(
			attribute.Int("response.length", len(resp.Content)),
			attribute.Int("response.tool_calls", len(resp.ToolCalls)),
		)
	}
	m.tracer.EndSpan(span, err)

	return resp, err
}

// Stream implements interfaces.ChatModel.Stream; the span covers the whole iteration
func (m *ChatModelOTelMiddleware) Stream(ctx context.Context, input any, options ...interfaces.CallOption) iter.Seq2[*interfaces.Chunk, error] {
	return func(yield func(*interfaces.Chunk, error) bool) {
		ctx, span := m.tracer.StartSpan(ctx, "llm.stream", map[string]string{
			"model": m.model.Name(),
		})

		var (
			chunks    int
			length    int
			streamErr error
		)
		defer func() {
			span.SetAttributes(
				attribute.Int("stream.chunks", chunks),
				attribute.Int("response.length", length),
			)
			m.tracer.EndSpan(span, streamErr)
		}()

		for chunk, err := range m.model.Stream(ctx, input, options...) {
			if err != nil {
				streamErr = err
			} else if chunk != nil {
				chunks++
				length += len(chunk.Content)
			}
			if !yield(chunk, err) {
				return
			}
		}
	}
}

// BindTools implements interfaces.ChatModel.BindTools
func (m *ChatModelOTelMiddleware) BindTools(tools []interfaces.Tool, options ...interfaces.CallOption) (interfaces.ChatModel, error) {
	_, span := m.tracer.StartSpan(context.Background(), "llm.bind_tools", map[string]string{
		"tools.count": fmt.Sprintf("%d", len(tools)),
	})
	bound, err := m.model.BindTools(tools, options...)
	m.tracer.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	return NewChatModelOTelMiddleware(bound, m.tracer), nil
}

// WithConfig implements interfaces.ChatModel.WithConfig
func (m *ChatModelOTelMiddleware) WithConfig(config interfaces.RunConfig) interfaces.ChatModel {
	return NewChatModelOTelMiddleware(m.model.WithConfig(config), m.tracer)
}

// ToMessages implements interfaces.ChatModel.ToMessages
func (m *ChatModelOTelMiddleware) ToMessages(input any) ([]interfaces.Message, error) {
	return m.model.ToMessages(input)
}

// Name implements interfaces.ChatModel.Name
func (m *ChatModelOTelMiddleware) Name() string {
	return m.model.Name()
}
