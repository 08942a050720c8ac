package tracing

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubModel struct {
	reply  string
	chunks []string
	err    error
}

func (s *stubModel) Invoke(ctx context.Context, input any, options ...interfaces.CallOption) (*interfaces.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &interfaces.Message{Role: interfaces.RoleAssistant, Content: s.reply}, nil
}

func (s *stubModel) Stream(ctx context.Context, input any, options ...interfaces.CallOption) iter.Seq2[*interfaces.Chunk, error] {
	return func(yield func(*interfaces.Chunk, error) bool) {
		for _, c := range s.chunks {
			if !yield(&interfaces.Chunk{Content: c}, nil) {
				return
			}
		}
	}
}

func (s *stubModel) BindTools(tools []interfaces.Tool, options ...interfaces.CallOption) (interfaces.ChatModel, error) {
	return s, nil
}

func (s *stubModel) WithConfig(config interfaces.RunConfig) interfaces.ChatModel {
	return s
}

func (s *stubModel) ToMessages(input any) ([]interfaces.Message, error) {
	return llm.ToMessages(input)
}

func (s *stubModel) Name() string {
	return "stub"
}

func newRecordingTracer() (*OTelTracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewOTelTracerFromProvider(provider, "test"), recorder
}

func TestOTelMiddlewareInvoke(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	model := NewChatModelOTelMiddleware(&stubModel{reply: "hello"}, tracer)

	ctx := logging.WithContext(context.Background(), "req-9")
	resp, err := model.Invoke(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.invoke", spans[0].Name())

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "stub", attrs["model"])
	assert.Equal(t, "req-9", attrs["request_id"])
	assert.Equal(t, "5", attrs["response.length"])
}

func TestOTelMiddlewareRecordsErrors(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	boom := errors.New("boom")
	model := NewChatModelOTelMiddleware(&stubModel{err: boom}, tracer)

	_, err := model.Invoke(context.Background(), "hi")
	assert.ErrorIs(t, err, boom)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestOTelMiddlewareStream(t *testing.T) {
	tracer, recorder := newRecordingTracer()
	model := NewChatModelOTelMiddleware(&stubModel{chunks: []string{"a", "bc", "d"}}, tracer)

	var got []string
	for chunk, err := range model.Stream(context.Background(), "hi") {
		require.NoError(t, err)
		got = append(got, chunk.Content)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "bc"}, got)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.stream", spans[0].Name())
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "stream.chunks" {
			assert.Equal(t, int64(2), kv.Value.AsInt64())
		}
	}
}

func TestOTelMiddlewareDerivatives(t *testing.T) {
	tracer, _ := newRecordingTracer()
	model := NewChatModelOTelMiddleware(&stubModel{}, tracer)

	bound, err := model.BindTools(nil)
	require.NoError(t, err)
	assert.IsType(t, &ChatModelOTelMiddleware{}, bound)
	assert.IsType(t, &ChatModelOTelMiddleware{}, model.WithConfig(interfaces.RunConfig{}))
	assert.Equal(t, "stub", bound.Name())
}

func TestDisabledTracers(t *testing.T) {
	otelTracer, err := NewOTelTracer(OTelConfig{Enabled: false, ServiceName: "svc"})
	require.NoError(t, err)
	_, span := otelTracer.StartSpan(context.Background(), "noop", nil)
	otelTracer.EndSpan(span, nil)
	assert.NoError(t, otelTracer.Shutdown(context.Background()))

	lf := NewLangfuseTracer(LangfuseConfig{Enabled: false}, logging.NewNop())
	assert.False(t, lf.Enabled())

	model := NewChatModelLangfuseMiddleware(&stubModel{reply: "x", chunks: []string{"1", "2"}}, lf)
	resp, err := model.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "x", resp.Content)

	var got []string
	for chunk, err := range model.Stream(context.Background(), "hi") {
		require.NoError(t, err)
		got = append(got, chunk.Content)
	}
	assert.Equal(t, []string{"1", "2"}, got)

	id, err := lf.TraceGeneration(context.Background(), "stub", nil, "x", time.Now(), time.Now(), nil)
	assert.NoError(t, err)
	assert.Empty(t, id)
}
