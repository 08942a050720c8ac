package guardrails_test

import (
	"context"
	"iter"
	"sync"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
)

// fakeModel is a scripted chat model that records how it was used
type fakeModel struct {
	name      string
	reply     string
	invokeErr error
	chunks    []string
	streamErr error
	// failAfter yields streamErr after this many chunks when > 0
	failAfter int

	invokeCalls int
	streamCalls int
	consumed    int
	inputs      []any
	tools       []interfaces.Tool
	runConfig   *interfaces.RunConfig
}

func (m *fakeModel) Invoke(ctx context.Context, input any, options ...interfaces.CallOption) (*interfaces.Message, error) {
	m.invokeCalls++
	m.inputs = append(m.inputs, input)
	if m.invokeErr != nil {
		return nil, m.invokeErr
	}
	return &interfaces.Message{ID: "msg-1", Role: interfaces.RoleAssistant, Content: m.reply}, nil
}

func (m *fakeModel) Stream(ctx context.Context, input any, options ...interfaces.CallOption) iter.Seq2[*interfaces.Chunk, error] {
	m.streamCalls++
	m.inputs = append(m.inputs, input)
	return func(yield func(*interfaces.Chunk, error) bool) {
		if m.streamErr != nil && m.failAfter == 0 {
			yield(nil, m.streamErr)
			return
		}
		for i, c := range m.chunks {
			if m.streamErr != nil && i == m.failAfter {
				yield(nil, m.streamErr)
				return
			}
			m.consumed++
			if !yield(&interfaces.Chunk{Content: c}, nil) {
				return
			}
		}
	}
}

func (m *fakeModel) BindTools(tools []interfaces.Tool, options ...interfaces.CallOption) (interfaces.ChatModel, error) {
	return &fakeModel{name: m.name + "+tools", reply: m.reply, chunks: m.chunks, tools: tools}, nil
}

func (m *fakeModel) WithConfig(config interfaces.RunConfig) interfaces.ChatModel {
	return &fakeModel{name: m.name + "+config", reply: m.reply, chunks: m.chunks, runConfig: &config}
}

func (m *fakeModel) ToMessages(input any) ([]interfaces.Message, error) {
	return llm.ToMessages(input)
}

func (m *fakeModel) Name() string {
	return m.name
}

type weatherTool struct{}

func (weatherTool) Name() string        { return "weather" }
func (weatherTool) Description() string { return "Look up the weather" }
func (weatherTool) Parameters() map[string]interfaces.ParameterSpec {
	return map[string]interfaces.ParameterSpec{"city": {Type: "string", Required: true}}
}

// recordingValidator answers with decide and keeps every request
type recordingValidator struct {
	mu       sync.Mutex
	requests []aporia.ValidationRequest
	decide   func(req *aporia.ValidationRequest) (*aporia.ValidationResponse, error)
}

func (v *recordingValidator) Validate(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
	v.mu.Lock()
	v.requests = append(v.requests, *req)
	v.mu.Unlock()
	if v.decide == nil {
		return pass(), nil
	}
	return v.decide(req)
}

func (v *recordingValidator) responseChecks() []string {
	var out []string
	for _, r := range v.requests {
		if r.ValidationTarget == aporia.TargetResponse {
			out = append(out, r.Response)
		}
	}
	return out
}

func pass() *aporia.ValidationResponse {
	return &aporia.ValidationResponse{Action: aporia.ActionPassthrough}
}

func decide(action aporia.Action, revised *string) *aporia.ValidationResponse {
	return &aporia.ValidationResponse{Action: action, RevisedResponse: revised}
}

func strPtr(s string) *string {
	return &s
}

func collect(seq iter.Seq2[*interfaces.Chunk, error]) ([]string, error) {
	var out []string
	for chunk, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, chunk.Content)
	}
	return out, nil
}
