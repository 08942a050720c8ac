package guardrails

import (
	"context"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
)

// Validator decides whether a prompt or response may pass.
// *aporia.Client is the production implementation.
type Validator interface {
	Validate(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error)
}

// ValidatorFunc adapts a function to the Validator interface
type ValidatorFunc func(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error)

// Validate calls f
func (f ValidatorFunc) Validate(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
	return f(ctx, req)
}

// Chain runs validators in order and returns the first blocking decision
type Chain []Validator

// Validate implements Validator
func (c Chain) Validate(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
	for _, v := range c {
		resp, err := v.Validate(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.ShouldBlock() {
			return resp, nil
		}
	}
	return passthrough(), nil
}

func passthrough() *aporia.ValidationResponse {
	return &aporia.ValidationResponse{Action: aporia.ActionPassthrough}
}

// subject returns the text a local validator should inspect
func subject(req *aporia.ValidationRequest) string {
	if req.ValidationTarget == aporia.TargetResponse {
		return req.Response
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == string(interfaces.RoleUser) {
			return req.Messages[i].Content
		}
	}
	return ""
}

// decision builds the response for a triggered local validator
func decision(action aporia.Action, revised string) *aporia.ValidationResponse {
	resp := &aporia.ValidationResponse{Action: action}
	if action == aporia.ActionModify || action == aporia.ActionRephrase {
		resp.RevisedResponse = &revised
	}
	return resp
}

func toWireMessages(messages []interfaces.Message) []aporia.Message {
	out := make([]aporia.Message, len(messages))
	for i, m := range messages {
		out[i] = aporia.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
