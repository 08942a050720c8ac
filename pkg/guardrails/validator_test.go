package guardrails_test

import (
	"context"
	"errors"
	"testing"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func promptRequest(text string) *aporia.ValidationRequest {
	return &aporia.ValidationRequest{
		Messages: []aporia.Message{
			{Role: "system", Content: "you are helpful"},
			{Role: "user", Content: text},
		},
		ValidationTarget: aporia.TargetPrompt,
	}
}

func TestContentFilter(t *testing.T) {
	filter := guardrails.NewContentFilter([]string{"darn", "heck"}, aporia.ActionModify)

	resp, err := filter.Validate(context.Background(), promptRequest("well DARN it, what the heck"))
	require.NoError(t, err)
	assert.Equal(t, aporia.ActionModify, resp.Action)
	assert.Equal(t, "well **** it, what the ****", resp.Revised(""))

	resp, err = filter.Validate(context.Background(), &aporia.ValidationRequest{
		Response:         "nothing wrong here",
		ValidationTarget: aporia.TargetResponse,
	})
	require.NoError(t, err)
	assert.False(t, resp.ShouldBlock())

	blocker := guardrails.NewContentFilter([]string{"darn"}, aporia.ActionBlock)
	resp, err = blocker.Validate(context.Background(), &aporia.ValidationRequest{
		Response:         "darn",
		ValidationTarget: aporia.TargetResponse,
	})
	require.NoError(t, err)
	assert.True(t, resp.ShouldBlock())
	assert.Nil(t, resp.RevisedResponse, "block carries no revision")

	empty := guardrails.NewContentFilter(nil, aporia.ActionBlock)
	resp, err = empty.Validate(context.Background(), promptRequest("anything"))
	require.NoError(t, err)
	assert.False(t, resp.ShouldBlock())
}

func TestPiiFilter(t *testing.T) {
	filter := guardrails.NewPiiFilter(aporia.ActionModify)

	resp, err := filter.Validate(context.Background(), promptRequest("mail jane@example.com, ssn 123-45-6789"))
	require.NoError(t, err)
	assert.True(t, resp.ShouldBlock())
	assert.Equal(t, "mail [REDACTED email], ssn [REDACTED ssn]", resp.Revised(""))

	resp, err = filter.Validate(context.Background(), promptRequest("no personal data"))
	require.NoError(t, err)
	assert.Equal(t, aporia.ActionPassthrough, resp.Action)
}

func TestChain(t *testing.T) {
	calls := 0
	counting := guardrails.ValidatorFunc(func(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
		calls++
		return &aporia.ValidationResponse{Action: aporia.ActionPassthrough}, nil
	})

	chain := guardrails.Chain{
		counting,
		guardrails.NewContentFilter([]string{"secret"}, aporia.ActionBlock),
		counting,
	}

	resp, err := chain.Validate(context.Background(), promptRequest("the secret plan"))
	require.NoError(t, err)
	assert.Equal(t, aporia.ActionBlock, resp.Action)
	assert.Equal(t, 1, calls, "validators after a block are skipped")

	resp, err = chain.Validate(context.Background(), promptRequest("the plan"))
	require.NoError(t, err)
	assert.Equal(t, aporia.ActionPassthrough, resp.Action)
	assert.Equal(t, 3, calls)

	boom := errors.New("down")
	failing := guardrails.Chain{guardrails.ValidatorFunc(func(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
		return nil, boom
	})}
	_, err = failing.Validate(context.Background(), promptRequest("x"))
	assert.ErrorIs(t, err, boom)
}

func TestLocalValidatorGuardsModel(t *testing.T) {
	model := &fakeModel{name: "fake", reply: "call me at jane@example.com"}
	guarded := wrap(t, model, guardrails.NewPiiFilter(aporia.ActionModify), testConfig)

	resp, err := guarded.Invoke(context.Background(), "how do I reach you?")
	require.NoError(t, err)
	assert.Equal(t, "call me at [REDACTED email]", resp.Content)
}

func TestTokenLimit(t *testing.T) {
	response := func(text string) *aporia.ValidationRequest {
		return &aporia.ValidationRequest{Response: text, ValidationTarget: aporia.TargetResponse}
	}

	tests := []struct {
		name   string
		mode   string
		text   string
		block  bool
		expect string
	}{
		{name: "within limit", text: "one two three four", block: false},
		{name: "end", mode: guardrails.TruncateEnd, text: "a b c d e f", block: true, expect: "a b c d ..."},
		{name: "start", mode: guardrails.TruncateStart, text: "a b c d e f", block: true, expect: "c d e f"},
		{name: "middle", mode: guardrails.TruncateMiddle, text: "a b c d e f", block: true, expect: "a b ... e f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := guardrails.NewTokenLimit(4, nil, aporia.ActionModify, tt.mode)
			resp, err := limit.Validate(context.Background(), response(tt.text))
			require.NoError(t, err)
			assert.Equal(t, tt.block, resp.ShouldBlock())
			if tt.block {
				assert.Equal(t, tt.expect, resp.Revised(""))
			}
		})
	}
}

type failingCounter struct{}

func (failingCounter) CountTokens(string) (int, error) { return 0, errors.New("tokenizer offline") }

func TestTokenLimitCounterError(t *testing.T) {
	limit := guardrails.NewTokenLimit(4, failingCounter{}, aporia.ActionBlock, "")
	_, err := limit.Validate(context.Background(), promptRequest("hi"))
	assert.ErrorContains(t, err, "tokenizer offline")
}
