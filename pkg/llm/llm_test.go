package llm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMessages(t *testing.T) {
	msgs, err := ToMessages("hello")
	require.NoError(t, err)
	assert.Equal(t, []interfaces.Message{{Role: interfaces.RoleUser, Content: "hello"}}, msgs)

	in := []interfaces.Message{
		{Role: interfaces.RoleSystem, Content: "be nice"},
		{Role: interfaces.RoleUser, Content: "hi"},
	}
	msgs, err = ToMessages(in)
	require.NoError(t, err)
	assert.Equal(t, in, msgs)

	msgs, err = ToMessages([]map[string]string{{"role": "user", "content": "x"}})
	require.NoError(t, err)
	assert.Equal(t, interfaces.RoleUser, msgs[0].Role)
	assert.Equal(t, "x", LastContent(msgs))

	_, err = ToMessages([]map[string]string{{"content": "x"}})
	assert.Error(t, err)

	_, err = ToMessages(42)
	assert.ErrorContains(t, err, "unsupported input type int")

	_, err = ToMessages(nil)
	assert.Error(t, err)
}

func TestContentFilterError(t *testing.T) {
	base := errors.New("flagged")
	err := fmt.Errorf("call failed: %w", &ContentFilterError{Provider: "openai", Message: "hate", Err: base})

	assert.True(t, IsContentFilter(err))
	assert.True(t, errors.Is(err, base))
	assert.Contains(t, err.Error(), "openai")

	var cf *ContentFilterError
	require.True(t, errors.As(err, &cf))
	assert.Equal(t, "hate", cf.Message)

	assert.False(t, IsContentFilter(errors.New("rate limited")))
}
