package guardrails

import (
	"context"
	"fmt"
	"strings"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
)

// TokenCounter is an interface for counting tokens in text
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// WordCounter approximates tokens by whitespace separated words
type WordCounter struct{}

// CountTokens implements TokenCounter
func (WordCounter) CountTokens(text string) (int, error) {
	return len(strings.Fields(text)), nil
}

// Truncation modes for TokenLimit
const (
	TruncateStart  = "start"
	TruncateMiddle = "middle"
	TruncateEnd    = "end"
)

// TokenLimit is a local validator that caps the length of prompts and responses.
// Over-long text is answered with action and the text cut down to maxTokens words.
type TokenLimit struct {
	maxTokens    int
	counter      TokenCounter
	action       aporia.Action
	truncateMode string
}

// NewTokenLimit creates a token limit validator; a nil counter counts words
func NewTokenLimit(maxTokens int, counter TokenCounter, action aporia.Action, truncateMode string) *TokenLimit {
	if counter == nil {
		counter = WordCounter{}
	}
	if truncateMode == "" {
		truncateMode = TruncateEnd
	}

	return &TokenLimit{
		maxTokens:    maxTokens,
		counter:      counter,
		action:       action,
		truncateMode: truncateMode,
	}
}

// Validate implements Validator
func (t *TokenLimit) Validate(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
	text := subject(req)
	tokens, err := t.counter.CountTokens(text)
	if err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}
	if tokens <= t.maxTokens {
		return passthrough(), nil
	}
	return decision(t.action, t.truncate(text)), nil
}

func (t *TokenLimit) truncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= t.maxTokens {
		return text
	}

	switch t.truncateMode {
	case TruncateStart:
		return strings.Join(words[len(words)-t.maxTokens:], " ")
	case TruncateMiddle:
		half := t.maxTokens / 2
		return strings.Join(words[:half], " ") + " ... " + strings.Join(words[len(words)-half:], " ")
	default:
		return strings.Join(words[:t.maxTokens], " ") + " ..."
	}
}
