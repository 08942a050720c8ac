package guardrails

import (
	"context"
	"regexp"
	"strings"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
)

// ContentFilter is a local validator that masks blocked words
type ContentFilter struct {
	blockedWords []string
	action       aporia.Action
	regex        *regexp.Regexp
}

// NewContentFilter creates a content filter; a triggered check answers with action
func NewContentFilter(blockedWords []string, action aporia.Action) *ContentFilter {
	c := &ContentFilter{
		blockedWords: blockedWords,
		action:       action,
	}

	quoted := make([]string, 0, len(blockedWords))
	for _, w := range blockedWords {
		if w = strings.TrimSpace(w); w != "" {
			quoted = append(quoted, regexp.QuoteMeta(w))
		}
	}
	if len(quoted) > 0 {
		c.regex = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	}

	return c
}

// Validate implements Validator
func (c *ContentFilter) Validate(ctx context.Context, req *aporia.ValidationRequest) (*aporia.ValidationResponse, error) {
	text := subject(req)
	if c.regex == nil || !c.regex.MatchString(text) {
		return passthrough(), nil
	}
	return decision(c.action, c.regex.ReplaceAllString(text, "****")), nil
}
