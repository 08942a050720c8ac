package llm

import (
	"fmt"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
)

// ToMessages converts the call inputs accepted by the bundled chat models
// into a message sequence. A bare string becomes a single user message.
func ToMessages(input any) ([]interfaces.Message, error) {
	switch v := input.(type) {
	case nil:
		return nil, fmt.Errorf("input is nil")
	case string:
		return []interfaces.Message{{Role: interfaces.RoleUser, Content: v}}, nil
	case interfaces.Message:
		return []interfaces.Message{v}, nil
	case *interfaces.Message:
		if v == nil {
			return nil, fmt.Errorf("input is nil")
		}
		return []interfaces.Message{*v}, nil
	case []interfaces.Message:
		out := make([]interfaces.Message, len(v))
		copy(out, v)
		return out, nil
	case []map[string]string:
		out := make([]interfaces.Message, 0, len(v))
		for i, m := range v {
			role, ok := m["role"]
			if !ok {
				return nil, fmt.Errorf("message %d has no role", i)
			}
			out = append(out, interfaces.Message{Role: interfaces.Role(role), Content: m["content"]})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported input type %T", input)
	}
}

// LastContent returns the content of the last message, or "" when empty
func LastContent(messages []interfaces.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}
