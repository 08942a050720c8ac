package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
)

// ModelName constants for supported Anthropic models
const (
	Claude35Haiku  = "claude-3-5-haiku-latest"
	Claude35Sonnet = "claude-3-5-sonnet-latest"
	Claude3Opus    = "claude-3-opus-latest"
	Claude37Sonnet = "claude-3-7-sonnet-latest"
)

// stopReasonRefusal is reported when the model declines for safety reasons
const stopReasonRefusal = "refusal"

// Message represents a message for Anthropic API
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one typed block of message content
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// CompletionRequest represents a request for Anthropic API
type CompletionRequest struct {
	Model         string      `json:"model"`
	Messages      []Message   `json:"messages"`
	MaxTokens     int         `json:"max_tokens"`
	Temperature   *float64    `json:"temperature,omitempty"`
	StopSequences []string    `json:"stop_sequences,omitempty"`
	System        string      `json:"system,omitempty"`
	Tools         []Tool      `json:"tools,omitempty"`
	ToolChoice    interface{} `json:"tool_choice,omitempty"`
	Stream        bool        `json:"stream,omitempty"`
}

// Tool represents a tool definition for Anthropic API
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// CompletionResponse represents a response from Anthropic API
type CompletionResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// streamEvent is the union of the server-sent event payloads
type streamEvent struct {
	Type    string              `json:"type"`
	Message *CompletionResponse `json:"message,omitempty"`
	Delta   struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// toAnthropicMessages splits out system messages, which the API takes separately
func toAnthropicMessages(messages []interfaces.Message) (string, []Message) {
	var system []string
	out := make([]Message, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case interfaces.RoleSystem:
			system = append(system, msg.Content)
		case interfaces.RoleTool:
			out = append(out, Message{
				Role: "user",
				Content: []ContentBlock{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		default:
			role := "user"
			if msg.Role == interfaces.RoleAssistant {
				role = "assistant"
			}
			var blocks []ContentBlock
			if msg.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input := json.RawMessage(call.Arguments)
				if len(input) == 0 {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, ContentBlock{Type: "tool_use", ID: call.ID, Name: call.Name, Input: input})
			}
			out = append(out, Message{Role: role, Content: blocks})
		}
	}

	return strings.Join(system, "\n\n"), out
}

func fromCompletion(resp *CompletionResponse) *interfaces.Message {
	out := &interfaces.Message{
		ID:   resp.ID,
		Role: interfaces.RoleAssistant,
	}

	var text []string
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, interfaces.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	out.Content = strings.Join(text, "\n")

	return out
}

func toAnthropicTools(tools []interfaces.Tool) []Tool {
	out := make([]Tool, len(tools))
	for i, tool := range tools {
		properties := make(map[string]interface{})
		required := []string{}

		for name, param := range tool.Parameters() {
			properties[name] = parameterSchema(param)
			if param.Required {
				required = append(required, name)
			}
		}

		out[i] = Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}
	}
	return out
}

func parameterSchema(param interfaces.ParameterSpec) map[string]interface{} {
	schema := map[string]interface{}{
		"type":        param.Type,
		"description": param.Description,
	}
	if param.Enum != nil {
		schema["enum"] = param.Enum
	}
	if param.Items != nil {
		schema["items"] = parameterSchema(*param.Items)
	}
	return schema
}

func toolChoice(choice string) interface{} {
	switch choice {
	case "auto", "none":
		return map[string]string{"type": choice}
	case "required":
		return map[string]string{"type": "any"}
	default:
		return map[string]string{"type": "tool", "name": choice}
	}
}
