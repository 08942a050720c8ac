package openai

import (
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/sashabaranov/go-openai"
)

func toOpenAIMessages(messages []interfaces.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, call := range msg.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			})
		}
	}
	return out
}

func fromOpenAIMessage(id string, msg openai.ChatCompletionMessage) *interfaces.Message {
	out := &interfaces.Message{
		ID:      id,
		Role:    interfaces.RoleAssistant,
		Content: msg.Content,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, interfaces.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}

// toOpenAITools converts tool parameter specs to JSON schema function definitions
func toOpenAITools(tools []interfaces.Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		properties := make(map[string]interface{})
		required := []string{}

		for name, param := range tool.Parameters() {
			properties[name] = parameterSchema(param)
			if param.Required {
				required = append(required, name)
			}
		}

		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": properties,
					"required":   required,
				},
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

func toolChoice(choice string) any {
	switch choice {
	case "auto", "none", "required":
		return choice
	default:
		return openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: choice},
		}
	}
}
