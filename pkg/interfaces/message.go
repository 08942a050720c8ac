package interfaces

// Role is the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a message in a conversation
type Message struct {
	// ID identifies the message; synthetic messages get a generated one
	ID string

	// Role is the role of the message sender
	Role Role

	// Content is the text content of the message
	Content string

	// Name is an optional participant name
	Name string

	// ToolCalls are the tool invocations requested by an assistant message
	ToolCalls []ToolCall

	// ToolCallID links a tool message to the call it answers
	ToolCallID string

	// Metadata contains additional information about the message
	Metadata map[string]interface{}
}

// ToolCall is a single tool invocation requested by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Chunk is one incremental fragment of a streamed response
type Chunk struct {
	ID           string
	Content      string
	FinishReason string
}
