package agent

import "context"

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// LLMClient is the model backend the iteration controller talks to.
type LLMClient interface {
	Generate(ctx context.Context, input *GenerateInput) (*LLMResponse, error)
}

// GenerateInput is one model request.
type GenerateInput struct {
	SessionID   string
	ExecutionID string
	Messages    []ConversationMessage
	Tools       []ToolDefinition // nil = no tools
}

// LLMResponse is one model reply. A reply without tool calls is the final
// answer.
type LLMResponse struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
	Usage     TokenUsage
}

// TokenUsage counts tokens of one call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
}

// ConversationMessage is one turn of the conversation. The slice of
// messages is what gets preserved when a loop pauses.
type ConversationMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// ToolDefinition describes a tool available to the model.
type ToolDefinition struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	ParametersSchema string `json:"parameters_schema,omitempty"` // JSON Schema
}

// ToolCall represents the model's request to call a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON
}
