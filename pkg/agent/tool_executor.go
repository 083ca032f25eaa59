package agent

import (
	"context"
	"fmt"
	"strings"
)

// ToolExecutor runs MCP tool calls for the iteration controller.
type ToolExecutor interface {
	// Execute runs a single tool call. A tool-level failure is reported in
	// the result; the error is for transport failures.
	Execute(ctx context.Context, call ToolCall) (*ToolResult, error)

	// ListTools returns available tool definitions. Nil means no tools.
	ListTools(ctx context.Context) ([]ToolDefinition, error)
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	CallID  string
	Name    string // server.tool
	Content string
	IsError bool
}

// SplitToolName splits "server.tool" into its parts. Names without a
// server prefix get an empty server.
func SplitToolName(name string) (server, tool string) {
	if s, t, ok := strings.Cut(name, "."); ok {
		return s, t
	}
	return "", name
}

// StubToolExecutor returns canned responses.
type StubToolExecutor struct {
	tools []ToolDefinition
}

// NewStubToolExecutor creates a stub executor with the given tool definitions.
func NewStubToolExecutor(tools []ToolDefinition) *StubToolExecutor {
	return &StubToolExecutor{tools: tools}
}

func (s *StubToolExecutor) Execute(_ context.Context, call ToolCall) (*ToolResult, error) {
	return &ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: fmt.Sprintf("[stub] Tool %q called with args: %s", call.Name, call.Arguments),
	}, nil
}

func (s *StubToolExecutor) ListTools(_ context.Context) ([]ToolDefinition, error) {
	return s.tools, nil
}
