package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// InteractionRecorder persists audit rows for model and tool calls.
// history.Service satisfies it.
type InteractionRecorder interface {
	StoreLLMInteraction(ctx context.Context, in *models.LLMInteraction) bool
	StoreMCPInteraction(ctx context.Context, in *models.MCPInteraction) bool
}

// RunInput is one invocation of the iteration loop.
type RunInput struct {
	SessionID   string
	ExecutionID string
	StageName   string
	Messages    []ConversationMessage

	// StartIteration is the iteration count already spent, non-zero when
	// resuming a paused loop. The loop still gets a full budget on top.
	StartIteration int
}

// IterationController drives the model/tool loop of one stage execution.
type IterationController struct {
	llm           LLMClient
	tools         ToolExecutor
	recorder      InteractionRecorder
	maxIterations int
}

// NewIterationController creates a controller. tools and recorder may be nil.
func NewIterationController(llm LLMClient, tools ToolExecutor, recorder InteractionRecorder, maxIterations int) *IterationController {
	return &IterationController{
		llm:           llm,
		tools:         tools,
		recorder:      recorder,
		maxIterations: maxIterations,
	}
}

// Run iterates until the model answers without tool calls, the context is
// cancelled or the budget is spent. A spent budget pauses the loop when the
// last model call succeeded and fails it otherwise.
func (c *IterationController) Run(ctx context.Context, in *RunInput) *Outcome {
	log := slog.With("session_id", in.SessionID, "execution_id", in.ExecutionID)

	state := &IterationState{
		CurrentIteration: in.StartIteration,
		MaxIterations:    in.StartIteration + c.maxIterations,
	}
	messages := slices.Clone(in.Messages)
	tools := c.listTools(ctx, log)

	for !state.BudgetExhausted() {
		if err := ctx.Err(); err != nil {
			return OutcomeFailed(fmt.Errorf("iteration loop cancelled: %w", err))
		}
		state.CurrentIteration++

		resp, err := c.generate(ctx, in, messages, tools)
		if err != nil {
			if ctx.Err() != nil {
				return OutcomeFailed(fmt.Errorf("iteration loop cancelled: %w", ctx.Err()))
			}
			state.RecordFailure(err.Error(), errors.Is(err, context.DeadlineExceeded))
			log.Warn("LLM call failed", "iteration", state.CurrentIteration, "error", err)
			if state.ShouldAbortOnTimeouts() {
				return OutcomeFailed(fmt.Errorf("aborted after %d consecutive LLM timeouts: %w", state.ConsecutiveTimeoutFailures, err))
			}
			messages = append(messages, ConversationMessage{
				Role:    RoleUser,
				Content: fmt.Sprintf("The previous request failed with: %s. Please try again.", err),
			})
			continue
		}
		state.RecordSuccess()

		messages = append(messages, ConversationMessage{
			Role:      RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		if len(resp.ToolCalls) == 0 {
			return OutcomeCompleted(resp.Text)
		}
		for _, call := range resp.ToolCalls {
			result := c.executeTool(ctx, in, call)
			messages = append(messages, ConversationMessage{
				Role:       RoleTool,
				Content:    result.Content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}

	if state.LastInteractionFailed {
		return OutcomeFailed(fmt.Errorf("reached maximum iterations (%d) and the last LLM call failed: %s",
			state.MaxIterations, state.LastErrorMessage))
	}
	log.Info("Iteration budget spent, pausing", "iteration", state.CurrentIteration)
	return OutcomePaused(&PausedState{
		SessionID:    in.SessionID,
		ExecutionID:  in.ExecutionID,
		StageName:    in.StageName,
		Iteration:    state.CurrentIteration,
		Conversation: messages,
	})
}

func (c *IterationController) listTools(ctx context.Context, log *slog.Logger) []ToolDefinition {
	if c.tools == nil {
		return nil
	}
	tools, err := c.tools.ListTools(ctx)
	if err != nil {
		log.Warn("Failed to list tools, continuing without tools", "error", err)
		return nil
	}
	return tools
}

func (c *IterationController) generate(ctx context.Context, in *RunInput, messages []ConversationMessage, tools []ToolDefinition) (*LLMResponse, error) {
	start := time.Now()
	resp, err := c.llm.Generate(ctx, &GenerateInput{
		SessionID:   in.SessionID,
		ExecutionID: in.ExecutionID,
		Messages:    messages,
		Tools:       tools,
	})
	if c.recorder == nil {
		return resp, err
	}

	rec := &models.LLMInteraction{
		InteractionID:    uuid.New().String(),
		SessionID:        in.SessionID,
		StageExecutionID: in.ExecutionID,
		TimestampUs:      start.UnixMicro(),
		DurationMs:       time.Since(start).Milliseconds(),
		Success:          err == nil,
		InteractionType:  models.LLMInteractionTypeInvestigation,
	}
	conv := messages
	if err != nil {
		rec.ErrorMessage = err.Error()
	} else {
		rec.ModelName = resp.Model
		rec.InputTokens = &resp.Usage.InputTokens
		rec.OutputTokens = &resp.Usage.OutputTokens
		rec.TotalTokens = &resp.Usage.TotalTokens
		conv = append(slices.Clone(messages), ConversationMessage{Role: RoleAssistant, Content: resp.Text, ToolCalls: resp.ToolCalls})
	}
	if raw, mErr := json.Marshal(conv); mErr == nil {
		rec.Conversation = raw
	}
	if !c.recorder.StoreLLMInteraction(context.WithoutCancel(ctx), rec) {
		slog.Warn("Failed to record LLM interaction", "session_id", in.SessionID)
	}
	return resp, err
}

// executeTool runs one tool call. Failures become error results the model
// can react to.
func (c *IterationController) executeTool(ctx context.Context, in *RunInput, call ToolCall) *ToolResult {
	start := time.Now()
	var (
		result *ToolResult
		err    error
	)
	if c.tools == nil {
		err = errors.New("no tool executor configured")
	} else {
		result, err = c.tools.Execute(ctx, call)
	}
	if err != nil {
		result = &ToolResult{CallID: call.ID, Name: call.Name, Content: fmt.Sprintf("Error executing tool: %s", err), IsError: true}
	}

	if c.recorder != nil {
		server, tool := SplitToolName(call.Name)
		rec := &models.MCPInteraction{
			CommunicationID:   uuid.New().String(),
			SessionID:         in.SessionID,
			StageExecutionID:  in.ExecutionID,
			TimestampUs:       start.UnixMicro(),
			DurationMs:        time.Since(start).Milliseconds(),
			Success:           !result.IsError,
			ServerName:        server,
			CommunicationType: models.MCPCommunicationToolCall,
			ToolName:          tool,
		}
		if json.Valid([]byte(call.Arguments)) {
			rec.ToolArguments = json.RawMessage(call.Arguments)
		}
		if raw, mErr := json.Marshal(map[string]string{"content": result.Content}); mErr == nil {
			rec.ToolResult = raw
		}
		if result.IsError {
			rec.ErrorMessage = result.Content
		}
		if !c.recorder.StoreMCPInteraction(context.WithoutCancel(ctx), rec) {
			slog.Warn("Failed to record MCP interaction", "session_id", in.SessionID, "tool", call.Name)
		}
	}
	return result
}
