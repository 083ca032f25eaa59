package history

import (
	"context"
	"sort"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// TimelineOps assembles the audit view of a session.
type TimelineOps struct {
	infra *BaseInfra
}

// NewTimelineOps creates timeline operations on infra.
func NewTimelineOps(infra *BaseInfra) *TimelineOps {
	return &TimelineOps{infra: infra}
}

// GetSessionTimeline returns the session, its stage tree and every
// interaction merged in timestamp order. Nil when the session is unknown.
func (o *TimelineOps) GetSessionTimeline(ctx context.Context, sessionID string) *models.SessionTimeline {
	tl, _ := RetryDatabaseOperation(ctx, o.infra, "get_session_timeline", func(ctx context.Context) (*models.SessionTimeline, error) {
		repo := o.infra.repo()
		session, err := repo.getSession(ctx, repo.db(), sessionID)
		if err != nil {
			return nil, err
		}
		stages, err := repo.stagesTree(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		llm, err := repo.llmInteractions(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		mcp, err := repo.mcpInteractions(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &models.SessionTimeline{
			Session: session,
			Stages:  stages,
			Entries: mergeTimeline(llm, mcp),
		}, nil
	}, TreatNoneAsSuccess())
	return tl
}

func mergeTimeline(llm []*models.LLMInteraction, mcp []*models.MCPInteraction) []models.TimelineEntry {
	entries := make([]models.TimelineEntry, 0, len(llm)+len(mcp))
	for _, in := range llm {
		entries = append(entries, models.TimelineEntry{
			Kind:             models.TimelineEntryLLM,
			TimestampUs:      in.TimestampUs,
			StageExecutionID: in.StageExecutionID,
			LLM:              in,
		})
	}
	for _, in := range mcp {
		entries = append(entries, models.TimelineEntry{
			Kind:             models.TimelineEntryMCP,
			TimestampUs:      in.TimestampUs,
			StageExecutionID: in.StageExecutionID,
			MCP:              in,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TimestampUs < entries[j].TimestampUs
	})
	return entries
}
