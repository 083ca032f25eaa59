package history

import (
	"context"

	"github.com/codeready-toolchain/tarsy-core/pkg/database"
	"github.com/codeready-toolchain/tarsy-core/pkg/models"
	"github.com/codeready-toolchain/tarsy-core/pkg/telemetry"
)

// Service is the single entry point for history persistence. It only wires
// the op groups to one shared BaseInfra; behavior lives in the groups.
type Service struct {
	infra *BaseInfra

	sessions     *SessionOps
	stages       *StageOps
	queue        *QueueOps
	interactions *InteractionOps
	chats        *ChatOps
	maintenance  *MaintenanceOps
	tracking     *TrackingOps
	timeline     *TimelineOps
}

// NewService wires every op group to infra.
func NewService(infra *BaseInfra) *Service {
	return &Service{
		infra:        infra,
		sessions:     NewSessionOps(infra),
		stages:       NewStageOps(infra),
		queue:        NewQueueOps(infra),
		interactions: NewInteractionOps(infra),
		chats:        NewChatOps(infra),
		maintenance:  NewMaintenanceOps(infra),
		tracking:     NewTrackingOps(infra),
		timeline:     NewTimelineOps(infra),
	}
}

// NewServiceFromConfig builds an uninitialized service that opens cfg on
// Initialize.
func NewServiceFromConfig(cfg database.Config, retry RetryConfig, metrics *telemetry.Metrics) *Service {
	open := func(ctx context.Context) (*database.Client, error) {
		return database.NewClient(ctx, cfg)
	}
	return NewService(NewBaseInfra(open, retry, metrics))
}

// Initialize opens the database once. See BaseInfra.Initialize.
func (s *Service) Initialize(ctx context.Context) bool {
	return s.infra.Initialize(ctx)
}

// IsHealthy reports whether persistence is available.
func (s *Service) IsHealthy() bool {
	return s.infra.IsHealthy()
}

// Client returns the database client, or nil when unhealthy.
func (s *Service) Client() *database.Client {
	return s.infra.Client()
}

// Close releases the connection pool.
func (s *Service) Close() error {
	return s.infra.Close()
}

// Sessions

func (s *Service) CreateSession(ctx context.Context, cc *models.ChainContext, chain *models.ChainDefinition) bool {
	return s.sessions.CreateSession(ctx, cc, chain)
}

func (s *Service) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, upd models.SessionStatusUpdate) bool {
	return s.sessions.UpdateSessionStatus(ctx, sessionID, status, upd)
}

func (s *Service) UpdateSessionStatusFrom(ctx context.Context, sessionID string, from []models.SessionStatus, status models.SessionStatus, upd models.SessionStatusUpdate) bool {
	return s.sessions.UpdateSessionStatusFrom(ctx, sessionID, from, status, upd)
}

func (s *Service) GetSession(ctx context.Context, sessionID string) *models.Session {
	return s.sessions.GetSession(ctx, sessionID)
}

func (s *Service) UpdateSessionToCanceling(ctx context.Context, sessionID string) (bool, string) {
	return s.sessions.UpdateSessionToCanceling(ctx, sessionID)
}

func (s *Service) ListSessions(ctx context.Context, filters models.SessionFilters) *models.SessionListResponse {
	return s.sessions.ListSessions(ctx, filters)
}

func (s *Service) GetActiveSessions(ctx context.Context) []*models.Session {
	return s.sessions.GetActiveSessions(ctx)
}

func (s *Service) GetSessionSummary(ctx context.Context, sessionID string) *models.SessionStats {
	return s.sessions.GetSessionSummary(ctx, sessionID)
}

// Stages

func (s *Service) CreateStageExecution(ctx context.Context, st *models.StageExecution) string {
	return s.stages.CreateStageExecution(ctx, st)
}

func (s *Service) UpdateStageExecution(ctx context.Context, st *models.StageExecution) bool {
	return s.stages.UpdateStageExecution(ctx, st)
}

func (s *Service) UpdateSessionCurrentStage(ctx context.Context, sessionID string, stageIndex int, stageID string) bool {
	return s.stages.UpdateSessionCurrentStage(ctx, sessionID, stageIndex, stageID)
}

func (s *Service) GetStageExecution(ctx context.Context, executionID string) *models.StageExecution {
	return s.stages.GetStageExecution(ctx, executionID)
}

func (s *Service) GetStageExecutions(ctx context.Context, sessionID string) []*models.StageExecution {
	return s.stages.GetStageExecutions(ctx, sessionID)
}

func (s *Service) GetParallelStageChildren(ctx context.Context, parentExecutionID string) []*models.StageExecution {
	return s.stages.GetParallelStageChildren(ctx, parentExecutionID)
}

func (s *Service) GetPausedStages(ctx context.Context, sessionID string) []*models.StageExecution {
	return s.stages.GetPausedStages(ctx, sessionID)
}

func (s *Service) CancelAllPausedStages(ctx context.Context, sessionID string) int {
	return s.stages.CancelAllPausedStages(ctx, sessionID)
}

// Queue

func (s *Service) ClaimNextPendingSession(ctx context.Context, podID string) *models.Session {
	return s.queue.ClaimNextPendingSession(ctx, podID)
}

func (s *Service) CountSessionsByStatus(ctx context.Context, status models.SessionStatus) (int, bool) {
	return s.queue.CountSessionsByStatus(ctx, status)
}

// Interactions

func (s *Service) StoreLLMInteraction(ctx context.Context, in *models.LLMInteraction) bool {
	return s.interactions.StoreLLMInteraction(ctx, in)
}

func (s *Service) StoreMCPInteraction(ctx context.Context, in *models.MCPInteraction) bool {
	return s.interactions.StoreMCPInteraction(ctx, in)
}

func (s *Service) GetLLMInteractions(ctx context.Context, sessionID string) []*models.LLMInteraction {
	return s.interactions.GetLLMInteractions(ctx, sessionID)
}

func (s *Service) GetMCPInteractions(ctx context.Context, sessionID string) []*models.MCPInteraction {
	return s.interactions.GetMCPInteractions(ctx, sessionID)
}

// Chats

func (s *Service) CreateChat(ctx context.Context, c *models.Chat) bool {
	return s.chats.CreateChat(ctx, c)
}

func (s *Service) GetChat(ctx context.Context, chatID string) *models.Chat {
	return s.chats.GetChat(ctx, chatID)
}

func (s *Service) GetChatBySession(ctx context.Context, sessionID string) *models.Chat {
	return s.chats.GetChatBySession(ctx, sessionID)
}

func (s *Service) AddChatUserMessage(ctx context.Context, m *models.ChatUserMessage) bool {
	return s.chats.AddChatUserMessage(ctx, m)
}

func (s *Service) GetChatUserMessages(ctx context.Context, chatID string) []*models.ChatUserMessage {
	return s.chats.GetChatUserMessages(ctx, chatID)
}

func (s *Service) ClaimChat(ctx context.Context, chatID, podID string) bool {
	return s.chats.ClaimChat(ctx, chatID, podID)
}

func (s *Service) ReleaseChat(ctx context.Context, chatID string) bool {
	return s.chats.ReleaseChat(ctx, chatID)
}

// Maintenance

func (s *Service) CleanupOrphanedSessions(ctx context.Context, timeoutMinutes int) int {
	return s.maintenance.CleanupOrphanedSessions(ctx, timeoutMinutes)
}

func (s *Service) MarkPodSessionsInterrupted(ctx context.Context, podID string) int {
	return s.maintenance.MarkPodSessionsInterrupted(ctx, podID)
}

func (s *Service) CleanupOrphanedChats(ctx context.Context, timeoutMinutes int) int {
	return s.maintenance.CleanupOrphanedChats(ctx, timeoutMinutes)
}

func (s *Service) MarkPodChatsInterrupted(ctx context.Context, podID string) int {
	return s.maintenance.MarkPodChatsInterrupted(ctx, podID)
}

func (s *Service) DeleteSessionsOlderThan(ctx context.Context, cutoffUs int64) int {
	return s.maintenance.DeleteSessionsOlderThan(ctx, cutoffUs)
}

// Tracking

func (s *Service) RecordSessionInteraction(ctx context.Context, sessionID string) bool {
	return s.tracking.RecordSessionInteraction(ctx, sessionID)
}

func (s *Service) TouchChat(ctx context.Context, chatID string) bool {
	return s.tracking.TouchChat(ctx, chatID)
}

func (s *Service) UpdateSessionTokens(ctx context.Context, sessionID string, input, output, total int64) bool {
	return s.tracking.UpdateSessionTokens(ctx, sessionID, input, output, total)
}

// Timeline

func (s *Service) GetSessionTimeline(ctx context.Context, sessionID string) *models.SessionTimeline {
	return s.timeline.GetSessionTimeline(ctx, sessionID)
}
