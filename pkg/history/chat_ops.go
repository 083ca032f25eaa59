package history

import (
	"context"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

// ChatOps covers chats and their user messages.
type ChatOps struct {
	infra *BaseInfra
}

// NewChatOps creates chat operations on infra.
func NewChatOps(infra *BaseInfra) *ChatOps {
	return &ChatOps{infra: infra}
}

// CreateChat attaches a chat to a session. A session has at most one chat.
func (o *ChatOps) CreateChat(ctx context.Context, c *models.Chat) bool {
	if c.ChatID == "" {
		c.ChatID = uuid.New().String()
	}
	if c.CreatedAtUs == 0 {
		c.CreatedAtUs = models.NowUs()
	}
	_, ok := RetryDatabaseOperation(ctx, o.infra, "create_chat", func(ctx context.Context) (bool, error) {
		return true, o.infra.repo().insertChat(ctx, c)
	})
	return ok
}

// GetChat returns nil when the chat does not exist or the lookup failed.
func (o *ChatOps) GetChat(ctx context.Context, chatID string) *models.Chat {
	c, _ := RetryDatabaseOperation(ctx, o.infra, "get_chat", func(ctx context.Context) (*models.Chat, error) {
		return o.infra.repo().getChatBy(ctx, "chat_id", chatID)
	}, TreatNoneAsSuccess())
	return c
}

// GetChatBySession returns the chat attached to a session, if any.
func (o *ChatOps) GetChatBySession(ctx context.Context, sessionID string) *models.Chat {
	c, _ := RetryDatabaseOperation(ctx, o.infra, "get_chat_by_session", func(ctx context.Context) (*models.Chat, error) {
		return o.infra.repo().getChatBy(ctx, "session_id", sessionID)
	}, TreatNoneAsSuccess())
	return c
}

// AddChatUserMessage stores a user message on a chat.
func (o *ChatOps) AddChatUserMessage(ctx context.Context, m *models.ChatUserMessage) bool {
	if m.MessageID == "" {
		m.MessageID = uuid.New().String()
	}
	if m.CreatedAtUs == 0 {
		m.CreatedAtUs = models.NowUs()
	}
	_, ok := RetryDatabaseOperation(ctx, o.infra, "add_chat_user_message", func(ctx context.Context) (bool, error) {
		return true, o.infra.repo().insertChatMessage(ctx, m)
	})
	return ok
}

// GetChatUserMessages returns a chat's messages oldest first.
func (o *ChatOps) GetChatUserMessages(ctx context.Context, chatID string) []*models.ChatUserMessage {
	msgs, _ := RetryDatabaseOperation(ctx, o.infra, "get_chat_user_messages", func(ctx context.Context) ([]*models.ChatUserMessage, error) {
		return o.infra.repo().chatMessages(ctx, chatID)
	})
	return msgs
}

// ClaimChat takes ownership of a chat nobody owns. It returns false when
// another pod holds it.
func (o *ChatOps) ClaimChat(ctx context.Context, chatID, podID string) bool {
	claimed, ok := RetryDatabaseOperation(ctx, o.infra, "claim_chat", func(ctx context.Context) (bool, error) {
		return o.infra.repo().claimChat(ctx, chatID, podID)
	})
	return ok && claimed
}

// ReleaseChat gives up ownership after processing finished.
func (o *ChatOps) ReleaseChat(ctx context.Context, chatID string) bool {
	released, ok := RetryDatabaseOperation(ctx, o.infra, "release_chat", func(ctx context.Context) (bool, error) {
		return o.infra.repo().releaseChat(ctx, chatID)
	})
	return ok && released
}
