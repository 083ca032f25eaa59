package history

import (
	"context"
	stdsql "database/sql"
	"errors"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/codeready-toolchain/tarsy-core/pkg/models"
)

func (r *repository) insertChat(ctx context.Context, c *models.Chat) error {
	query, args := r.b().Insert(tableChats).
		Columns("chat_id", "session_id", "created_at_us", "created_by", "conversation_history", "chain_id").
		Values(c.ChatID, c.SessionID, c.CreatedAtUs, nullString(c.CreatedBy),
			nullString(c.ConversationHistory), nullString(c.ChainID)).
		Query()
	_, err := r.db().ExecContext(ctx, query, args...)
	return err
}

func (r *repository) getChatBy(ctx context.Context, column, value string) (*models.Chat, error) {
	query, args := r.selectFrom(tableChats, chatColumns).
		Where(entsql.EQ(column, value)).
		Query()
	c, err := scanChat(r.db().QueryRowContext(ctx, query, args...))
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, errNotFound
	}
	return c, err
}

func (r *repository) insertChatMessage(ctx context.Context, m *models.ChatUserMessage) error {
	query, args := r.b().Insert(tableChatMessages).
		Columns(chatMessageColumns...).
		Values(m.MessageID, m.ChatID, m.Content, m.Author, m.CreatedAtUs).
		Query()
	_, err := r.db().ExecContext(ctx, query, args...)
	return err
}

func (r *repository) chatMessages(ctx context.Context, chatID string) ([]*models.ChatUserMessage, error) {
	sel := r.selectFrom(tableChatMessages, chatMessageColumns).Where(entsql.EQ("chat_id", chatID))
	sel.OrderBy(entsql.Asc(sel.C("created_at_us")), entsql.Asc(sel.C("message_id")))
	query, args := sel.Query()
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows, scanChatMessage)
}

// claimChat takes ownership of an unowned chat.
func (r *repository) claimChat(ctx context.Context, chatID, podID string) (bool, error) {
	query, args := r.b().Update(tableChats).
		Set("pod_id", podID).
		Set("last_interaction_at", models.NowUs()).
		Where(entsql.And(entsql.EQ("chat_id", chatID), entsql.IsNull("pod_id"))).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n == 1, err
}

func (r *repository) releaseChat(ctx context.Context, chatID string) (bool, error) {
	query, args := r.b().Update(tableChats).
		SetNull("pod_id").
		SetNull("last_interaction_at").
		Where(entsql.EQ("chat_id", chatID)).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n > 0, err
}

func (r *repository) touchChat(ctx context.Context, chatID string) (bool, error) {
	query, args := r.b().Update(tableChats).
		Set("last_interaction_at", models.NowUs()).
		Where(entsql.And(entsql.EQ("chat_id", chatID), entsql.NotNull("pod_id"))).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return n > 0, err
}

// resetChats clears ownership of the chats matching where.
func (r *repository) resetChats(ctx context.Context, where *entsql.Predicate) (int, error) {
	query, args := r.b().Update(tableChats).
		SetNull("pod_id").
		SetNull("last_interaction_at").
		Where(where).
		Query()
	n, err := r.exec(ctx, r.db(), query, args)
	return int(n), err
}
