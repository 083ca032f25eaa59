package models

// Chat is a follow-up conversation attached to a finished session. It has
// its own pod ownership so chat processing can be orphan-detected the same
// way sessions are.
type Chat struct {
	ChatID              string `json:"chat_id"`
	SessionID           string `json:"session_id"`
	CreatedAtUs         int64  `json:"created_at_us"`
	CreatedBy           string `json:"created_by,omitempty"`
	ConversationHistory string `json:"conversation_history,omitempty"`
	ChainID             string `json:"chain_id,omitempty"`

	PodID             string `json:"pod_id,omitempty"`
	LastInteractionAt *int64 `json:"last_interaction_at,omitempty"`
}

// ChatUserMessage is one message a user posted to a chat.
type ChatUserMessage struct {
	MessageID   string `json:"message_id"`
	ChatID      string `json:"chat_id"`
	Content     string `json:"content"`
	Author      string `json:"author"`
	CreatedAtUs int64  `json:"created_at_us"`
}
