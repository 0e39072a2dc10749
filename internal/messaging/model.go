package messaging

import "time"

// Conversation is one thread as seen by the caller.
type Conversation struct {
	ID            int64      `json:"id"`
	OtherUserID   int64      `json:"other_user_id"`
	OtherUserName string     `json:"other_user_name"`
	OtherUserType string     `json:"other_user_type"`
	LastMessage   *string    `json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	UnreadCount   int        `json:"unread_count"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	SenderName     string     `json:"sender_name"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at"`
}
