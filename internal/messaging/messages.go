package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/apperr"
	"github.com/sudo-init-do/dutydinar/internal/db"
	mware "github.com/sudo-init-do/dutydinar/internal/middleware"
)

const previewLength = 140

type StartConversationRequest struct {
	UserID  int64  `json:"user_id" validate:"required,gt=0"`
	Message string `json:"message" validate:"max=5000"`
}

type SendMessageRequest struct {
	ConversationID int64  `json:"conversation_id" validate:"required,gt=0"`
	Content        string `json:"content" validate:"required,max=5000"`
}

// requireParticipant distinguishes a missing conversation (404) from one the
// user is not part of (403).
func requireParticipant(ctx context.Context, q db.Querier, conversationID, userID int64) error {
	var exists, member bool
	err := q.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM conversations WHERE id = $1),
			EXISTS (SELECT 1 FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2)
	`, conversationID, userID).Scan(&exists, &member)
	if err != nil {
		return apperr.Internal("check conversation participant", err)
	}
	if !exists {
		return apperr.NotFound("Conversation not found")
	}
	if !member {
		return apperr.Forbidden("You are not part of this conversation")
	}
	return nil
}

// preview shortens content for notifications without splitting a rune.
func preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength-1]) + "…"
}

// GET /get_conversations.php
func GetConversations(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)
	rows, err := db.Conn.Query(c.Request().Context(), `
		SELECT c.id, other.user_id, u.name, u.user_type, lm.content, lm.created_at,
			(SELECT COUNT(*) FROM messages m
				WHERE m.conversation_id = c.id AND m.sender_id <> $1 AND m.read_at IS NULL),
			c.updated_at
		FROM conversation_participants me
		JOIN conversations c ON c.id = me.conversation_id
		JOIN conversation_participants other ON other.conversation_id = c.id AND other.user_id <> me.user_id
		JOIN users u ON u.id = other.user_id
		LEFT JOIN LATERAL (
			SELECT content, created_at FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON true
		WHERE me.user_id = $1
		ORDER BY c.updated_at DESC, c.id DESC
	`, userID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list conversations", err))
	}
	convs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Conversation, error) {
		var cv Conversation
		err := row.Scan(&cv.ID, &cv.OtherUserID, &cv.OtherUserName, &cv.OtherUserType,
			&cv.LastMessage, &cv.LastMessageAt, &cv.UnreadCount, &cv.UpdatedAt)
		return cv, err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("scan conversations", err))
	}
	if convs == nil {
		convs = []Conversation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"conversations": convs}})
}

// StartConversation returns the existing thread between the two users or
// creates one. An optional first message is sent in either case.
// POST /start_conversation.php
func StartConversation(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)
	req := new(StartConversationRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	if req.UserID == userID {
		return apperr.Respond(c, apperr.Validation("You cannot start a conversation with yourself"))
	}

	ctx := c.Request().Context()
	tx, err := db.Conn.Begin(ctx)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("begin start conversation", err))
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, req.UserID).Scan(&exists); err != nil {
		return apperr.Respond(c, apperr.Internal("check recipient", err))
	}
	if !exists {
		return apperr.Respond(c, apperr.NotFound("User not found"))
	}

	// Serialises concurrent starts between the same pair.
	lo, hi := min(userID, req.UserID), max(userID, req.UserID)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, fmt.Sprintf("conversation:%d:%d", lo, hi)); err != nil {
		return apperr.Respond(c, apperr.Internal("lock conversation pair", err))
	}

	var conversationID int64
	created := false
	err = tx.QueryRow(ctx, `
		SELECT a.conversation_id
		FROM conversation_participants a
		JOIN conversation_participants b ON b.conversation_id = a.conversation_id
		WHERE a.user_id = $1 AND b.user_id = $2
		ORDER BY a.conversation_id
		LIMIT 1
	`, userID, req.UserID).Scan(&conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := tx.QueryRow(ctx, `INSERT INTO conversations DEFAULT VALUES RETURNING id`).Scan(&conversationID); err != nil {
			return apperr.Respond(c, apperr.Internal("insert conversation", err))
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)
		`, conversationID, userID, req.UserID); err != nil {
			return apperr.Respond(c, apperr.Internal("insert participants", err))
		}
		created = true
	} else if err != nil {
		return apperr.Respond(c, apperr.Internal("find conversation", err))
	}

	var msg *Message
	if content := strings.TrimSpace(req.Message); content != "" {
		m, err := insertMessage(ctx, tx, conversationID, userID, content)
		if err != nil {
			return apperr.Respond(c, apperr.Internal("insert first message", err))
		}
		msg = &m
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Respond(c, apperr.Internal("commit start conversation", err))
	}
	if msg != nil {
		afterSend(ctx, *msg)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, echo.Map{
		"success":         true,
		"conversation_id": conversationID,
		"created":         created,
	})
}

// GetMessages returns the thread oldest first and marks what the caller
// received as read.
// GET /get_messages.php?conversation_id=&since=
func GetMessages(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)
	conversationID, err := strconv.ParseInt(c.QueryParam("conversation_id"), 10, 64)
	if err != nil || conversationID <= 0 {
		return apperr.Respond(c, apperr.Validation("Invalid conversation id"))
	}
	var since *time.Time
	if s := c.QueryParam("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return apperr.Respond(c, apperr.Validation("Invalid since timestamp, use RFC3339"))
		}
		since = &t
	}

	ctx := c.Request().Context()
	if err := requireParticipant(ctx, db.Conn, conversationID, userID); err != nil {
		return apperr.Respond(c, err)
	}

	rows, err := db.Conn.Query(ctx, `
		UPDATE messages SET read_at = NOW()
		WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL
		RETURNING id
	`, conversationID, userID)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("mark messages read", err))
	}
	readIDs, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return apperr.Respond(c, apperr.Internal("mark messages read", err))
	}
	if len(readIDs) > 0 {
		hub.Broadcast(conversationID, Event{Type: EventMessageRead, Data: echo.Map{
			"conversation_id": conversationID,
			"reader_id":       userID,
			"message_ids":     readIDs,
		}})
	}

	rows, err = db.Conn.Query(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, u.name, m.content, m.created_at, m.read_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1 AND ($2::timestamptz IS NULL OR m.created_at > $2)
		ORDER BY m.created_at, m.id
	`, conversationID, since)
	if err != nil {
		return apperr.Respond(c, apperr.Internal("list messages", err))
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt, &m.ReadAt)
		return m, err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("scan messages", err))
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"messages": msgs}})
}

// POST /send_message.php
func SendMessage(c echo.Context) error {
	userID, _ := c.Get("user_id").(int64)
	req := new(SendMessageRequest)
	if err := mware.Bind(c, req); err != nil {
		return apperr.Respond(c, err)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return apperr.Respond(c, apperr.Validation("content is required"))
	}

	ctx := c.Request().Context()
	if err := requireParticipant(ctx, db.Conn, req.ConversationID, userID); err != nil {
		return apperr.Respond(c, err)
	}

	var msg Message
	err := db.WithTx(ctx, db.Conn, func(tx pgx.Tx) error {
		var err error
		msg, err = insertMessage(ctx, tx, req.ConversationID, userID, content)
		return err
	})
	if err != nil {
		return apperr.Respond(c, apperr.Internal("insert message", err))
	}
	afterSend(ctx, msg)

	return c.JSON(http.StatusCreated, echo.Map{
		"success":    true,
		"message_id": msg.ID,
		"data":       echo.Map{"message": msg},
	})
}

// insertMessage stores the message and bumps the conversation.
func insertMessage(ctx context.Context, tx pgx.Tx, conversationID, senderID int64, content string) (Message, error) {
	m := Message{ConversationID: conversationID, SenderID: senderID, Content: content}
	err := tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, (SELECT name FROM users WHERE id = $2)
	`, conversationID, senderID, content).Scan(&m.ID, &m.CreatedAt, &m.SenderName)
	if err != nil {
		return m, err
	}
	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return m, err
	}
	return m, nil
}

// afterSend pushes the message to open sockets and emails the other
// participants. Failures are logged only.
func afterSend(ctx context.Context, m Message) {
	hub.Broadcast(m.ConversationID, Event{Type: EventMessageNew, Data: m})

	rows, err := db.Conn.Query(ctx, `
		SELECT u.email FROM conversation_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.user_id <> $2
	`, m.ConversationID, m.SenderID)
	if err != nil {
		slog.WarnContext(ctx, "load message recipients", "conversation_id", m.ConversationID, "error", err)
		return
	}
	emails, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		slog.WarnContext(ctx, "load message recipients", "conversation_id", m.ConversationID, "error", err)
		return
	}
	for _, email := range emails {
		if err := alerts.EnqueueNewMessage(m.ConversationID, m.SenderID, m.SenderName, email, preview(m.Content)); err != nil {
			slog.WarnContext(ctx, "message email not queued", "conversation_id", m.ConversationID, "error", err)
		}
	}
}
