package realtime

import (
	"time"

	"github.com/google/uuid"
)

// SendMessage emits a chat message on the active channel. The client
// generates the message id so the backend echo can be deduplicated against
// an optimistic local append. Best-effort: durable delivery is the REST
// layer's job.
func (m *Manager) SendMessage(matchID, senderID int64, content, messageType string) string {
	if messageType == "" {
		messageType = "text"
	}
	id := uuid.NewString()
	m.Emit("send-message", map[string]any{
		"id":           id,
		"match_id":     matchID,
		"sender_id":    senderID,
		"content":      content,
		"message_type": messageType,
		"sent_at":      time.Now().UTC().Format(time.RFC3339Nano),
	})
	return id
}

func (m *Manager) SendTyping(matchID int64, isTyping bool) {
	m.Emit("typing", map[string]any{
		"match_id":  matchID,
		"is_typing": isTyping,
	})
}

func (m *Manager) SendLikeNotification(toUserID, fromUserID int64, fromName string) {
	m.Emit("send-like-notification", map[string]any{
		"user_id":      toUserID,
		"from_user_id": fromUserID,
		"from_name":    fromName,
	})
}

func (m *Manager) SendGlobalNotification(title, body string) {
	m.Emit("send-global-notification", map[string]any{
		"id":    uuid.NewString(),
		"title": title,
		"body":  body,
	})
}
