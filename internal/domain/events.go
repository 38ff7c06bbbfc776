// Package domain holds the wire-level and in-memory types shared by the
// realtime session core: inbound channel events, discovery candidates and
// their coordinates. All channel events are JSON with a "kind" discriminator.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type EventKind string

const (
	EventKindMessage      EventKind = "message"
	EventKindNotification EventKind = "notification"
	EventKindTyping       EventKind = "typing"
	EventKindAck          EventKind = "ack"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnknownEvent = errors.New("unknown event kind")
)

// UnknownSenderName replaces a missing or blank sender name at decode time,
// so rendering code never has to carry its own fallback.
const UnknownSenderName = "Unknown"

// Envelope captures the kind discriminator and keeps the raw payload for
// deferred decoding into the concrete event struct.
type Envelope struct {
	Kind EventKind       `json:"kind"`
	Raw  json.RawMessage `json:"-"`
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Kind EventKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if partial.Kind == "" {
		return fmt.Errorf("missing event kind: %w", ErrValidation)
	}
	e.Kind = partial.Kind
	return nil
}

// EventKey is the dedup identity of a buffered event: (kind, id, sentAt).
// Ephemeral events without an id (typing) are never keyed.
type EventKey struct {
	Kind   EventKind
	ID     string
	SentAt int64
}

type MessageEvent struct {
	ID          string    `json:"id"`
	MatchID     int64     `json:"match_id"`
	SenderID    int64     `json:"sender_id"`
	SenderName  string    `json:"sender_name"`
	SentAt      time.Time `json:"sent_at"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
}

func (m MessageEvent) Key() EventKey {
	return EventKey{Kind: EventKindMessage, ID: m.ID, SentAt: m.SentAt.UnixMilli()}
}

type NotificationEvent struct {
	ID     string    `json:"id"`
	UserID int64     `json:"user_id"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

func (n NotificationEvent) Key() EventKey {
	return EventKey{Kind: EventKindNotification, ID: n.ID, SentAt: n.SentAt.UnixMilli()}
}

type TypingEvent struct {
	MatchID  int64 `json:"match_id"`
	UserID   int64 `json:"user_id"`
	IsTyping bool  `json:"is_typing"`
}

type AckEvent struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// DecodeMessage validates and normalizes a message payload. Events failing
// shape validation are rejected here once, never half-rendered downstream.
func DecodeMessage(raw json.RawMessage) (MessageEvent, error) {
	var ev MessageEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return MessageEvent{}, fmt.Errorf("unmarshal message event: %w", err)
	}
	if strings.TrimSpace(ev.ID) == "" || ev.MatchID <= 0 || ev.SenderID <= 0 || ev.SentAt.IsZero() {
		return MessageEvent{}, fmt.Errorf("malformed message event: %w", ErrValidation)
	}
	if strings.TrimSpace(ev.SenderName) == "" {
		ev.SenderName = UnknownSenderName
	}
	if strings.TrimSpace(ev.MessageType) == "" {
		ev.MessageType = "text"
	}
	return ev, nil
}

func DecodeNotification(raw json.RawMessage) (NotificationEvent, error) {
	var ev NotificationEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return NotificationEvent{}, fmt.Errorf("unmarshal notification event: %w", err)
	}
	if strings.TrimSpace(ev.ID) == "" || ev.SentAt.IsZero() {
		return NotificationEvent{}, fmt.Errorf("malformed notification event: %w", ErrValidation)
	}
	if strings.TrimSpace(ev.Title) == "" {
		ev.Title = "New notification"
	}
	return ev, nil
}

func DecodeTyping(raw json.RawMessage) (TypingEvent, error) {
	var ev TypingEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return TypingEvent{}, fmt.Errorf("unmarshal typing event: %w", err)
	}
	if ev.MatchID <= 0 || ev.UserID <= 0 {
		return TypingEvent{}, fmt.Errorf("malformed typing event: %w", ErrValidation)
	}
	return ev, nil
}

func DecodeAck(raw json.RawMessage) (AckEvent, error) {
	var ev AckEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return AckEvent{}, fmt.Errorf("unmarshal ack event: %w", err)
	}
	return ev, nil
}

// Coordinate is a WGS84 point. The zero value is a real location (Gulf of
// Guinea), so optional coordinates are passed as *Coordinate.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}
