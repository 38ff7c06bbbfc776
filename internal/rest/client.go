// Package rest wraps the CRUD collaborators the session core consumes:
// candidate discovery, swipe submission, message history and the durable
// notification list. The realtime core treats these calls as informational;
// their failure never blocks local state transitions.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ivankudzin/matchlink/internal/domain"
	"github.com/ivankudzin/matchlink/internal/domain/enums"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
)

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

type CandidatePage struct {
	Items      []domain.Candidate `json:"items"`
	NextCursor string             `json:"next_cursor"`
}

// ListCandidates fetches one discovery page. Pagination is cursor-based;
// an empty NextCursor means the feed is exhausted.
func (c *Client) ListCandidates(ctx context.Context, cursor string, limit int) (CandidatePage, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var page CandidatePage
	if err := c.get(ctx, "/discovery/candidates", query, &page); err != nil {
		return CandidatePage{}, fmt.Errorf("list candidates: %w", err)
	}
	return page, nil
}

type SwipeRequest struct {
	SwiperUserID int64             `json:"swiper_user_id"`
	SwipedUserID int64             `json:"swiped_user_id"`
	Action       enums.SwipeAction `json:"action"`
}

type SwipeAck struct {
	MatchCreated bool  `json:"match_created"`
	MatchID      int64 `json:"match_id,omitempty"`
}

// SubmitSwipe records a swipe durably. This is the fallback that survives
// disconnection; the channel emission, if any, is best-effort on top.
func (c *Client) SubmitSwipe(ctx context.Context, req SwipeRequest) (SwipeAck, error) {
	if req.SwiperUserID <= 0 || req.SwipedUserID <= 0 || req.SwiperUserID == req.SwipedUserID {
		return SwipeAck{}, fmt.Errorf("invalid swipe payload: %w", ErrValidation)
	}
	if _, err := enums.ParseSwipeAction(string(req.Action)); err != nil {
		return SwipeAck{}, fmt.Errorf("invalid swipe action %q: %w", req.Action, ErrValidation)
	}

	var ack SwipeAck
	if err := c.post(ctx, "/swipes", req, &ack); err != nil {
		return SwipeAck{}, fmt.Errorf("submit swipe: %w", err)
	}
	return ack, nil
}

type MessagePage struct {
	Items      []domain.MessageEvent `json:"items"`
	NextCursor string                `json:"next_cursor"`
}

// ListMessages fetches one page of durable conversation history,
// newest-last. Used to seed a conversation buffer on (re)entry.
func (c *Client) ListMessages(ctx context.Context, matchID int64, cursor string, limit int) (MessagePage, error) {
	if matchID <= 0 {
		return MessagePage{}, fmt.Errorf("invalid match id: %w", ErrValidation)
	}
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var page MessagePage
	path := fmt.Sprintf("/matches/%d/messages", matchID)
	if err := c.get(ctx, path, query, &page); err != nil {
		return MessagePage{}, fmt.Errorf("list messages: %w", err)
	}
	return page, nil
}

type NotificationPage struct {
	Items      []domain.NotificationEvent `json:"items"`
	NextCursor string                     `json:"next_cursor"`
}

func (c *Client) ListNotifications(ctx context.Context, cursor string, limit int) (NotificationPage, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var page NotificationPage
	if err := c.get(ctx, "/notifications", query, &page); err != nil {
		return NotificationPage{}, fmt.Errorf("list notifications: %w", err)
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
