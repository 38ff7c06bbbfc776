package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivankudzin/matchlink/internal/domain/enums"
)

func TestListCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/discovery/candidates", r.URL.Path)
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"user_id": 1, "display_name": "Alice", "coordinate": {"lat": 53.9, "lon": 27.56}},
				{"user_id": 2, "display_name": "Maria"}
			],
			"next_cursor": "def"
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	page, err := client.ListCandidates(context.Background(), "abc", 10)
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(1), page.Items[0].UserID)
	require.NotNil(t, page.Items[0].Coordinate)
	assert.InDelta(t, 53.9, page.Items[0].Coordinate.Lat, 1e-9)
	assert.Nil(t, page.Items[1].Coordinate)
	assert.Equal(t, "def", page.NextCursor)
}

func TestSubmitSwipe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/swipes", r.URL.Path)

		var req SwipeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(7), req.SwiperUserID)
		assert.Equal(t, int64(9), req.SwipedUserID)
		assert.Equal(t, enums.SwipeActionLike, req.Action)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"match_created": true, "match_id": 123}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	ack, err := client.SubmitSwipe(context.Background(), SwipeRequest{
		SwiperUserID: 7,
		SwipedUserID: 9,
		Action:       enums.SwipeActionLike,
	})
	require.NoError(t, err)
	assert.True(t, ack.MatchCreated)
	assert.Equal(t, int64(123), ack.MatchID)
}

func TestSubmitSwipeValidation(t *testing.T) {
	client := NewClient(nil, "http://unused")

	tests := []struct {
		name string
		req  SwipeRequest
	}{
		{name: "self swipe", req: SwipeRequest{SwiperUserID: 7, SwipedUserID: 7, Action: enums.SwipeActionLike}},
		{name: "missing target", req: SwipeRequest{SwiperUserID: 7, Action: enums.SwipeActionLike}},
		{name: "bad action", req: SwipeRequest{SwiperUserID: 7, SwipedUserID: 9, Action: "WINK"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SubmitSwipe(context.Background(), tt.req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestListMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/matches/42/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": "m1", "match_id": 42, "sender_id": 9, "sent_at": "2025-06-01T12:00:00Z", "content": "hi"},
				{"id": "m2", "match_id": 42, "sender_id": 7, "sent_at": "2025-06-01T12:00:05Z", "content": "hey"}
			],
			"next_cursor": ""
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	page, err := client.ListMessages(context.Background(), 42, "", 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	// newest-last contract
	assert.Equal(t, "m1", page.Items[0].ID)
	assert.Equal(t, "m2", page.Items[1].ID)
	assert.Empty(t, page.NextCursor)
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	_, err := client.ListNotifications(context.Background(), "", 20)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerErrorIncludesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL)
	_, err := client.ListCandidates(context.Background(), "", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
