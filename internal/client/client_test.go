package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"challenge-chat/internal/feed"
	"challenge-chat/internal/models"
	"challenge-chat/internal/realtime"
)

type fakeAPI struct {
	mu           sync.Mutex
	nextID       int64
	failComments int
	commentGets  int
	likeGets     int
}

func (a *fakeAPI) handler(t *testing.T) http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		a.mu.Lock()
		defer a.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/challenges/3":
			writeJSON(w, http.StatusOK, map[string]any{
				"challenge":  models.Challenge{ID: 3},
				"membership": models.Membership{ChallengeID: 3, UserID: 1, CohortID: 4},
			})
		case r.Method == http.MethodGet && r.URL.Path == "/challenges/3/cohorts/4/chat":
			assert.Equal(t, "UTC", r.URL.Query().Get("tz"))
			writeJSON(w, http.StatusOK, map[string]any{"items": []models.ChatItem{
				{ID: 100, Kind: models.KindCheckIn, UserID: 2, Body: "ran 5k", ChallengeID: 3, CohortID: 4, CreatedAt: time.Date(2023, 12, 31, 8, 0, 0, 0, time.UTC)},
			}})
		case r.Method == http.MethodPost && r.URL.Path == "/comments":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			if a.failComments > 0 {
				a.failComments--
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store comment"})
				return
			}
			a.nextID++
			parentID, _ := strconv.ParseInt(r.FormValue("challengeId"), 10, 64)
			writeJSON(w, http.StatusCreated, models.ChatItem{
				ID: a.nextID, ClientID: r.FormValue("clientId"), Kind: models.KindComment, UserID: 1,
				Body: r.FormValue("body"), ParentKind: models.ParentChallenge, ParentID: parentID,
				ChallengeID: 3, CohortID: 4, CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			})
		case r.Method == http.MethodPost && r.URL.Path == "/checkins":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			a.nextID++
			writeJSON(w, http.StatusCreated, models.ChatItem{
				ID: a.nextID, ClientID: r.FormValue("clientId"), Kind: models.KindCheckIn, UserID: 1,
				Body: r.FormValue("body"), ChallengeID: 3, CohortID: 4,
				CreatedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
			})
		case r.Method == http.MethodGet && r.URL.Path == "/comments":
			a.commentGets++
			writeJSON(w, http.StatusOK, map[string]any{"comments": []models.ChatItem{{ID: 5, Kind: models.KindComment}}})
		case r.URL.Path == "/likes" && r.Method == http.MethodGet:
			a.likeGets++
			writeJSON(w, http.StatusOK, map[string]any{"targetKind": "post", "ids": []int64{1}})
		case r.URL.Path == "/likes":
			if r.Method == http.MethodPost {
				writeJSON(w, http.StatusCreated, models.Like{ID: 1})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		}
	})
}

func TestSessionSendConfirmFailRetry(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL, "tok", nil)
	clock := feed.WithClock(func() time.Time { return time.Date(2024, 1, 1, 9, 59, 0, 0, time.UTC) })
	s, err := OpenSession(ctx, c, realtime.NewWSSubscriber(srv.URL, ""), 1, 3, time.UTC, clock)
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.Live())
	assert.Equal(t, int64(4), s.CohortID())
	assert.Equal(t, []string{"2023-12-31"}, s.Feed().Days())

	created, err := s.Send(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	assert.NotEmpty(t, created.ClientID)
	assert.Empty(t, s.Feed().Pending())

	api.mu.Lock()
	api.failComments = 1
	api.mu.Unlock()

	failed, err := s.Send(ctx, "again")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)

	day := s.Feed().Snapshot()["2024-01-01"]
	require.Len(t, day, 2)
	assert.Equal(t, feed.StateConfirmed, day[0].State)
	assert.Equal(t, feed.StateFailed, day[1].State)
	assert.Equal(t, failed.ClientID, day[1].ClientID)

	retried, err := s.Retry(ctx, failed.ClientID)
	require.NoError(t, err)
	assert.Equal(t, failed.ClientID, retried.ClientID)
	assert.Empty(t, s.Feed().Pending())

	day = s.Feed().Snapshot()["2024-01-01"]
	require.Len(t, day, 2)
	for _, e := range day {
		assert.Equal(t, feed.StateConfirmed, e.State)
	}

	_, err = s.Retry(ctx, failed.ClientID)
	assert.ErrorIs(t, err, ErrNotFailed)
}

func TestSessionRequiresMembership(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, err := OpenSession(context.Background(), New(srv.URL, "tok", nil), realtime.NewWSSubscriber(srv.URL, ""), 1, 9, time.UTC)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestClientCachesCommentsAndLikes(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL, "tok", nil)

	for i := 0; i < 2; i++ {
		comments, err := c.Comments(ctx, models.ParentPost, 7)
		require.NoError(t, err)
		assert.Len(t, comments, 1)
	}
	assert.Equal(t, 1, api.commentGets)

	_, err := c.Likes(ctx, models.KindPost)
	require.NoError(t, err)
	require.NoError(t, c.Like(ctx, models.KindPost, 2))
	ids, err := c.Likes(ctx, models.KindPost)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)
	require.NoError(t, c.Unlike(ctx, models.KindPost, 1))
	ids, _ = c.Likes(ctx, models.KindPost)
	assert.Equal(t, []int64{2}, ids)
	assert.Equal(t, 1, api.likeGets)

	require.NoError(t, c.Cache.OnLogout())
	_, err = c.Comments(ctx, models.ParentPost, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, api.commentGets)
}

func TestClientUnauthorized(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	_, err := New(srv.URL, "wrong", nil).ChatFeed(context.Background(), 3, 4, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid token", apiErr.Message)
}

func TestSendCommentNeedsParent(t *testing.T) {
	_, err := New("http://127.0.0.1:1", "tok", nil).SendComment(context.Background(), models.ChatItem{Body: "orphan"})
	require.Error(t, err)
}

func TestSessionCheckInKeepsCacheOnOpen(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL, "tok", nil)
	require.NoError(t, c.Cache.OnLogin(1))
	_, err := c.Comments(ctx, models.ParentCheckIn, 100)
	require.NoError(t, err)

	clock := feed.WithClock(func() time.Time { return time.Date(2024, 1, 1, 9, 59, 0, 0, time.UTC) })
	s, err := OpenSession(ctx, c, realtime.NewWSSubscriber(srv.URL, ""), 1, 3, time.UTC, clock)
	require.NoError(t, err)
	defer s.Close()

	_, err = c.Comments(ctx, models.ParentCheckIn, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, api.commentGets)

	// a comment and a check-in sharing an id both stay in the feed
	_, err = s.Send(ctx, "morning")
	require.NoError(t, err)
	api.mu.Lock()
	api.nextID = 0
	api.mu.Unlock()
	created, err := s.CheckIn(ctx, "ran 5k")
	require.NoError(t, err)
	assert.Equal(t, models.KindCheckIn, created.Kind)
	assert.Empty(t, s.Feed().Pending())
	assert.Len(t, s.Feed().Snapshot()["2024-01-01"], 2)

	require.NoError(t, s.Refresh(ctx))
	_, err = c.Comments(ctx, models.ParentCheckIn, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, api.commentGets)
}
