package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"challenge-chat/internal/models"
)

func TestTopic(t *testing.T) {
	assert.Equal(t, "chat-12-3", Topic(12, 3))

	topic, ok := TopicFor(models.ChatItem{ChallengeID: 4, CohortID: 9})
	require.True(t, ok)
	assert.Equal(t, "chat-4-9", topic)

	_, ok = TopicFor(models.ChatItem{ChallengeID: 4})
	assert.False(t, ok)
}

func TestSubscribeWithoutKeyIsOffline(t *testing.T) {
	sub, err := NewWSSubscriber("http://localhost:1", "").Subscribe(context.Background(), 1, 2)

	require.NoError(t, err)
	assert.False(t, sub.Live())
	assert.Equal(t, "empty client key", OfflineReason(sub))
	assert.NoError(t, sub.Close())
}

func TestSubscribeWithoutScopeIsOffline(t *testing.T) {
	sub, err := NewWSSubscriber("http://localhost:1", "key").Subscribe(context.Background(), 1, 0)

	require.NoError(t, err)
	assert.False(t, sub.Live())
	assert.Equal(t, "missing challenge or cohort", OfflineReason(sub))
}

func TestSubscribeDialFailureIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	sub, err := NewWSSubscriber(srv.URL, "key").Subscribe(context.Background(), 1, 2)

	require.NoError(t, err)
	assert.False(t, sub.Live())
	assert.NotEmpty(t, OfflineReason(sub))
}

// echoServer upgrades one connection and hands it to the test.
func echoServer(t *testing.T) (*httptest.Server, <-chan *websocket.Conn, <-chan string) {
	t.Helper()
	conns := make(chan *websocket.Conn, 1)
	paths := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path + "?" + r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns, paths
}

func TestSubscriptionDeliversAndStopsAfterClose(t *testing.T) {
	srv, conns, paths := echoServer(t)

	sub, err := NewWSSubscriber(srv.URL, "secret").Subscribe(context.Background(), 7, 8)
	require.NoError(t, err)
	require.True(t, sub.Live())
	assert.Equal(t, "/ws/chat/7/8?token=secret", <-paths)

	var mu sync.Mutex
	var got []Event
	received := make(chan struct{}, 4)
	sub.Bind(func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
		received <- struct{}{}
	})

	server := <-conns
	defer server.Close()

	frame, err := Encode(Topic(7, 8), models.ChatItem{ID: 42, Body: "hello", UserID: 3})
	require.NoError(t, err)
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, server.WriteMessage(websocket.TextMessage, frame))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, sub.Close())
	assert.False(t, sub.Live())
	_ = server.WriteMessage(websocket.TextMessage, frame)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, EventNewMessage, got[0].Name)
	assert.Equal(t, int64(42), got[0].Item.ID)
}

func TestSubscriptionNotLiveAfterServerDrop(t *testing.T) {
	srv, conns, _ := echoServer(t)

	sub, err := NewWSSubscriber(srv.URL, "secret").Subscribe(context.Background(), 7, 8)
	require.NoError(t, err)
	defer sub.Close()

	lost := make(chan Event, 1)
	sub.Bind(func(ev Event) {
		if ev.Name == EventDisconnected {
			lost <- ev
		}
	})

	server := <-conns
	require.True(t, sub.Live())
	require.NoError(t, server.Close())

	select {
	case ev := <-lost:
		assert.Equal(t, Topic(7, 8), ev.Topic)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}
	assert.False(t, sub.Live())
}

func TestEndpointRejectsUnknownScheme(t *testing.T) {
	s := NewWSSubscriber("ftp://example.com", "k")

	_, err := s.endpoint(1, 2)

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unsupported scheme"))
}
