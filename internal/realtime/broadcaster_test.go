package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"challenge-chat/internal/models"
)

type recordingFanout struct {
	topics   []string
	payloads [][]byte
}

func (r *recordingFanout) Publish(topic string, payload []byte) {
	r.topics = append(r.topics, topic)
	r.payloads = append(r.payloads, payload)
}

func TestNewBroadcasterFallsBackToLocal(t *testing.T) {
	b := NewBroadcaster("", "realtime", &recordingFanout{})

	assert.Equal(t, "local", Mode(b))
	assert.NoError(t, b.Close())
}

func TestLocalBroadcastPublishesFrame(t *testing.T) {
	fanout := &recordingFanout{}
	b := NewLocalBroadcaster(fanout)
	item := models.ChatItem{ID: 5, ChallengeID: 2, CohortID: 3, Body: "go", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, b.Broadcast(context.Background(), item))

	require.Equal(t, []string{"chat-2-3"}, fanout.topics)
	var ev Event
	require.NoError(t, json.Unmarshal(fanout.payloads[0], &ev))
	assert.Equal(t, EventNewMessage, ev.Name)
	assert.Equal(t, item, ev.Item)
}

func TestLocalBroadcastSkipsUnscopedItems(t *testing.T) {
	fanout := &recordingFanout{}

	require.NoError(t, NewLocalBroadcaster(fanout).Broadcast(context.Background(), models.ChatItem{ID: 1}))

	assert.Empty(t, fanout.topics)
}

func TestLocalRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, NewLocalBroadcaster(nil).Run(ctx))
}
