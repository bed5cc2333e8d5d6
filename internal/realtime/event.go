package realtime

import (
	"fmt"

	"challenge-chat/internal/models"
)

// EventNewMessage is emitted when a post, check-in or comment is persisted.
const EventNewMessage = "new-message"

// EventDisconnected is raised locally, never sent by the server, when a live
// subscription loses its connection. The subscription is not live afterwards.
const EventDisconnected = "disconnected"

// Event is a single frame on a chat topic. Item has the same shape as the
// HTTP write response.
type Event struct {
	Name  string          `json:"event"`
	Topic string          `json:"topic"`
	Item  models.ChatItem `json:"data"`
}

// Topic names the channel for one cohort of one challenge.
func Topic(challengeID, cohortID int64) string {
	return fmt.Sprintf("chat-%d-%d", challengeID, cohortID)
}

// TopicFor returns the topic an item is broadcast on, or false when the item
// is not scoped to a challenge cohort.
func TopicFor(item models.ChatItem) (string, bool) {
	if item.ChallengeID == 0 || item.CohortID == 0 {
		return "", false
	}
	return Topic(item.ChallengeID, item.CohortID), true
}
