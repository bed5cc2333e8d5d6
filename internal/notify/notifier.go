// Package notify queues email and push notifications for an external mailer.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"challenge-chat/internal/models"
	"challenge-chat/internal/observability"
)

// Kind is what triggered a notification.
type Kind string

const (
	KindComment  Kind = "comment"
	KindLike     Kind = "like"
	KindReminder Kind = "reminder"
)

// Routing keys the mailer and push workers consume.
const (
	RoutingEmail = "notifications.email"
	RoutingPush  = "notifications.push"
)

// Notification is the envelope placed on the queue.
type Notification struct {
	Kind        Kind            `json:"kind"`
	RecipientID int64           `json:"recipientId"`
	ActorID     int64           `json:"actorId,omitempty"`
	ChallengeID int64           `json:"challengeId,omitempty"`
	TargetKind  models.ItemKind `json:"targetKind,omitempty"`
	TargetID    int64           `json:"targetId,omitempty"`
	Subject     string          `json:"subject"`
	Text        string          `json:"text"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Publisher is the queue a Notifier writes to.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Notifier turns domain events into notifications.
type Notifier struct {
	publisher Publisher
	now       func() time.Time
}

// NewNotifier builds a Notifier. A nil publisher drops everything.
func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher, now: time.Now}
}

// Send queues n for both email and push delivery.
func (n *Notifier) Send(ctx context.Context, note Notification) error {
	if n == nil || n.publisher == nil {
		return nil
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = n.now().UTC()
	}
	for _, key := range []string{RoutingEmail, RoutingPush} {
		if err := n.publisher.Publish(ctx, key, note); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
	}
	observability.IncNotification(string(note.Kind))
	return nil
}

// CommentAdded tells the owner of the commented item. Self-comments are silent.
func (n *Notifier) CommentAdded(ctx context.Context, comment models.ChatItem, ownerID int64) error {
	if ownerID == 0 || ownerID == comment.UserID {
		return nil
	}
	return n.Send(ctx, Notification{
		Kind:        KindComment,
		RecipientID: ownerID,
		ActorID:     comment.UserID,
		ChallengeID: comment.ChallengeID,
		TargetKind:  models.ItemKind(comment.ParentKind),
		TargetID:    comment.ParentID,
		Subject:     "New comment",
		Text:        truncate(comment.Body, 140),
	})
}

// Liked tells the owner of the liked item. Self-likes are silent.
func (n *Notifier) Liked(ctx context.Context, like models.Like, ownerID int64) error {
	if ownerID == 0 || ownerID == like.UserID {
		return nil
	}
	return n.Send(ctx, Notification{
		Kind:        KindLike,
		RecipientID: ownerID,
		ActorID:     like.UserID,
		TargetKind:  like.TargetKind,
		TargetID:    like.TargetID,
		Subject:     "Someone liked your " + string(like.TargetKind),
		Text:        fmt.Sprintf("Your %s got a like", like.TargetKind),
	})
}

// Async runs fn in the background with its own timeout and logs failures.
// Notifications never fail the request that triggered them.
func Async(what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("notify %s failed: %v", what, err)
		}
	}()
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
