package client

import (
	"context"
	"log"
	"time"

	"challenge-chat/internal/feed"
	"challenge-chat/internal/models"
	"challenge-chat/internal/realtime"
)

// Session is the chat view of one cohort: an initial load, a realtime
// subscription and optimistic sends, all funnelled through a feed.Feed.
type Session struct {
	api         *Client
	feed        *feed.Feed
	challengeID int64
	cohortID    int64
	tz          string
}

// OpenSession resolves the viewer's cohort, loads the chat and attaches the
// realtime channel. The session works without the channel; Live reports which.
func OpenSession(ctx context.Context, api *Client, sub realtime.Subscriber, viewerID, challengeID int64, loc *time.Location, opts ...feed.Option) (*Session, error) {
	membership, err := api.Membership(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	s := &Session{
		api:         api,
		feed:        feed.New(viewerID, loc, opts...),
		challengeID: challengeID,
		cohortID:    membership.CohortID,
	}
	if loc != nil {
		s.tz = loc.String()
	}
	if err := s.load(ctx); err != nil {
		_ = s.feed.Close()
		return nil, err
	}
	if err := s.feed.Attach(ctx, sub, challengeID, membership.CohortID); err != nil {
		_ = s.feed.Close()
		return nil, err
	}
	if !s.feed.Live() {
		log.Printf("chat session offline challenge_id=%d cohort_id=%d", challengeID, membership.CohortID)
	}
	return s, nil
}

// Feed exposes the underlying view.
func (s *Session) Feed() *feed.Feed { return s.feed }

// CohortID is the cohort the session is attached to.
func (s *Session) CohortID() int64 { return s.cohortID }

// Live reports whether realtime events are arriving.
func (s *Session) Live() bool { return s.feed.Live() }

// API is the client the session sends through.
func (s *Session) API() *Client { return s.api }

// Refresh drops cached data and reloads the chat from the read path.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.api.Cache.Refresh(); err != nil {
		log.Printf("chat session cache refresh failed: %v", err)
	}
	return s.load(ctx)
}

func (s *Session) load(ctx context.Context) error {
	items, err := s.api.ChatFeed(ctx, s.challengeID, s.cohortID, s.tz)
	if err != nil {
		return err
	}
	s.feed.Load(items)
	return nil
}

// Send posts a comment on the challenge. The optimistic entry shows up at once
// and is confirmed or marked failed in place when the write returns.
func (s *Session) Send(ctx context.Context, body string) (models.ChatItem, error) {
	item := s.feed.AddOptimistic(models.ChatItem{
		Kind:        models.KindComment,
		Body:        body,
		ParentKind:  models.ParentChallenge,
		ParentID:    s.challengeID,
		ChallengeID: s.challengeID,
		CohortID:    s.cohortID,
	})
	if item.ClientID == "" {
		return models.ChatItem{}, feed.ErrClosed
	}
	return s.submit(ctx, item)
}

// CheckIn records today's check-in with an optimistic entry, confirmed or
// marked failed in place like Send.
func (s *Session) CheckIn(ctx context.Context, body string) (models.ChatItem, error) {
	item := s.feed.AddOptimistic(models.ChatItem{
		Kind:        models.KindCheckIn,
		Body:        body,
		ChallengeID: s.challengeID,
		CohortID:    s.cohortID,
	})
	if item.ClientID == "" {
		return models.ChatItem{}, feed.ErrClosed
	}
	return s.submit(ctx, item)
}

// Retry resubmits a failed send.
func (s *Session) Retry(ctx context.Context, clientID string) (models.ChatItem, error) {
	item, ok := s.feed.Retry(clientID)
	if !ok {
		return models.ChatItem{}, ErrNotFailed
	}
	return s.submit(ctx, item)
}

// Discard drops a failed or pending send.
func (s *Session) Discard(clientID string) bool {
	return s.feed.Discard(clientID)
}

func (s *Session) submit(ctx context.Context, item models.ChatItem) (models.ChatItem, error) {
	created, err := s.api.Send(ctx, item)
	if err != nil {
		s.feed.Fail(item.ClientID, err)
		return item, err
	}
	s.feed.Confirm(created)
	return created, nil
}

// Close detaches from the realtime channel.
func (s *Session) Close() error {
	return s.feed.Close()
}
