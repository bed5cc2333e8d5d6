// Package feed keeps the day-bucketed chat view of one challenge cohort in
// sync with optimistic local sends and realtime confirmations.
package feed

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"challenge-chat/internal/models"
	"challenge-chat/internal/realtime"
)

// ErrClosed is returned when a closed feed is attached again.
var ErrClosed = errors.New("feed closed")

// Feed is one view instance. All mutations are serialised on mu, and nothing
// changes once Close has been called.
type Feed struct {
	mu       sync.Mutex
	rec      *Reconciler
	sub      realtime.Subscription
	closed   bool
	onChange func()
}

// Option configures a Feed.
type Option func(*Feed)

// WithClock overrides the clock used to timestamp optimistic entries.
func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.rec.now = now }
}

// WithOnChange registers a callback run after every change to the buckets.
// It runs outside the feed lock.
func WithOnChange(fn func()) Option {
	return func(f *Feed) { f.onChange = fn }
}

// New builds a feed for viewerID bucketing days in loc.
func New(viewerID int64, loc *time.Location, opts ...Option) *Feed {
	f := &Feed{rec: NewReconciler(viewerID, NewBucketer(loc))}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Attach opens the realtime subscription for a cohort, closing any previous
// one first. A missing scope or an unavailable channel leaves the feed
// refresh-driven; see Live.
func (f *Feed) Attach(ctx context.Context, s realtime.Subscriber, challengeID, cohortID int64) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	old := f.sub
	f.sub = nil
	f.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			log.Printf("feed close previous subscription: %v", err)
		}
	}

	sub, err := s.Subscribe(ctx, challengeID, cohortID)
	if err != nil {
		log.Printf("feed subscribe failed challenge_id=%d cohort_id=%d err=%v", challengeID, cohortID, err)
		sub = realtime.Offline(err.Error())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		_ = sub.Close()
		return ErrClosed
	}
	f.sub = sub
	sub.Bind(f.handle)
	return nil
}

// Live reports whether a realtime subscription is delivering events.
func (f *Feed) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sub != nil && f.sub.Live()
}

func (f *Feed) handle(ev realtime.Event) {
	if ev.Name == realtime.EventDisconnected {
		log.Printf("feed realtime lost topic=%s, refresh-driven from now on", ev.Topic)
		// Live has flipped; let the view show it.
		f.apply(func(*Reconciler) bool { return true })
		return
	}
	if ev.Name != realtime.EventNewMessage {
		log.Printf("feed ignored event name=%s topic=%s", ev.Name, ev.Topic)
		return
	}
	f.apply(func(r *Reconciler) bool { return r.OnInboundEvent(ev.Item) })
}

// AddOptimistic files a local item before it is sent and returns it with its
// client id, which must travel with the write request.
func (f *Feed) AddOptimistic(item models.ChatItem) models.ChatItem {
	var out models.ChatItem
	f.apply(func(r *Reconciler) bool {
		out = r.AddOptimistic(item)
		return true
	})
	return out
}

// Confirm applies the write response for one of the viewer's items.
func (f *Feed) Confirm(item models.ChatItem) {
	f.apply(func(r *Reconciler) bool { return r.Confirm(item) })
}

// Fail marks a send as failed in place.
func (f *Feed) Fail(clientID string, cause error) {
	f.apply(func(r *Reconciler) bool { return r.Fail(clientID, cause) })
}

// Retry returns a failed item for resubmission and marks it pending again.
func (f *Feed) Retry(clientID string) (models.ChatItem, bool) {
	var item models.ChatItem
	var ok bool
	f.apply(func(r *Reconciler) bool {
		item, ok = r.Retry(clientID)
		return ok
	})
	return item, ok
}

// Discard drops an unconfirmed item.
func (f *Feed) Discard(clientID string) bool {
	var ok bool
	f.apply(func(r *Reconciler) bool {
		ok = r.Discard(clientID)
		return ok
	})
	return ok
}

// Load replaces the confirmed content with a full listing from the read path.
func (f *Feed) Load(items []models.ChatItem) {
	f.apply(func(r *Reconciler) bool {
		r.Load(items)
		return true
	})
}

// Snapshot returns a copy of the day buckets.
func (f *Feed) Snapshot() map[string][]Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Snapshot()
}

// Days returns the bucket keys in ascending order.
func (f *Feed) Days() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Days()
}

// Pending returns the unconfirmed items, oldest first.
func (f *Feed) Pending() []models.ChatItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rec.Pending()
}

// Close tears the subscription down. Events and late write responses that
// arrive afterwards are ignored.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (f *Feed) apply(fn func(*Reconciler) bool) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	changed := fn(f.rec)
	f.mu.Unlock()

	if changed && f.onChange != nil {
		f.onChange()
	}
}
