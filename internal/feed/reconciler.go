package feed

import (
	"log"
	"sort"
	"time"

	"challenge-chat/internal/models"
	"challenge-chat/internal/observability"
)

// State is where an entry is in its lifecycle.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateFailed    State = "failed"
)

// Entry is one row of a day bucket.
type Entry struct {
	models.ChatItem
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
}

// itemKey identifies a persisted item. Posts, check-ins and comments are
// numbered by separate sequences.
type itemKey struct {
	kind models.ItemKind
	id   int64
}

func keyOf(item models.ChatItem) itemKey {
	return itemKey{kind: item.Kind, id: item.ID}
}

// Reconciler merges optimistic entries with confirmed items into day buckets.
// It is not safe for concurrent use; Feed serialises access.
type Reconciler struct {
	viewerID int64
	bucketer Bucketer
	days     map[string][]Entry
	ids      map[itemKey]string
	pending  *PendingSet
	now      func() time.Time
}

// NewReconciler builds an empty reconciler for the given viewer.
func NewReconciler(viewerID int64, bucketer Bucketer) *Reconciler {
	return &Reconciler{
		viewerID: viewerID,
		bucketer: bucketer,
		days:     make(map[string][]Entry),
		ids:      make(map[itemKey]string),
		pending:  NewPendingSet(),
		now:      time.Now,
	}
}

// AddOptimistic files a not-yet-persisted item by the viewer under today's
// bucket and returns it with its client id.
func (r *Reconciler) AddOptimistic(item models.ChatItem) models.ChatItem {
	item.ID = 0
	item.UserID = r.viewerID
	if item.Kind == "" {
		item.Kind = models.KindComment
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.now()
	}
	day := r.bucketer.Key(item.CreatedAt)
	item = r.pending.Add(item, day)
	r.days[day] = append(r.days[day], Entry{ChatItem: item, State: StatePending})
	return item
}

// OnInboundEvent applies an item received on the realtime channel. It
// reports whether the buckets changed.
func (r *Reconciler) OnInboundEvent(item models.ChatItem) bool {
	if !item.Confirmed() {
		log.Printf("feed ignored inbound item without id client_id=%s", item.ClientID)
		return false
	}
	if item.UserID == r.viewerID {
		return r.Confirm(item)
	}
	if !r.insertConfirmed(item) {
		observability.IncReconcile("duplicate")
		return false
	}
	observability.IncReconcile("inserted")
	return true
}

// Confirm applies the server's copy of one of the viewer's own items, from
// either the write response or the realtime echo.
func (r *Reconciler) Confirm(item models.ChatItem) bool {
	if !item.Confirmed() {
		return false
	}
	if _, dup := r.ids[keyOf(item)]; dup {
		observability.IncReconcile("duplicate")
		return false
	}
	outcome := "inserted"
	if opt, ok := r.pending.Take(item, r.bucketer.Key(item.CreatedAt)); ok {
		r.dropOptimistic(opt.ClientID)
		if item.ClientID == "" {
			item.ClientID = opt.ClientID
		}
		outcome = "matched"
	}
	observability.IncReconcile(outcome)
	return r.insertConfirmed(item)
}

// Fail marks an optimistic entry as failed in place.
func (r *Reconciler) Fail(clientID string, cause error) bool {
	if _, ok := r.pending.Get(clientID); !ok {
		return false
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.updateOptimistic(clientID, func(e *Entry) {
		e.State = StateFailed
		e.Error = msg
	})
}

// Retry moves a failed entry back to pending and returns it for resubmission.
func (r *Reconciler) Retry(clientID string) (models.ChatItem, bool) {
	var item models.ChatItem
	found := false
	r.updateOptimistic(clientID, func(e *Entry) {
		if e.State != StateFailed {
			return
		}
		e.State = StatePending
		e.Error = ""
		item = e.ChatItem
		found = true
	})
	return item, found
}

// Discard removes an unconfirmed entry entirely.
func (r *Reconciler) Discard(clientID string) bool {
	if !r.pending.Remove(clientID) {
		return false
	}
	r.dropOptimistic(clientID)
	return true
}

// Load replaces confirmed content with a full server listing. Items are
// re-sorted by createdAt; unconfirmed entries the listing does not answer
// are kept.
func (r *Reconciler) Load(items []models.ChatItem) {
	sorted := make([]models.ChatItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	unconfirmed := make(map[string]Entry)
	for _, entries := range r.days {
		for _, e := range entries {
			if !e.Confirmed() {
				unconfirmed[e.ClientID] = e
			}
		}
	}

	r.days = make(map[string][]Entry)
	r.ids = make(map[itemKey]string)
	for _, item := range sorted {
		if !item.Confirmed() {
			continue
		}
		if item.ClientID != "" {
			if _, ok := r.pending.Take(item, r.bucketer.Key(item.CreatedAt)); ok {
				delete(unconfirmed, item.ClientID)
			}
		}
		r.insertConfirmed(item)
	}

	for _, opt := range r.pending.Items() {
		e, ok := unconfirmed[opt.ClientID]
		if !ok {
			e = Entry{ChatItem: opt, State: StatePending}
		}
		day := r.bucketer.Key(e.CreatedAt)
		r.days[day] = append(r.days[day], e)
	}
}

// Snapshot returns a copy of the buckets.
func (r *Reconciler) Snapshot() map[string][]Entry {
	out := make(map[string][]Entry, len(r.days))
	for day, entries := range r.days {
		out[day] = append([]Entry(nil), entries...)
	}
	return out
}

// Days returns bucket keys in ascending order.
func (r *Reconciler) Days() []string {
	keys := make([]string, 0, len(r.days))
	for day := range r.days {
		keys = append(keys, day)
	}
	sort.Strings(keys)
	return keys
}

// Pending returns the unconfirmed items, oldest first.
func (r *Reconciler) Pending() []models.ChatItem {
	return r.pending.Items()
}

func (r *Reconciler) insertConfirmed(item models.ChatItem) bool {
	if _, dup := r.ids[keyOf(item)]; dup {
		return false
	}
	day := r.bucketer.Key(item.CreatedAt)
	r.days[day] = append(r.days[day], Entry{ChatItem: item, State: StateConfirmed})
	r.ids[keyOf(item)] = day
	return true
}

func (r *Reconciler) dropOptimistic(clientID string) {
	for day, entries := range r.days {
		for i, e := range entries {
			if e.Confirmed() || e.ClientID != clientID {
				continue
			}
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(r.days, day)
			} else {
				r.days[day] = entries
			}
			return
		}
	}
}

func (r *Reconciler) updateOptimistic(clientID string, fn func(*Entry)) bool {
	for _, entries := range r.days {
		for i := range entries {
			if entries[i].Confirmed() || entries[i].ClientID != clientID {
				continue
			}
			fn(&entries[i])
			return true
		}
	}
	return false
}
