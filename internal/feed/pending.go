package feed

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"challenge-chat/internal/models"
)

// ContentHash is the fallback key for echoes that come back without a client id.
func ContentHash(body string) uint64 {
	return xxhash.Sum64String(body)
}

type pendingEntry struct {
	item models.ChatItem
	hash uint64
	day  string
}

// PendingSet holds optimistic items in submission order.
type PendingSet struct {
	entries []pendingEntry
}

// NewPendingSet returns an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{}
}

// Add records item under day and returns it with a client id assigned.
func (p *PendingSet) Add(item models.ChatItem, day string) models.ChatItem {
	if item.ClientID == "" {
		item.ClientID = uuid.NewString()
	}
	p.entries = append(p.entries, pendingEntry{item: item, hash: ContentHash(item.Body), day: day})
	return item
}

// Take removes and returns the entry a confirmed item answers.
//
// A client id on the confirmed item is authoritative. Without one the oldest
// entry with the same body wins, preferring entries filed under the same day.
// An entry from another day still matches when no same-day entry does: the
// optimistic day comes from the local clock and the server timestamp can land
// across midnight from it.
func (p *PendingSet) Take(confirmed models.ChatItem, day string) (models.ChatItem, bool) {
	if confirmed.ClientID != "" {
		for i, e := range p.entries {
			if e.item.ClientID == confirmed.ClientID {
				return p.removeAt(i), true
			}
		}
		return models.ChatItem{}, false
	}

	hash := ContentHash(confirmed.Body)
	fallback := -1
	for i, e := range p.entries {
		if e.hash != hash || e.item.Kind != confirmed.Kind {
			continue
		}
		if e.day == day {
			return p.removeAt(i), true
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback >= 0 {
		return p.removeAt(fallback), true
	}
	return models.ChatItem{}, false
}

// Get looks an entry up by client id.
func (p *PendingSet) Get(clientID string) (models.ChatItem, bool) {
	for _, e := range p.entries {
		if e.item.ClientID == clientID {
			return e.item, true
		}
	}
	return models.ChatItem{}, false
}

// Remove drops an entry by client id.
func (p *PendingSet) Remove(clientID string) bool {
	for i, e := range p.entries {
		if e.item.ClientID == clientID {
			p.removeAt(i)
			return true
		}
	}
	return false
}

// Len returns the number of unconfirmed items.
func (p *PendingSet) Len() int {
	return len(p.entries)
}

// Items returns the unconfirmed items, oldest first.
func (p *PendingSet) Items() []models.ChatItem {
	out := make([]models.ChatItem, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.item)
	}
	return out
}

func (p *PendingSet) removeAt(i int) models.ChatItem {
	item := p.entries[i].item
	p.entries = append(p.entries[:i], p.entries[i+1:]...)
	return item
}
