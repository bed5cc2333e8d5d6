package feed

import (
	"time"

	"challenge-chat/internal/models"
)

// DateLayout is the key format of a day bucket.
const DateLayout = "2006-01-02"

// Bucketer maps timestamps to calendar days in the viewer's location.
type Bucketer struct {
	Location *time.Location
}

// NewBucketer returns a Bucketer for loc, UTC when loc is nil.
func NewBucketer(loc *time.Location) Bucketer {
	if loc == nil {
		loc = time.UTC
	}
	return Bucketer{Location: loc}
}

// Key returns the local calendar day of t.
func (b Bucketer) Key(t time.Time) string {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}

// Bucket groups items by local day. Items keep their input order inside a day.
func (b Bucketer) Bucket(items []models.ChatItem) map[string][]models.ChatItem {
	out := make(map[string][]models.ChatItem)
	for _, item := range items {
		key := b.Key(item.CreatedAt)
		out[key] = append(out[key], item)
	}
	return out
}

// StartOfDay returns local midnight of the day containing t.
func (b Bucketer) StartOfDay(t time.Time) time.Time {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
