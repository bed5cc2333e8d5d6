// Package cache keeps client-side copies of comment lists and the viewer's
// likes. Entries are dropped on logout, on explicit refresh and when a
// different user logs in; the same user logging in again keeps them.
package cache

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"challenge-chat/internal/models"
)

// Store is a byte-level backend.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Clear() error
	Close() error
}

// Cache is the typed view the API client uses.
type Cache struct {
	mu     sync.Mutex
	store  Store
	userID int64
}

const ownerKey = "owner"

// New wraps store. A nil store gets an in-memory one. The viewer recorded in a
// persistent store is picked up again.
func New(store Store) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{store: store}
	c.getLocked(ownerKey, &c.userID)
	return c
}

// UserID returns the viewer the cache currently belongs to.
func (c *Cache) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// OnLogin binds the cache to userID. Entries written for another user are
// dropped.
func (c *Cache) OnLogin(userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID == userID && userID != 0 {
		return nil
	}
	return c.resetLocked(userID)
}

// OnLogout drops everything.
func (c *Cache) OnLogout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(0)
}

// Refresh drops everything but keeps the viewer.
func (c *Cache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resetLocked(c.userID)
}

func (c *Cache) resetLocked(userID int64) error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.userID = userID
	if userID != 0 {
		c.setLocked(ownerKey, userID)
	}
	return nil
}

// Close releases the backend.
func (c *Cache) Close() error {
	return c.store.Close()
}

func commentsKey(kind models.ParentKind, parentID int64) string {
	return fmt.Sprintf("comments/%s/%d", kind, parentID)
}

func likesKey(kind models.ItemKind) string {
	return "likes/" + string(kind)
}

// Comments returns the cached comments under a parent.
func (c *Cache) Comments(kind models.ParentKind, parentID int64) ([]models.ChatItem, bool) {
	var items []models.ChatItem
	ok := c.get(commentsKey(kind, parentID), &items)
	return items, ok
}

// SetComments replaces the cached comments under a parent.
func (c *Cache) SetComments(kind models.ParentKind, parentID int64, items []models.ChatItem) {
	c.set(commentsKey(kind, parentID), items)
}

// AddComment appends a confirmed comment to its parent's list when that list
// is cached. Comments already present by id are ignored.
func (c *Cache) AddComment(item models.ChatItem) {
	if item.Kind != models.KindComment || !item.Confirmed() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := commentsKey(item.ParentKind, item.ParentID)
	var items []models.ChatItem
	if !c.getLocked(key, &items) {
		return
	}
	for _, existing := range items {
		if existing.ID == item.ID {
			return
		}
	}
	c.setLocked(key, append(items, item))
}

// Likes returns the cached liked ids for kind.
func (c *Cache) Likes(kind models.ItemKind) ([]int64, bool) {
	var ids []int64
	ok := c.get(likesKey(kind), &ids)
	return ids, ok
}

// SetLikes replaces the cached liked ids for kind.
func (c *Cache) SetLikes(kind models.ItemKind, ids []int64) {
	c.set(likesKey(kind), ids)
}

// MarkLiked adds or removes id from the cached likes for kind, if cached.
func (c *Cache) MarkLiked(kind models.ItemKind, id int64, liked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := likesKey(kind)
	var ids []int64
	if !c.getLocked(key, &ids) {
		return
	}
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	if liked {
		out = append(out, id)
	}
	c.setLocked(key, out)
}

func (c *Cache) get(key string, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key, dst)
}

func (c *Cache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value)
}

func (c *Cache) getLocked(key string, dst any) bool {
	raw, ok, err := c.store.Get(key)
	if err != nil {
		log.Printf("cache get failed key=%s err=%v", key, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.Printf("cache decode failed key=%s err=%v", key, err)
		return false
	}
	return true
}

func (c *Cache) setLocked(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache encode failed key=%s err=%v", key, err)
		return
	}
	if err := c.store.Set(key, raw); err != nil {
		log.Printf("cache set failed key=%s err=%v", key, err)
	}
}
