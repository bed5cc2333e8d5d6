package cache

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"challenge-chat/internal/models"
)

func backends(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"pebble": func() Store {
			s, err := OpenPebble("cache", vfs.NewMem())
			require.NoError(t, err)
			return s
		},
	}
}

func TestCommentsRoundTripAndInvalidation(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := New(open())
			defer c.Close()
			require.NoError(t, c.OnLogin(1))

			_, ok := c.Comments(models.ParentPost, 5)
			assert.False(t, ok)

			c.SetComments(models.ParentPost, 5, []models.ChatItem{{ID: 1, Kind: models.KindComment, Body: "first"}})
			items, ok := c.Comments(models.ParentPost, 5)
			require.True(t, ok)
			require.Len(t, items, 1)

			c.AddComment(models.ChatItem{ID: 2, Kind: models.KindComment, ParentKind: models.ParentPost, ParentID: 5, Body: "second"})
			c.AddComment(models.ChatItem{ID: 2, Kind: models.KindComment, ParentKind: models.ParentPost, ParentID: 5, Body: "second"})
			c.AddComment(models.ChatItem{ID: 3, Kind: models.KindComment, ParentKind: models.ParentPost, ParentID: 6})
			items, _ = c.Comments(models.ParentPost, 5)
			assert.Len(t, items, 2)
			_, ok = c.Comments(models.ParentPost, 6)
			assert.False(t, ok, "uncached parents stay uncached")

			require.NoError(t, c.Refresh())
			_, ok = c.Comments(models.ParentPost, 5)
			assert.False(t, ok)
			assert.Equal(t, int64(1), c.UserID())
		})
	}
}

func TestLikesClearedOnLoginAndLogout(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			c := New(open())
			defer c.Close()

			c.SetLikes(models.KindPost, []int64{1, 2})
			c.MarkLiked(models.KindPost, 3, true)
			c.MarkLiked(models.KindPost, 1, false)
			ids, ok := c.Likes(models.KindPost)
			require.True(t, ok)
			assert.ElementsMatch(t, []int64{2, 3}, ids)

			require.NoError(t, c.OnLogin(2))
			_, ok = c.Likes(models.KindPost)
			assert.False(t, ok)

			c.SetLikes(models.KindComment, []int64{9})
			require.NoError(t, c.OnLogout())
			_, ok = c.Likes(models.KindComment)
			assert.False(t, ok)
			assert.Zero(t, c.UserID())
		})
	}
}

func TestPebbleStorePersistsAcrossReopen(t *testing.T) {
	fs := vfs.NewMem()
	s, err := OpenPebble("cache", fs)
	require.NoError(t, err)
	New(s).SetLikes(models.KindCheckIn, []int64{4})
	require.NoError(t, s.Close())

	s, err = OpenPebble("cache", fs)
	require.NoError(t, err)
	defer s.Close()
	ids, ok := New(s).Likes(models.KindCheckIn)
	require.True(t, ok)
	assert.Equal(t, []int64{4}, ids)
}

func TestLoginKeepsEntriesForSameUserAcrossReopen(t *testing.T) {
	fs := vfs.NewMem()
	s, err := OpenPebble("cache", fs)
	require.NoError(t, err)
	c := New(s)
	require.NoError(t, c.OnLogin(3))
	c.SetComments(models.ParentChallenge, 8, []models.ChatItem{{ID: 1, Kind: models.KindComment}})
	require.NoError(t, s.Close())

	s, err = OpenPebble("cache", fs)
	require.NoError(t, err)
	c = New(s)
	assert.Equal(t, int64(3), c.UserID())
	require.NoError(t, c.OnLogin(3))
	items, ok := c.Comments(models.ParentChallenge, 8)
	require.True(t, ok)
	assert.Len(t, items, 1)

	require.NoError(t, c.OnLogin(4))
	_, ok = c.Comments(models.ParentChallenge, 8)
	assert.False(t, ok)
	assert.Equal(t, int64(4), c.UserID())
	require.NoError(t, s.Close())

	s, err = OpenPebble("cache", fs)
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, int64(4), New(s).UserID())
}
