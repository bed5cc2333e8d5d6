package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"challenge-chat/internal/media"
	"challenge-chat/internal/models"
	"challenge-chat/internal/realtime"
	"challenge-chat/internal/repositories"
)

type SessionRepositoryMock struct {
	mock.Mock
}

func (m *SessionRepositoryMock) UserIDForToken(ctx context.Context, token string) (int64, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(int64), args.Error(1)
}

type ChallengeRepositoryMock struct {
	mock.Mock
}

func (m *ChallengeRepositoryMock) CreateChallenge(ctx context.Context, c models.Challenge) (models.Challenge, error) {
	args := m.Called(ctx, c)
	var out models.Challenge
	if val := args.Get(0); val != nil {
		out = val.(models.Challenge)
	}
	return out, args.Error(1)
}

func (m *ChallengeRepositoryMock) GetChallenge(ctx context.Context, challengeID int64) (models.Challenge, error) {
	args := m.Called(ctx, challengeID)
	var out models.Challenge
	if val := args.Get(0); val != nil {
		out = val.(models.Challenge)
	}
	return out, args.Error(1)
}

func (m *ChallengeRepositoryMock) ListChallengesForUser(ctx context.Context, userID int64) ([]models.Challenge, error) {
	args := m.Called(ctx, userID)
	var list []models.Challenge
	if val := args.Get(0); val != nil {
		list = val.([]models.Challenge)
	}
	return list, args.Error(1)
}

func (m *ChallengeRepositoryMock) Join(ctx context.Context, challengeID, userID int64, startedOn time.Time) (models.Membership, error) {
	args := m.Called(ctx, challengeID, userID, startedOn)
	var out models.Membership
	if val := args.Get(0); val != nil {
		out = val.(models.Membership)
	}
	return out, args.Error(1)
}

func (m *ChallengeRepositoryMock) GetMembership(ctx context.Context, challengeID, userID int64) (models.Membership, error) {
	args := m.Called(ctx, challengeID, userID)
	var out models.Membership
	if val := args.Get(0); val != nil {
		out = val.(models.Membership)
	}
	return out, args.Error(1)
}

func (m *ChallengeRepositoryMock) ListActiveChallenges(ctx context.Context, now time.Time) ([]models.Challenge, error) {
	args := m.Called(ctx, now)
	var list []models.Challenge
	if val := args.Get(0); val != nil {
		list = val.([]models.Challenge)
	}
	return list, args.Error(1)
}

func (m *ChallengeRepositoryMock) ListMembersWithoutCheckIn(ctx context.Context, challengeID int64, from, to time.Time) ([]models.ReminderTarget, error) {
	args := m.Called(ctx, challengeID, from, to)
	var list []models.ReminderTarget
	if val := args.Get(0); val != nil {
		list = val.([]models.ReminderTarget)
	}
	return list, args.Error(1)
}

type ItemRepositoryMock struct {
	mock.Mock
}

func (m *ItemRepositoryMock) CreatePost(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error) {
	args := m.Called(ctx, item)
	var out models.ChatItem
	if val := args.Get(0); val != nil {
		out = val.(models.ChatItem)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *ItemRepositoryMock) CreateCheckIn(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error) {
	args := m.Called(ctx, item)
	var out models.ChatItem
	if val := args.Get(0); val != nil {
		out = val.(models.ChatItem)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *ItemRepositoryMock) CreateComment(ctx context.Context, item models.ChatItem) (models.ChatItem, bool, error) {
	args := m.Called(ctx, item)
	var out models.ChatItem
	if val := args.Get(0); val != nil {
		out = val.(models.ChatItem)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *ItemRepositoryMock) GetItem(ctx context.Context, kind models.ItemKind, id int64) (models.ChatItem, error) {
	args := m.Called(ctx, kind, id)
	var out models.ChatItem
	if val := args.Get(0); val != nil {
		out = val.(models.ChatItem)
	}
	return out, args.Error(1)
}

func (m *ItemRepositoryMock) ListComments(ctx context.Context, parentKind models.ParentKind, parentID int64) ([]models.ChatItem, error) {
	args := m.Called(ctx, parentKind, parentID)
	var list []models.ChatItem
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatItem)
	}
	return list, args.Error(1)
}

func (m *ItemRepositoryMock) ListCohortItems(ctx context.Context, challengeID, cohortID int64) ([]models.ChatItem, error) {
	args := m.Called(ctx, challengeID, cohortID)
	var list []models.ChatItem
	if val := args.Get(0); val != nil {
		list = val.([]models.ChatItem)
	}
	return list, args.Error(1)
}

type LikeRepositoryMock struct {
	mock.Mock
}

func (m *LikeRepositoryMock) Like(ctx context.Context, userID int64, kind models.ItemKind, targetID int64) (models.Like, bool, error) {
	args := m.Called(ctx, userID, kind, targetID)
	var out models.Like
	if val := args.Get(0); val != nil {
		out = val.(models.Like)
	}
	return out, args.Bool(1), args.Error(2)
}

func (m *LikeRepositoryMock) Unlike(ctx context.Context, userID int64, kind models.ItemKind, targetID int64) error {
	args := m.Called(ctx, userID, kind, targetID)
	return args.Error(0)
}

func (m *LikeRepositoryMock) ListLikedIDs(ctx context.Context, userID int64, kind models.ItemKind) ([]int64, error) {
	args := m.Called(ctx, userID, kind)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

func (m *LikeRepositoryMock) CountLikes(ctx context.Context, kind models.ItemKind, targetIDs []int64) (map[int64]int, error) {
	args := m.Called(ctx, kind, targetIDs)
	var counts map[int64]int
	if val := args.Get(0); val != nil {
		counts = val.(map[int64]int)
	}
	return counts, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	args := m.Called(ctx, filename, r)
	return args.String(0), args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(ctx context.Context, item models.ChatItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *BroadcasterMock) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *BroadcasterMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repositories.SessionRepository = (*SessionRepositoryMock)(nil)
var _ repositories.ChallengeRepository = (*ChallengeRepositoryMock)(nil)
var _ repositories.ItemRepository = (*ItemRepositoryMock)(nil)
var _ repositories.LikeRepository = (*LikeRepositoryMock)(nil)
var _ media.Uploader = (*UploaderMock)(nil)
var _ realtime.Broadcaster = (*BroadcasterMock)(nil)
