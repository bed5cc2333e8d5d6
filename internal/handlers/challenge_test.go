package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"challenge-chat/internal/mocks"
	"challenge-chat/internal/models"
	"challenge-chat/internal/repositories"
	"challenge-chat/internal/telemetry"
)

func setupChallengeRouter(handler *ChallengeHandler) *gin.Engine {
	r := newTestRouter()
	r.POST("/challenges", handler.CreateChallenge)
	r.GET("/challenges", handler.ListChallenges)
	r.GET("/challenges/:challenge_id", handler.GetChallenge)
	r.POST("/challenges/:challenge_id/join", handler.JoinChallenge)
	return r
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateTimeBoundChallengeJoinsOwner(t *testing.T) {
	repo := new(mocks.ChallengeRepositoryMock)
	router := setupChallengeRouter(NewChallengeHandler(repo, nil, time.UTC))

	starts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.On("CreateChallenge", mock.Anything, mock.MatchedBy(func(c models.Challenge) bool {
		return c.OwnerID == testUserID && c.Kind == models.ChallengeTimeBound && c.NumDays == 31 && c.StartsOn.Equal(starts)
	})).Return(models.Challenge{ID: 9, OwnerID: testUserID, Kind: models.ChallengeTimeBound, StartsOn: &starts}, nil).Once()
	repo.On("Join", mock.Anything, int64(9), testUserID, starts).Return(models.Membership{ChallengeID: 9, UserID: testUserID, CohortID: 2}, nil).Once()

	rec := serve(router, jsonRequest(http.MethodPost, "/challenges",
		`{"title":"January miles","kind":"time_bound","startsOn":"2024-01-01","endsOn":"2024-01-31"}`))

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Challenge  models.Challenge  `json:"challenge"`
		Membership models.Membership `json:"membership"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(9), resp.Challenge.ID)
	assert.Equal(t, int64(2), resp.Membership.CohortID)
	repo.AssertExpectations(t)
}

func TestCreateChallengeValidation(t *testing.T) {
	cases := map[string]string{
		"missing title": `{"kind":"self_paced","numDays":10}`,
		"unknown kind":  `{"title":"x","kind":"forever"}`,
		"bad dates":     `{"title":"x","kind":"time_bound","startsOn":"2024-02-01","endsOn":"2024-01-01"}`,
		"no days":       `{"title":"x","kind":"self_paced"}`,
		"bad cron":      `{"title":"x","kind":"self_paced","numDays":5,"reminderCron":"every morning"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			repo := new(mocks.ChallengeRepositoryMock)
			router := setupChallengeRouter(NewChallengeHandler(repo, nil, time.UTC))
			rec := serve(router, jsonRequest(http.MethodPost, "/challenges", body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			repo.AssertExpectations(t)
		})
	}
}

func TestJoinSelfPacedUsesLocalStartDate(t *testing.T) {
	repo := new(mocks.ChallengeRepositoryMock)
	publisher := new(mocks.PublisherMock)
	handler := NewChallengeHandler(repo, telemetry.NewAuditEmitter(publisher, "audit.chat", "challenge-chat", "test"), time.UTC)
	handler.now = func() time.Time { return time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC) }
	router := setupChallengeRouter(handler)

	repo.On("GetChallenge", mock.Anything, int64(4)).Return(models.Challenge{ID: 4, Kind: models.ChallengeSelfPaced, NumDays: 30}, nil).Once()
	repo.On("Join", mock.Anything, int64(4), testUserID, mock.MatchedBy(func(start time.Time) bool {
		return start.Format("2006-01-02") == "2024-03-09"
	})).Return(models.Membership{ChallengeID: 4, UserID: testUserID, CohortID: 17}, nil).Once()
	publisher.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Action == telemetry.ActionChallengeJoined && env.Payload.CohortID == 17 && *env.UserID == testUserID
	})).Return(nil).Once()

	rec := serve(router, httptest.NewRequest(http.MethodPost, "/challenges/4/join?tz=America/Los_Angeles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var membership models.Membership
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&membership))
	assert.Equal(t, int64(17), membership.CohortID)
	repo.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestJoinEndedChallenge(t *testing.T) {
	repo := new(mocks.ChallengeRepositoryMock)
	handler := NewChallengeHandler(repo, nil, time.UTC)
	handler.now = func() time.Time { return time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC) }
	router := setupChallengeRouter(handler)

	starts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ends := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	repo.On("GetChallenge", mock.Anything, int64(4)).Return(models.Challenge{ID: 4, Kind: models.ChallengeTimeBound, StartsOn: &starts, EndsOn: &ends}, nil).Once()

	rec := serve(router, httptest.NewRequest(http.MethodPost, "/challenges/4/join", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
	repo.AssertExpectations(t)
}

func TestGetChallengeNotFound(t *testing.T) {
	repo := new(mocks.ChallengeRepositoryMock)
	router := setupChallengeRouter(NewChallengeHandler(repo, nil, time.UTC))
	repo.On("GetChallenge", mock.Anything, int64(5)).Return(nil, repositories.ErrChallengeNotFound).Once()

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/challenges/5", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	repo.AssertExpectations(t)
}

func TestGetChallengeWithoutMembership(t *testing.T) {
	repo := new(mocks.ChallengeRepositoryMock)
	router := setupChallengeRouter(NewChallengeHandler(repo, nil, time.UTC))
	repo.On("GetChallenge", mock.Anything, int64(5)).Return(models.Challenge{ID: 5, Title: "Plank"}, nil).Once()
	repo.On("GetMembership", mock.Anything, int64(5), testUserID).Return(nil, repositories.ErrNotMember).Once()

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/challenges/5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotContains(t, resp, "membership")
	repo.AssertExpectations(t)
}

func TestListChallengesRepoError(t *testing.T) {
	repo := new(mocks.ChallengeRepositoryMock)
	router := setupChallengeRouter(NewChallengeHandler(repo, nil, time.UTC))
	repo.On("ListChallengesForUser", mock.Anything, testUserID).Return(nil, assert.AnError).Once()

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/challenges", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	repo.AssertExpectations(t)
}
