package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"challenge-chat/internal/mocks"
	"challenge-chat/internal/models"
	"challenge-chat/internal/notify"
	"challenge-chat/internal/repositories"
)

func setupLikeRouter(likes *mocks.LikeRepositoryMock, items *mocks.ItemRepositoryMock, publisher *mocks.PublisherMock) *gin.Engine {
	handler := NewLikeHandler(likes, items, notify.NewNotifier(publisher))
	handler.async = syncDispatch
	r := newTestRouter()
	r.POST("/likes", handler.Like)
	r.DELETE("/likes", handler.Unlike)
	r.GET("/likes", handler.ListLikes)
	return r
}

func TestLikeNotifiesOwnerOnce(t *testing.T) {
	likes, items, publisher := new(mocks.LikeRepositoryMock), new(mocks.ItemRepositoryMock), new(mocks.PublisherMock)
	router := setupLikeRouter(likes, items, publisher)

	items.On("GetItem", mock.Anything, models.KindPost, int64(7)).Return(models.ChatItem{ID: 7, UserID: 2}, nil).Twice()
	like := models.Like{ID: 1, UserID: testUserID, TargetKind: models.KindPost, TargetID: 7}
	likes.On("Like", mock.Anything, testUserID, models.KindPost, int64(7)).Return(like, true, nil).Once()
	likes.On("Like", mock.Anything, testUserID, models.KindPost, int64(7)).Return(like, false, nil).Once()
	publisher.On("Publish", mock.Anything, notify.RoutingEmail, mock.MatchedBy(func(n notify.Notification) bool {
		return n.Kind == notify.KindLike && n.RecipientID == 2 && n.ActorID == testUserID
	})).Return(nil).Once()
	publisher.On("Publish", mock.Anything, notify.RoutingPush, mock.Anything).Return(nil).Once()

	rec := serve(router, jsonRequest(http.MethodPost, "/likes", `{"targetKind":"post","targetId":7}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(router, jsonRequest(http.MethodPost, "/likes", `{"targetKind":"post","targetId":7}`))
	require.Equal(t, http.StatusOK, rec.Code)

	likes.AssertExpectations(t)
	items.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestLikeRejectsUnknownTarget(t *testing.T) {
	likes, items, publisher := new(mocks.LikeRepositoryMock), new(mocks.ItemRepositoryMock), new(mocks.PublisherMock)
	router := setupLikeRouter(likes, items, publisher)

	rec := serve(router, jsonRequest(http.MethodPost, "/likes", `{"targetKind":"challenge","targetId":7}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	items.On("GetItem", mock.Anything, models.KindComment, int64(8)).Return(nil, repositories.ErrItemNotFound).Once()
	rec = serve(router, jsonRequest(http.MethodPost, "/likes", `{"targetKind":"comment","targetId":8}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	items.AssertExpectations(t)
	likes.AssertExpectations(t)
}

func TestUnlike(t *testing.T) {
	likes, items, publisher := new(mocks.LikeRepositoryMock), new(mocks.ItemRepositoryMock), new(mocks.PublisherMock)
	router := setupLikeRouter(likes, items, publisher)

	likes.On("Unlike", mock.Anything, testUserID, models.KindCheckIn, int64(3)).Return(nil).Once()
	likes.On("Unlike", mock.Anything, testUserID, models.KindCheckIn, int64(4)).Return(repositories.ErrLikeNotFound).Once()

	rec := serve(router, jsonRequest(http.MethodDelete, "/likes", `{"targetKind":"check_in","targetId":3}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(router, jsonRequest(http.MethodDelete, "/likes", `{"targetKind":"check_in","targetId":4}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	likes.AssertExpectations(t)
}

func TestListLikes(t *testing.T) {
	likes, items, publisher := new(mocks.LikeRepositoryMock), new(mocks.ItemRepositoryMock), new(mocks.PublisherMock)
	router := setupLikeRouter(likes, items, publisher)
	likes.On("ListLikedIDs", mock.Anything, testUserID, models.KindComment).Return([]int64{3, 9}, nil).Once()

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/likes?targetKind=comment", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"targetKind":"comment","ids":[3,9]}`, rec.Body.String())
	likes.AssertExpectations(t)
}
