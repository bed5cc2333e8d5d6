package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"challenge-chat/internal/models"
	"challenge-chat/internal/notify"
	"challenge-chat/internal/repositories"
)

// LikeHandler manages likes on posts, check-ins and comments.
type LikeHandler struct {
	likes    repositories.LikeRepository
	items    repositories.ItemRepository
	notifier *notify.Notifier
	async    func(what string, fn func(ctx context.Context) error)
}

// NewLikeHandler builds a LikeHandler.
func NewLikeHandler(likes repositories.LikeRepository, items repositories.ItemRepository, notifier *notify.Notifier) *LikeHandler {
	return &LikeHandler{likes: likes, items: items, notifier: notifier, async: notify.Async}
}

type likeRequest struct {
	TargetKind models.ItemKind `json:"targetKind" binding:"required"`
	TargetID   int64           `json:"targetId" binding:"required"`
}

func validTargetKind(kind models.ItemKind) bool {
	switch kind {
	case models.KindPost, models.KindCheckIn, models.KindComment:
		return true
	}
	return false
}

func bindLike(c *gin.Context) (likeRequest, bool) {
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return req, false
	}
	if !validTargetKind(req.TargetKind) || req.TargetID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid like target"})
		return req, false
	}
	return req, true
}

// Like records a like. Liking twice is a no-op answered with 200.
func (h *LikeHandler) Like(c *gin.Context) {
	req, ok := bindLike(c)
	if !ok {
		return
	}

	target, err := h.items.GetItem(c.Request.Context(), req.TargetKind, req.TargetID)
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "target not found"})
			return
		}
		internalError(c, "failed to load target", err)
		return
	}

	like, created, err := h.likes.Like(c.Request.Context(), c.GetInt64("userID"), req.TargetKind, req.TargetID)
	if err != nil {
		internalError(c, "could not store like", err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, like)
		return
	}

	if h.notifier != nil {
		h.async("like", func(ctx context.Context) error {
			return h.notifier.Liked(ctx, like, target.UserID)
		})
	}
	c.JSON(http.StatusCreated, like)
}

// Unlike removes the caller's like.
func (h *LikeHandler) Unlike(c *gin.Context) {
	req, ok := bindLike(c)
	if !ok {
		return
	}

	err := h.likes.Unlike(c.Request.Context(), c.GetInt64("userID"), req.TargetKind, req.TargetID)
	if err != nil {
		if errors.Is(err, repositories.ErrLikeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "like not found"})
			return
		}
		internalError(c, "could not remove like", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListLikes returns the ids the caller liked for ?targetKind=.
func (h *LikeHandler) ListLikes(c *gin.Context) {
	kind := models.ItemKind(c.Query("targetKind"))
	if !validTargetKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid targetKind"})
		return
	}
	ids, err := h.likes.ListLikedIDs(c.Request.Context(), c.GetInt64("userID"), kind)
	if err != nil {
		internalError(c, "failed to load likes", err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"targetKind": kind, "ids": ids})
}
