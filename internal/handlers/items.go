package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"challenge-chat/internal/feed"
	"challenge-chat/internal/media"
	"challenge-chat/internal/models"
	"challenge-chat/internal/notify"
	"challenge-chat/internal/realtime"
	"challenge-chat/internal/repositories"
)

// parentFields maps the write-path form fields to the parent they name.
var parentFields = []struct {
	field string
	kind  models.ParentKind
}{
	{"postId", models.ParentPost},
	{"challengeId", models.ParentChallenge},
	{"checkInId", models.ParentCheckIn},
	{"threadId", models.ParentThread},
	{"replyToId", models.ParentReply},
}

var errBadRequest = errors.New("bad request")

// ItemHandler serves the write and read paths for posts, check-ins and
// comments.
type ItemHandler struct {
	items       repositories.ItemRepository
	challenges  repositories.ChallengeRepository
	likes       repositories.LikeRepository
	uploader    media.Uploader
	broadcaster realtime.Broadcaster
	notifier    *notify.Notifier
	location    *time.Location
	async       func(what string, fn func(ctx context.Context) error)
}

// NewItemHandler builds an ItemHandler. loc is the default zone for bucketing
// the chat feed.
func NewItemHandler(items repositories.ItemRepository, challenges repositories.ChallengeRepository, likes repositories.LikeRepository, uploader media.Uploader, broadcaster realtime.Broadcaster, notifier *notify.Notifier, loc *time.Location) *ItemHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ItemHandler{
		items:       items,
		challenges:  challenges,
		likes:       likes,
		uploader:    uploader,
		broadcaster: broadcaster,
		notifier:    notifier,
		location:    loc,
		async:       notify.Async,
	}
}

// CreatePost stores a post, optionally inside a challenge the caller belongs to.
func (h *ItemHandler) CreatePost(c *gin.Context) {
	userID := c.GetInt64("userID")
	item, ok := h.bindItem(c, models.KindPost, userID)
	if !ok {
		return
	}

	if raw := c.PostForm("challengeId"); raw != "" {
		challengeID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || challengeID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challengeId"})
			return
		}
		membership, ok := h.requireMembership(c, challengeID, userID)
		if !ok {
			return
		}
		item.ChallengeID, item.CohortID = challengeID, membership.CohortID
	}
	if !h.attachMedia(c, &item) {
		return
	}

	created, isNew, err := h.items.CreatePost(c.Request.Context(), item)
	if err != nil {
		internalError(c, "failed to store post", err)
		return
	}
	h.announce(c.Request.Context(), created)
	c.JSON(writeStatus(isNew), created)
}

// CreateCheckIn stores a check-in for the caller's cohort.
func (h *ItemHandler) CreateCheckIn(c *gin.Context) {
	userID := c.GetInt64("userID")
	challengeID, err := strconv.ParseInt(c.PostForm("challengeId"), 10, 64)
	if err != nil || challengeID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "challengeId is required"})
		return
	}
	item, ok := h.bindItem(c, models.KindCheckIn, userID)
	if !ok {
		return
	}
	membership, ok := h.requireMembership(c, challengeID, userID)
	if !ok {
		return
	}
	item.ChallengeID, item.CohortID = challengeID, membership.CohortID
	if !h.attachMedia(c, &item) {
		return
	}

	created, isNew, err := h.items.CreateCheckIn(c.Request.Context(), item)
	if err != nil {
		internalError(c, "failed to store check-in", err)
		return
	}
	h.announce(c.Request.Context(), created)
	c.JSON(writeStatus(isNew), created)
}

// CreateComment stores a comment under exactly one parent and notifies the
// parent's owner. A replayed client id returns the stored comment with 200
// and notifies nobody.
func (h *ItemHandler) CreateComment(c *gin.Context) {
	userID := c.GetInt64("userID")
	parentKind, parentID, err := parentFromForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, ok := h.bindItem(c, models.KindComment, userID)
	if !ok {
		return
	}
	item.ParentKind, item.ParentID = parentKind, parentID

	ownerID, ok := h.resolveParent(c, &item)
	if !ok {
		return
	}
	if !h.attachMedia(c, &item) {
		return
	}

	created, isNew, err := h.items.CreateComment(c.Request.Context(), item)
	if err != nil {
		internalError(c, "failed to store comment", err)
		return
	}
	h.announce(c.Request.Context(), created)
	if isNew && h.notifier != nil {
		h.async("comment", func(ctx context.Context) error {
			return h.notifier.CommentAdded(ctx, created, ownerID)
		})
	}
	c.JSON(writeStatus(isNew), created)
}

// writeStatus is 201 for a new row and 200 for a replayed client id.
func writeStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// ListComments returns the comments under one parent, oldest first.
func (h *ItemHandler) ListComments(c *gin.Context) {
	parentKind := models.ParentKind(c.Query("parentKind"))
	if !parentKind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parentKind"})
		return
	}
	parentID, err := strconv.ParseInt(c.Query("parentId"), 10, 64)
	if err != nil || parentID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parentId"})
		return
	}

	comments, err := h.items.ListComments(c.Request.Context(), parentKind, parentID)
	if err != nil {
		internalError(c, "failed to load comments", err)
		return
	}
	if comments == nil {
		comments = []models.ChatItem{}
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// ChatFeed returns a cohort's chat as a flat list and bucketed by local day.
func (h *ItemHandler) ChatFeed(c *gin.Context) {
	challengeID, ok := parseIDParam(c, "challenge_id", "challenge")
	if !ok {
		return
	}
	cohortID, ok := parseIDParam(c, "cohort_id", "cohort")
	if !ok {
		return
	}
	loc, ok := locationFromQuery(c, h.location)
	if !ok {
		return
	}

	membership, ok := h.requireMembership(c, challengeID, c.GetInt64("userID"))
	if !ok {
		return
	}
	if membership.CohortID != cohortID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a cohort member"})
		return
	}

	items, err := h.items.ListCohortItems(c.Request.Context(), challengeID, cohortID)
	if err != nil {
		internalError(c, "failed to load chat", err)
		return
	}
	if items == nil {
		items = []models.ChatItem{}
	}

	likes, err := h.likeCounts(c.Request.Context(), items)
	if err != nil {
		internalError(c, "failed to load likes", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"topic": realtime.Topic(challengeID, cohortID),
		"items": items,
		"days":  feed.NewBucketer(loc).Bucket(items),
		"likes": likes,
	})
}

// likeCounts keys counts by "kind:id" since ids are only unique per kind.
func (h *ItemHandler) likeCounts(ctx context.Context, items []models.ChatItem) (map[string]int, error) {
	out := make(map[string]int)
	if h.likes == nil {
		return out, nil
	}
	idsByKind := make(map[models.ItemKind][]int64)
	for _, item := range items {
		idsByKind[item.Kind] = append(idsByKind[item.Kind], item.ID)
	}
	for kind, ids := range idsByKind {
		counts, err := h.likes.CountLikes(ctx, kind, ids)
		if err != nil {
			return nil, err
		}
		for id, n := range counts {
			out[fmt.Sprintf("%s:%d", kind, id)] = n
		}
	}
	return out, nil
}

// bindItem reads the shared multipart text fields. Attachments are uploaded
// separately by attachMedia once the caller is known to be allowed to write.
func (h *ItemHandler) bindItem(c *gin.Context, kind models.ItemKind, userID int64) (models.ChatItem, bool) {
	item := models.ChatItem{
		Kind:   kind,
		UserID: userID,
		Body:   strings.TrimSpace(c.PostForm("body")),
	}

	if raw := strings.TrimSpace(c.PostForm("clientId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clientId"})
			return item, false
		}
		item.ClientID = id.String()
	}
	return item, true
}

// attachMedia uploads the image and video fields and requires a body or at
// least one attachment.
func (h *ItemHandler) attachMedia(c *gin.Context, item *models.ChatItem) bool {
	var err error
	if item.ImageURL, err = h.upload(c, "image"); err != nil {
		h.uploadFailed(c, err)
		return false
	}
	if item.VideoURL, err = h.upload(c, "video"); err != nil {
		h.uploadFailed(c, err)
		return false
	}

	if item.Body == "" && item.ImageURL == "" && item.VideoURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body or attachment is required"})
		return false
	}
	return true
}

func (h *ItemHandler) upload(c *gin.Context, field string) (string, error) {
	header, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	if h.uploader == nil {
		return "", media.ErrDisabled
	}
	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	defer file.Close()
	return h.uploader.Upload(c.Request.Context(), header.Filename, file)
}

func (h *ItemHandler) uploadFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, media.ErrDisabled):
		c.JSON(http.StatusBadRequest, gin.H{"error": "attachments are disabled"})
	case errors.Is(err, errBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to upload attachment"})
	}
}

func (h *ItemHandler) requireMembership(c *gin.Context, challengeID, userID int64) (models.Membership, bool) {
	membership, err := h.challenges.GetMembership(c.Request.Context(), challengeID, userID)
	if err == nil {
		return membership, true
	}
	if errors.Is(err, repositories.ErrNotMember) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a challenge member"})
		return membership, false
	}
	internalError(c, "failed to verify membership", err)
	return membership, false
}

// resolveParent loads the parent, copies its challenge scope onto item and
// returns the owner to notify.
func (h *ItemHandler) resolveParent(c *gin.Context, item *models.ChatItem) (int64, bool) {
	ctx := c.Request.Context()
	if item.ParentKind == models.ParentChallenge {
		challenge, err := h.challenges.GetChallenge(ctx, item.ParentID)
		if err != nil {
			if errors.Is(err, repositories.ErrChallengeNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "parent not found"})
			} else {
				internalError(c, "failed to load parent", err)
			}
			return 0, false
		}
		membership, ok := h.requireMembership(c, challenge.ID, item.UserID)
		if !ok {
			return 0, false
		}
		item.ChallengeID, item.CohortID = challenge.ID, membership.CohortID
		return challenge.OwnerID, true
	}

	kind := models.KindComment
	switch item.ParentKind {
	case models.ParentPost:
		kind = models.KindPost
	case models.ParentCheckIn:
		kind = models.KindCheckIn
	}
	parent, err := h.items.GetItem(ctx, kind, item.ParentID)
	if err != nil {
		if errors.Is(err, repositories.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "parent not found"})
		} else {
			internalError(c, "failed to load parent", err)
		}
		return 0, false
	}
	if parent.ChallengeID != 0 {
		if _, ok := h.requireMembership(c, parent.ChallengeID, item.UserID); !ok {
			return 0, false
		}
	}
	item.ChallengeID, item.CohortID = parent.ChallengeID, parent.CohortID
	return parent.UserID, true
}

// announce broadcasts a persisted item. A failed broadcast never fails the
// write; clients catch up on refresh.
func (h *ItemHandler) announce(ctx context.Context, item models.ChatItem) {
	if h.broadcaster == nil {
		return
	}
	if err := h.broadcaster.Broadcast(ctx, item); err != nil {
		log.Printf("broadcast failed item_id=%d kind=%s err=%v", item.ID, item.Kind, err)
	}
}

// parentFromForm enforces that exactly one parent field is set.
func parentFromForm(c *gin.Context) (models.ParentKind, int64, error) {
	var (
		kind  models.ParentKind
		id    int64
		found int
	)
	for _, pf := range parentFields {
		raw := strings.TrimSpace(c.PostForm(pf.field))
		if raw == "" {
			continue
		}
		found++
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return "", 0, fmt.Errorf("invalid %s", pf.field)
		}
		kind, id = pf.kind, parsed
	}
	switch found {
	case 0:
		return "", 0, errors.New("one parent is required")
	case 1:
		return kind, id, nil
	default:
		return "", 0, errors.New("only one parent is allowed")
	}
}
