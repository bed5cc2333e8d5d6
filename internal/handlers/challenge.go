package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/gin-gonic/gin"

	"challenge-chat/internal/feed"
	"challenge-chat/internal/models"
	"challenge-chat/internal/repositories"
	"challenge-chat/internal/telemetry"
)

// ChallengeHandler manages challenge and membership endpoints.
type ChallengeHandler struct {
	challenges repositories.ChallengeRepository
	audit      *telemetry.AuditEmitter
	location   *time.Location
	now        func() time.Time
}

// NewChallengeHandler builds a ChallengeHandler. loc is used for local start
// dates when the caller does not pass ?tz=.
func NewChallengeHandler(challenges repositories.ChallengeRepository, audit *telemetry.AuditEmitter, loc *time.Location) *ChallengeHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ChallengeHandler{challenges: challenges, audit: audit, location: loc, now: time.Now}
}

type createChallengeRequest struct {
	Title        string               `json:"title" binding:"required"`
	Description  string               `json:"description"`
	Kind         models.ChallengeKind `json:"kind" binding:"required"`
	StartsOn     string               `json:"startsOn"`
	EndsOn       string               `json:"endsOn"`
	NumDays      int                  `json:"numDays"`
	ReminderCron string               `json:"reminderCron"`
}

func (r createChallengeRequest) toChallenge(ownerID int64) (models.Challenge, error) {
	c := models.Challenge{
		OwnerID:      ownerID,
		Title:        strings.TrimSpace(r.Title),
		Description:  strings.TrimSpace(r.Description),
		Kind:         r.Kind,
		ReminderCron: strings.TrimSpace(r.ReminderCron),
	}
	if c.Title == "" {
		return c, errors.New("title is required")
	}
	if c.ReminderCron != "" && !gronx.IsValid(c.ReminderCron) {
		return c, fmt.Errorf("invalid reminderCron %q", c.ReminderCron)
	}

	switch r.Kind {
	case models.ChallengeTimeBound:
		starts, err := time.Parse(feed.DateLayout, r.StartsOn)
		if err != nil {
			return c, errors.New("startsOn must be YYYY-MM-DD")
		}
		ends, err := time.Parse(feed.DateLayout, r.EndsOn)
		if err != nil {
			return c, errors.New("endsOn must be YYYY-MM-DD")
		}
		if ends.Before(starts) {
			return c, errors.New("endsOn is before startsOn")
		}
		c.StartsOn, c.EndsOn = &starts, &ends
		c.NumDays = int(ends.Sub(starts).Hours()/24) + 1
	case models.ChallengeSelfPaced:
		if r.NumDays <= 0 {
			return c, errors.New("numDays must be positive")
		}
		c.NumDays = r.NumDays
	default:
		return c, fmt.Errorf("unknown kind %q", r.Kind)
	}
	return c, nil
}

// CreateChallenge stores a challenge and enrolls its owner.
func (h *ChallengeHandler) CreateChallenge(c *gin.Context) {
	var req createChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	loc, ok := locationFromQuery(c, h.location)
	if !ok {
		return
	}

	userID := c.GetInt64("userID")
	challenge, err := req.toChallenge(userID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.challenges.CreateChallenge(c.Request.Context(), challenge)
	if err != nil {
		internalError(c, "could not create challenge", err)
		return
	}

	membership, err := h.challenges.Join(c.Request.Context(), created.ID, userID, h.startDate(created, loc))
	if err != nil {
		internalError(c, "could not join challenge", err)
		return
	}

	h.audit.Record(c.Request.Context(), telemetry.AuditRecord{
		Action:      telemetry.ActionChallengeCreated,
		ChallengeID: created.ID,
		CohortID:    membership.CohortID,
		Detail:      string(created.Kind),
		RequestID:   requestIDFromContext(c),
		UserID:      userIDFromContext(c),
	})
	c.JSON(http.StatusCreated, gin.H{"challenge": created, "membership": membership})
}

// ListChallenges returns challenges the caller owns or joined.
func (h *ChallengeHandler) ListChallenges(c *gin.Context) {
	list, err := h.challenges.ListChallengesForUser(c.Request.Context(), c.GetInt64("userID"))
	if err != nil {
		internalError(c, "failed to load challenges", err)
		return
	}
	if list == nil {
		list = []models.Challenge{}
	}
	c.JSON(http.StatusOK, gin.H{"challenges": list})
}

// GetChallenge returns one challenge and the caller's membership, if any.
func (h *ChallengeHandler) GetChallenge(c *gin.Context) {
	challengeID, ok := parseIDParam(c, "challenge_id", "challenge")
	if !ok {
		return
	}

	challenge, err := h.challenges.GetChallenge(c.Request.Context(), challengeID)
	if err != nil {
		c.JSON(statusFor(err, repositories.ErrChallengeNotFound), gin.H{"error": "challenge not found"})
		return
	}

	resp := gin.H{"challenge": challenge}
	membership, err := h.challenges.GetMembership(c.Request.Context(), challengeID, c.GetInt64("userID"))
	switch {
	case err == nil:
		resp["membership"] = membership
	case !errors.Is(err, repositories.ErrNotMember):
		internalError(c, "failed to load membership", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// JoinChallenge enrolls the caller. Self-paced joiners land in the cohort of
// their local start date.
func (h *ChallengeHandler) JoinChallenge(c *gin.Context) {
	challengeID, ok := parseIDParam(c, "challenge_id", "challenge")
	if !ok {
		return
	}
	loc, ok := locationFromQuery(c, h.location)
	if !ok {
		return
	}

	challenge, err := h.challenges.GetChallenge(c.Request.Context(), challengeID)
	if err != nil {
		c.JSON(statusFor(err, repositories.ErrChallengeNotFound), gin.H{"error": "challenge not found"})
		return
	}
	if challenge.Kind == models.ChallengeTimeBound && challenge.EndsOn != nil {
		today := feed.NewBucketer(loc).Key(h.now())
		if today > challenge.EndsOn.Format(feed.DateLayout) {
			c.JSON(http.StatusConflict, gin.H{"error": "challenge has ended"})
			return
		}
	}

	userID := c.GetInt64("userID")
	membership, err := h.challenges.Join(c.Request.Context(), challengeID, userID, h.startDate(challenge, loc))
	if err != nil {
		internalError(c, "could not join challenge", err)
		return
	}

	h.audit.Record(c.Request.Context(), telemetry.AuditRecord{
		Action:      telemetry.ActionChallengeJoined,
		ChallengeID: challengeID,
		CohortID:    membership.CohortID,
		RequestID:   requestIDFromContext(c),
		UserID:      userIDFromContext(c),
	})
	c.JSON(http.StatusOK, membership)
}

// startDate picks the cohort a joiner belongs to.
func (h *ChallengeHandler) startDate(challenge models.Challenge, loc *time.Location) time.Time {
	if challenge.Kind == models.ChallengeTimeBound && challenge.StartsOn != nil {
		return *challenge.StartsOn
	}
	return feed.NewBucketer(loc).StartOfDay(h.now())
}
