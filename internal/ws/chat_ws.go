package ws

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"challenge-chat/internal/observability"
	"challenge-chat/internal/realtime"
	"challenge-chat/internal/repositories"
)

// ChatWebSocketHandler serves the realtime chat channel of one cohort.
type ChatWebSocketHandler struct {
	hub        *Hub
	sessions   repositories.SessionRepository
	challenges repositories.ChallengeRepository
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, sessions repositories.SessionRepository, challenges repositories.ChallengeRepository) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, sessions: sessions, challenges: challenges}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates the caller, checks cohort membership and subscribes the
// upgraded connection to the cohort's topic.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	challengeID, err := strconv.ParseInt(c.Param("challenge_id"), 10, 64)
	if err != nil || challengeID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge id"})
		return
	}
	cohortID, err := strconv.ParseInt(c.Param("cohort_id"), 10, 64)
	if err != nil || cohortID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cohort id"})
		return
	}
	topic := realtime.Topic(challengeID, cohortID)

	ctx, span := otel.Tracer("challenge-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	span.SetAttributes(attribute.String("chat.topic", topic))
	c.Request = c.Request.WithContext(ctx)

	userID, err := h.authenticate(ctx, c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	membership, err := h.challenges.GetMembership(ctx, challengeID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotMember) {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a challenge member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if membership.CohortID != cohortID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a cohort member"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	cl := h.hub.Add(topic, conn, info)

	observability.IncWSActive(wsMetricsKind)
	publishWSEvent(ctx, topic, "ws_connect", info, "")

	// Detach from the request; it ends once the handler returns.
	eventCtx := context.WithoutCancel(ctx)
	go func() {
		var closeReason string
		defer func() {
			h.hub.Remove(topic, cl)
			observability.DecWSActive(wsMetricsKind)
			publishWSEvent(eventCtx, topic, "ws_disconnect", info, closeReason)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					publishWSEvent(eventCtx, topic, "ws_error", info, closeReason)
				}
				return
			}
		}
	}()
}

func (h *ChatWebSocketHandler) authenticate(ctx context.Context, c *gin.Context) (int64, error) {
	token := c.Query("token")
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return 0, errors.New("invalid authorization header")
		}
		token = parts[1]
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, errors.New("missing token")
	}
	return h.sessions.UserIDForToken(ctx, token)
}
