package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"challenge-chat/internal/models"
	"challenge-chat/internal/realtime"
	"challenge-chat/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, broadcaster realtime.Broadcaster, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Record(c.Request.Context(), telemetry.AuditRecord{
			Action:    telemetry.ActionAuditTest,
			RequestID: requestIDFromContext(c),
			UserID:    userIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Pushes a synthetic item onto a cohort topic to check realtime delivery.
	router.POST("/debug/broadcast/:challenge_id/:cohort_id", func(c *gin.Context) {
		challengeID, ok := parseIDParam(c, "challenge_id", "challenge")
		if !ok {
			return
		}
		cohortID, ok := parseIDParam(c, "cohort_id", "cohort")
		if !ok {
			return
		}
		item := models.ChatItem{
			ID:          -time.Now().UnixNano(),
			Kind:        models.KindComment,
			Body:        c.DefaultQuery("body", "debug broadcast"),
			ChallengeID: challengeID,
			CohortID:    cohortID,
			CreatedAt:   time.Now().UTC(),
		}
		if err := broadcaster.Broadcast(c.Request.Context(), item); err != nil {
			internalError(c, "broadcast failed", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"topic": realtime.Topic(challengeID, cohortID)})
	})
}
