package middleware

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

var sentryEnabled bool

// InitSentry configures error reporting. An empty DSN leaves reporting off.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		log.Println("sentry disabled reason=empty dsn")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if event.Tags == nil {
				event.Tags = make(map[string]string)
			}
			event.Tags["service"] = "challenge-chat"
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	sentryEnabled = true
	log.Printf("sentry enabled environment=%s", environment)
	return nil
}

// FlushSentry waits for queued events to be sent.
func FlushSentry(timeout time.Duration) {
	if sentryEnabled {
		sentry.Flush(timeout)
	}
}

// ErrorReporter forwards errors attached to the context and recovered panics
// to Sentry. Panics are answered with a 500.
func ErrorReporter() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered path=%s err=%v", c.Request.URL.Path, r)
				captureError(c, fmt.Errorf("panic recovered: %v", r), sentry.LevelFatal)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()

		c.Next()

		for _, ginErr := range c.Errors {
			log.Printf("request error path=%s status=%d err=%v", c.FullPath(), c.Writer.Status(), ginErr.Err)
			captureError(c, ginErr.Err, sentry.LevelError)
		}
	}
}

func captureError(c *gin.Context, err error, level sentry.Level) {
	if !sentryEnabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTag("route", c.FullPath())
		scope.SetTag("method", c.Request.Method)
		if requestID := c.GetString(RequestIDKey); requestID != "" {
			scope.SetTag("request_id", requestID)
		}
		if userID := c.GetInt64("userID"); userID != 0 {
			scope.SetUser(sentry.User{ID: strconv.FormatInt(userID, 10)})
		}
		sentry.CaptureException(err)
	})
}
