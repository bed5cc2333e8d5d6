package telemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Audit actions recorded by the service.
const (
	ActionChallengeCreated = "challenge.created"
	ActionChallengeJoined  = "challenge.joined"
	ActionAuditTest        = "debug.audit_test"
)

// AuditRecord describes one user-visible change worth keeping an audit trail of.
type AuditRecord struct {
	Action      string
	ChallengeID int64
	CohortID    int64
	Detail      string
	RequestID   string
	UserID      *int64
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	UserID        *int64       `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action      string `json:"action"`
	ChallengeID int64  `json:"challenge_id,omitempty"`
	CohortID    int64  `json:"cohort_id,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		now:         time.Now,
	}
}

// Record publishes rec on the audit routing key. A nil emitter is a no-op and
// publish failures are only logged.
func (e *AuditEmitter) Record(ctx context.Context, rec AuditRecord) {
	if e == nil || e.publisher == nil {
		return
	}

	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	log.Printf("audit record: action=%s challenge_id=%d cohort_id=%d request_id=%s", rec.Action, rec.ChallengeID, rec.CohortID, rec.RequestID)
	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     rec.RequestID,
		TraceID:       traceID,
		UserID:        rec.UserID,
		Payload: AuditPayload{
			Action:      rec.Action,
			ChallengeID: rec.ChallengeID,
			CohortID:    rec.CohortID,
			Detail:      rec.Detail,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed action=%s: %v", rec.Action, err)
	}
}
