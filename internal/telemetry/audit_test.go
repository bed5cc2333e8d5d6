package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func TestRecordPublishesEnvelope(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.chat", "challenge-chat", "test")
	emitter.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	userID := int64(7)

	pub.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.EventType == "audit_log" &&
			env.OccurredAt == "2024-01-01T00:00:00Z" &&
			env.RequestID == "req-1" &&
			env.TraceID == "" &&
			*env.UserID == 7 &&
			env.Payload.Action == ActionChallengeJoined &&
			env.Payload.ChallengeID == 3 &&
			env.Payload.CohortID == 4
	})).Return(nil).Once()

	emitter.Record(context.Background(), AuditRecord{
		Action:      ActionChallengeJoined,
		ChallengeID: 3,
		CohortID:    4,
		RequestID:   "req-1",
		UserID:      &userID,
	})

	pub.AssertExpectations(t)
}

func TestRecordCarriesTraceID(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, "audit.chat", "challenge-chat", "test")

	traceID := trace.TraceID{0x01, 0x02, 0x03}
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  trace.SpanID{0x01},
	}))

	pub.On("Publish", mock.Anything, "audit.chat", mock.MatchedBy(func(env AuditEnvelope) bool {
		return env.TraceID == traceID.String()
	})).Return(errors.New("broker down")).Once()

	require.NotPanics(t, func() {
		emitter.Record(ctx, AuditRecord{Action: ActionAuditTest})
	})
	pub.AssertExpectations(t)
}

func TestRecordOnNilEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter

	require.NotPanics(t, func() {
		emitter.Record(context.Background(), AuditRecord{Action: ActionAuditTest})
	})
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "")

	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer("test"))
}
