package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cmc-connect/internal/mocks"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "cmc-connect", "test")

	var captured AuditEnvelope
	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything, map[string]string{"x-request-id": "req-1"}).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(AuditEnvelope)
		}).Return(nil).Once()

	userID := 7
	emitter.Emit(context.Background(), "info", "conversation deleted", "req-1", &userID)

	require.Equal(t, 1, captured.SchemaVersion)
	require.Equal(t, "audit_log", captured.EventType)
	require.Equal(t, "cmc-connect", captured.Service)
	require.Equal(t, "test", captured.Environment)
	require.Equal(t, "req-1", captured.RequestID)
	require.NotNil(t, captured.UserID)
	require.Equal(t, 7, *captured.UserID)
	require.Equal(t, "info", captured.Payload.Level)
	require.Equal(t, "conversation deleted", captured.Payload.Text)
	require.NotEmpty(t, captured.OccurredAt)
	publisher.AssertExpectations(t)
}

func TestEmitNilEmitterIsSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "info", "nothing", "req-1", nil)
}

func TestEmitSwallowsPublishError(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "cmc-connect", "test")

	publisher.On("Publish", mock.Anything, "audit.chat", mock.Anything, mock.Anything).
		Return(context.DeadlineExceeded).Once()

	emitter.Emit(context.Background(), "warn", "login failed", "req-2", nil)
	publisher.AssertExpectations(t)
}
