package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	awsevents "github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unimem/application/commands"
	"unimem/application/commands/bus"
	"unimem/application/services"
	"unimem/domain/events"
	"unimem/infrastructure/persistence/memory"
	pkgerrors "unimem/pkg/errors"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, cmd bus.Command) (interface{}, error) {
	args := m.Called(ctx, cmd)
	return args.Get(0), args.Error(1)
}

func turnEvent(t *testing.T, detailType string, turn events.ConversationTurnCompleted) awsevents.CloudWatchEvent {
	t.Helper()
	detail, err := json.Marshal(turn)
	require.NoError(t, err)
	return awsevents.CloudWatchEvent{ID: "evt-1", DetailType: detailType, Source: "chat.service", Detail: detail}
}

var sampleTurn = events.ConversationTurnCompleted{
	OwnerID:        "alice",
	ConversationID: "c-42",
	UserInput:      "What did we decide about the launch?",
	Response:       "The launch moves to Friday once the retrieval engine passes load tests.",
}

func TestTurnCompletedHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("ingests a new turn", func(t *testing.T) {
		// Arrange
		sender := &mockSender{}
		sender.On("Send", mock.Anything, commands.IngestConversationTurnCommand{
			OwnerID:        "alice",
			ConversationID: "c-42",
			UserInput:      sampleTurn.UserInput,
			Response:       sampleTurn.Response,
		}).Return(&services.TurnResult{Ingested: true, MemoryID: "m1"}, nil).Once()
		h := NewTurnCompletedHandler(sender, memory.NewLock(), zap.NewNop())

		// Act
		err := h.Handle(ctx, turnEvent(t, events.TypeConversationTurnCompleted, sampleTurn))

		// Assert
		require.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("duplicate delivery is skipped", func(t *testing.T) {
		sender := &mockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(&services.TurnResult{}, nil).Once()
		h := NewTurnCompletedHandler(sender, memory.NewLock(), zap.NewNop())
		event := turnEvent(t, events.TypeConversationTurnCompleted, sampleTurn)

		require.NoError(t, h.Handle(ctx, event))
		require.NoError(t, h.Handle(ctx, event))

		sender.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("other detail types are ignored", func(t *testing.T) {
		sender := &mockSender{}
		h := NewTurnCompletedHandler(sender, memory.NewLock(), zap.NewNop())

		err := h.Handle(ctx, turnEvent(t, "memory.created", sampleTurn))

		require.NoError(t, err)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})

	t.Run("transient failure releases the claim", func(t *testing.T) {
		sender := &mockSender{}
		upstream := pkgerrors.NewUpstreamError("embedding", errors.New("503"))
		sender.On("Send", mock.Anything, mock.Anything).Return(nil, upstream).Once()
		sender.On("Send", mock.Anything, mock.Anything).Return(&services.TurnResult{Ingested: true}, nil).Once()
		h := NewTurnCompletedHandler(sender, memory.NewLock(), zap.NewNop())
		event := turnEvent(t, events.TypeConversationTurnCompleted, sampleTurn)

		first := h.Handle(ctx, event)
		second := h.Handle(ctx, event)

		assert.ErrorIs(t, first, upstream)
		assert.NoError(t, second)
		sender.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("validation failure keeps the claim", func(t *testing.T) {
		sender := &mockSender{}
		sender.On("Send", mock.Anything, mock.Anything).
			Return(nil, pkgerrors.NewValidationError("owner_id is required")).Once()
		h := NewTurnCompletedHandler(sender, memory.NewLock(), zap.NewNop())
		event := turnEvent(t, events.TypeConversationTurnCompleted, events.ConversationTurnCompleted{
			ConversationID: "c-1", UserInput: "x", Response: "y",
		})

		require.NoError(t, h.Handle(ctx, event))
		require.NoError(t, h.Handle(ctx, event))

		sender.AssertNumberOfCalls(t, "Send", 1)
	})

	t.Run("malformed detail is dropped", func(t *testing.T) {
		sender := &mockSender{}
		h := NewTurnCompletedHandler(sender, memory.NewLock(), zap.NewNop())

		err := h.Handle(ctx, awsevents.CloudWatchEvent{
			DetailType: events.TypeConversationTurnCompleted,
			Detail:     json.RawMessage(`"not an object"`),
		})

		require.NoError(t, err)
		sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	})
}

func TestDedupKey(t *testing.T) {
	a := DedupKey(sampleTurn)
	b := sampleTurn
	b.Response += " Updated."

	assert.Contains(t, a, "turn#alice#c-42#")
	assert.NotEqual(t, a, DedupKey(b))
	assert.Equal(t, a, DedupKey(sampleTurn))

	other := sampleTurn
	other.OwnerID = "bob"
	assert.NotEqual(t, a, DedupKey(other))
}
