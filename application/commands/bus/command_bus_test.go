package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgerrors "unimem/pkg/errors"
)

type pingCommand struct {
	Name string
}

func (c pingCommand) Validate() error {
	if c.Name == "" {
		return pkgerrors.NewValidationError("name is required")
	}
	return nil
}

type otherCommand struct{}

func (otherCommand) Validate() error { return nil }

type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) RecordLatency(ctx context.Context, operation string, d time.Duration) {
	m.Called(ctx, operation, d)
}

func (m *mockMetrics) RecordError(ctx context.Context, operation, errorType string) {
	m.Called(ctx, operation, errorType)
}

func (m *mockMetrics) RecordBusinessMetric(ctx context.Context, name string, value float64, dimensions map[string]string) {
	m.Called(ctx, name, value, dimensions)
}

func TestCommandBus_Send(t *testing.T) {
	// Arrange
	b := NewCommandBus()
	called := false
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		called = true
		return "pong " + cmd.(pingCommand).Name, nil
	})))

	// Act
	result, err := b.Send(context.Background(), pingCommand{Name: "a"})

	// Assert
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "pong a", result)
}

func TestCommandBus_ValidationRunsBeforeHandler(t *testing.T) {
	b := NewCommandBus()
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})))

	_, err := b.Send(context.Background(), pingCommand{})

	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCommandBus_Register(t *testing.T) {
	b := NewCommandBus()
	noop := CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) { return nil, nil })

	require.NoError(t, b.Register(pingCommand{}, noop))
	assert.Error(t, b.Register(pingCommand{}, noop))

	_, err := b.Send(context.Background(), otherCommand{})
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeInternal))
}

func TestCommandBus_PassesResultAndErrorTogether(t *testing.T) {
	// Arrange
	partial := pkgerrors.NewPartialIngestionError("id-1", 3, []pkgerrors.ChunkFailure{{Index: 2, Err: pkgerrors.NewUpstreamError("embedding", errors.New("timeout"))}})
	b := NewCommandBus(LoggingMiddleware(zap.NewNop()))
	require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
		return "partial result", partial
	})))

	// Act
	result, err := b.Send(context.Background(), pingCommand{Name: "x"})

	// Assert
	assert.Equal(t, "partial result", result)
	assert.True(t, pkgerrors.IsPartialIngestion(err))
}

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		handleErr error
		wantType  string
	}{
		{name: "success records latency only"},
		{name: "app error records its type", handleErr: pkgerrors.NewNotFoundError("memory"), wantType: "NOT_FOUND"},
		{name: "plain error is internal", handleErr: errors.New("boom"), wantType: "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			metrics := new(mockMetrics)
			metrics.On("RecordLatency", mock.Anything, "pingCommand", mock.AnythingOfType("time.Duration")).Return()
			if tt.wantType != "" {
				metrics.On("RecordError", mock.Anything, "pingCommand", tt.wantType).Return()
			}
			b := NewCommandBus(MetricsMiddleware(metrics))
			require.NoError(t, b.Register(pingCommand{}, CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
				return nil, tt.handleErr
			})))

			// Act
			_, err := b.Send(context.Background(), pingCommand{Name: "x"})

			// Assert
			assert.Equal(t, tt.handleErr, err)
			metrics.AssertExpectations(t)
			if tt.wantType == "" {
				metrics.AssertNotCalled(t, "RecordError", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}
