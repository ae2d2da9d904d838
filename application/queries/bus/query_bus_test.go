package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	pkgerrors "unimem/pkg/errors"
)

type echoQuery struct {
	Text string
}

func (q echoQuery) Validate() error {
	if q.Text == "" {
		return pkgerrors.NewValidationError("text is required")
	}
	return nil
}

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

func echoHandler() QueryHandler {
	return QueryHandlerFunc(func(ctx context.Context, query Query) (interface{}, error) {
		q := query.(echoQuery)
		if q.Text == "missing" {
			return nil, pkgerrors.NewNotFoundError("echo")
		}
		return q.Text, nil
	})
}

func TestQueryBus_Ask(t *testing.T) {
	tests := []struct {
		name     string
		query    echoQuery
		want     interface{}
		wantType pkgerrors.ErrorType
	}{
		{name: "answers", query: echoQuery{Text: "hi"}, want: "hi"},
		{name: "invalid query", query: echoQuery{}, wantType: pkgerrors.ErrorTypeValidation},
		{name: "handler error", query: echoQuery{Text: "missing"}, wantType: pkgerrors.ErrorTypeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			b := NewQueryBus(LoggingMiddleware(zap.NewNop(), time.Second))
			require.NoError(t, b.Register(echoQuery{}, echoHandler()))

			// Act
			got, err := b.Ask(context.Background(), tt.query)

			// Assert
			if tt.wantType != "" {
				assert.True(t, pkgerrors.IsType(err, tt.wantType))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQueryBus_UnregisteredAndDuplicate(t *testing.T) {
	b := NewQueryBus()
	require.NoError(t, b.Register(echoQuery{}, echoHandler()))

	assert.Error(t, b.Register(echoQuery{}, echoHandler()))

	empty := NewQueryBus()
	_, err := empty.Ask(context.Background(), echoQuery{Text: "x"})
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeInternal))
}

func TestQueryBus_MetricsMiddleware(t *testing.T) {
	// Arrange
	metrics := new(mockMetrics)
	metrics.On("RecordLatency", mock.Anything, "echoQuery", mock.AnythingOfType("time.Duration")).Return()
	metrics.On("RecordError", mock.Anything, "echoQuery", "NOT_FOUND").Return()
	b := NewQueryBus(MetricsMiddleware(metrics))
	require.NoError(t, b.Register(echoQuery{}, echoHandler()))

	// Act
	_, okErr := b.Ask(context.Background(), echoQuery{Text: "hi"})
	_, notFound := b.Ask(context.Background(), echoQuery{Text: "missing"})

	// Assert
	require.NoError(t, okErr)
	assert.Error(t, notFound)
	metrics.AssertNumberOfCalls(t, "RecordLatency", 2)
	metrics.AssertNumberOfCalls(t, "RecordError", 1)
}
