package bus

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"unimem/application/ports"
	pkgerrors "unimem/pkg/errors"
)

// Query is the base interface for all queries
type Query interface {
	Validate() error
}

// QueryHandler handles a specific query type
type QueryHandler interface {
	Handle(ctx context.Context, query Query) (interface{}, error)
}

// QueryHandlerFunc adapts a function to QueryHandler.
type QueryHandlerFunc func(ctx context.Context, query Query) (interface{}, error)

func (f QueryHandlerFunc) Handle(ctx context.Context, query Query) (interface{}, error) {
	return f(ctx, query)
}

// QueryMiddleware wraps a query handler.
type QueryMiddleware func(next QueryHandler) QueryHandler

// QueryBus routes queries to their handlers
type QueryBus struct {
	mu         sync.RWMutex
	handlers   map[reflect.Type]QueryHandler
	middleware []QueryMiddleware
}

// NewQueryBus creates a new query bus
func NewQueryBus(middleware ...QueryMiddleware) *QueryBus {
	return &QueryBus{
		handlers:   make(map[reflect.Type]QueryHandler),
		middleware: middleware,
	}
}

// Register registers a handler for a query type
func (b *QueryBus) Register(query Query, handler QueryHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	queryType := reflect.TypeOf(query)
	if _, exists := b.handlers[queryType]; exists {
		return fmt.Errorf("handler already registered for query %s", queryType)
	}

	for i := len(b.middleware) - 1; i >= 0; i-- {
		handler = b.middleware[i](handler)
	}
	b.handlers[queryType] = handler
	return nil
}

// Ask validates and executes a query
func (b *QueryBus) Ask(ctx context.Context, query Query) (interface{}, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	handler, exists := b.handlers[reflect.TypeOf(query)]
	b.mu.RUnlock()

	if !exists {
		return nil, pkgerrors.NewInternalError(fmt.Sprintf("no handler registered for query %T", query))
	}
	return handler.Handle(ctx, query)
}

// LoggingMiddleware logs slow and failed queries
func LoggingMiddleware(logger *zap.Logger, slow time.Duration) QueryMiddleware {
	return func(next QueryHandler) QueryHandler {
		return QueryHandlerFunc(func(ctx context.Context, query Query) (interface{}, error) {
			start := time.Now()
			result, err := next.Handle(ctx, query)
			elapsed := time.Since(start)

			if err != nil {
				level := logger.Error
				if appErr := pkgerrors.GetAppError(err); appErr != nil && appErr.HTTPStatus < 500 {
					level = logger.Debug
				}
				level("Query failed",
					zap.String("query", queryName(query)),
					zap.Duration("duration", elapsed),
					zap.Error(err),
				)
				return result, err
			}
			if slow > 0 && elapsed > slow {
				logger.Warn("Slow query",
					zap.String("query", queryName(query)),
					zap.Duration("duration", elapsed),
				)
			}
			return result, nil
		})
	}
}

// MetricsMiddleware records query latency and errors
func MetricsMiddleware(metrics ports.MetricsRecorder) QueryMiddleware {
	return func(next QueryHandler) QueryHandler {
		return QueryHandlerFunc(func(ctx context.Context, query Query) (interface{}, error) {
			start := time.Now()
			result, err := next.Handle(ctx, query)

			name := queryName(query)
			metrics.RecordLatency(ctx, name, time.Since(start))
			if err != nil {
				errType := string(pkgerrors.ErrorTypeInternal)
				if appErr := pkgerrors.GetAppError(err); appErr != nil {
					errType = string(appErr.Type)
				}
				metrics.RecordError(ctx, name, errType)
			}
			return result, err
		})
	}
}

func queryName(query Query) string {
	t := reflect.TypeOf(query)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
