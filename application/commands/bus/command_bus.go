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

// Command is the base interface for all commands
type Command interface {
	Validate() error
}

// CommandHandler handles a specific command type and returns its result.
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) (interface{}, error)
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(ctx context.Context, cmd Command) (interface{}, error)

func (f CommandHandlerFunc) Handle(ctx context.Context, cmd Command) (interface{}, error) {
	return f(ctx, cmd)
}

// CommandMiddleware wraps a handler with cross-cutting behavior.
type CommandMiddleware func(next CommandHandler) CommandHandler

// CommandBus dispatches commands to their registered handlers
type CommandBus struct {
	mu         sync.RWMutex
	handlers   map[reflect.Type]CommandHandler
	middleware []CommandMiddleware
}

// NewCommandBus creates a new command bus. Middleware runs outermost first.
func NewCommandBus(middleware ...CommandMiddleware) *CommandBus {
	return &CommandBus{
		handlers:   make(map[reflect.Type]CommandHandler),
		middleware: middleware,
	}
}

// Register registers a handler for a command type
func (b *CommandBus) Register(cmd Command, handler CommandHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cmdType := reflect.TypeOf(cmd)
	if _, exists := b.handlers[cmdType]; exists {
		return fmt.Errorf("handler already registered for command %s", cmdType)
	}

	for i := len(b.middleware) - 1; i >= 0; i-- {
		handler = b.middleware[i](handler)
	}
	b.handlers[cmdType] = handler
	return nil
}

// Send validates the command and dispatches it. A handler may return both a result and
// an error; both are passed through.
func (b *CommandBus) Send(ctx context.Context, cmd Command) (interface{}, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	handler, exists := b.handlers[reflect.TypeOf(cmd)]
	b.mu.RUnlock()

	if !exists {
		return nil, pkgerrors.NewInternalError(fmt.Sprintf("no handler registered for command %T", cmd))
	}
	return handler.Handle(ctx, cmd)
}

// LoggingMiddleware logs every command with its duration
func LoggingMiddleware(logger *zap.Logger) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)

			fields := []zap.Field{
				zap.String("command", commandName(cmd)),
				zap.Duration("duration", time.Since(start)),
			}
			switch {
			case err == nil:
				logger.Debug("Command handled", fields...)
			case pkgerrors.IsPartialIngestion(err):
				logger.Warn("Command partially succeeded", append(fields, zap.Error(err))...)
			default:
				logger.Error("Command failed", append(fields, zap.Error(err))...)
			}
			return result, err
		})
	}
}

// MetricsMiddleware records latency and error counts per command
func MetricsMiddleware(metrics ports.MetricsRecorder) CommandMiddleware {
	return func(next CommandHandler) CommandHandler {
		return CommandHandlerFunc(func(ctx context.Context, cmd Command) (interface{}, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)

			name := commandName(cmd)
			metrics.RecordLatency(ctx, name, time.Since(start))
			if err != nil {
				metrics.RecordError(ctx, name, errorType(err))
			}
			return result, err
		})
	}
}

func commandName(cmd Command) string {
	t := reflect.TypeOf(cmd)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

func errorType(err error) string {
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		return string(appErr.Type)
	}
	return string(pkgerrors.ErrorTypeInternal)
}
