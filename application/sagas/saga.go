package sagas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SagaStep is one step of a saga. Compensate undoes Execute and runs only
// if a later step fails.
type SagaStep struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
	MaxRetries int
	RetryDelay time.Duration
}

// SagaState represents the current state of a saga execution
type SagaState string

const (
	SagaStatePending      SagaState = "PENDING"
	SagaStateRunning      SagaState = "RUNNING"
	SagaStateCompleted    SagaState = "COMPLETED"
	SagaStateFailed       SagaState = "FAILED"
	SagaStateCompensating SagaState = "COMPENSATING"
	SagaStateCompensated  SagaState = "COMPENSATED"
)

// Saga orchestrates a series of steps with compensation logic
type Saga struct {
	id            string
	name          string
	steps         []SagaStep
	compensations []namedCompensation
	state         SagaState
	logger        *zap.Logger
}

type namedCompensation struct {
	step string
	fn   func(ctx context.Context) error
}

// NewSaga creates a new saga instance
func NewSaga(name string, logger *zap.Logger) *Saga {
	return &Saga{
		id:     "saga_" + uuid.NewString(),
		name:   name,
		state:  SagaStatePending,
		logger: logger,
	}
}

// AddStep adds a step to the saga
func (s *Saga) AddStep(step SagaStep) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the steps in order. On failure the completed steps are compensated in
// reverse order and the step error is returned wrapped, so its type survives errors.As.
func (s *Saga) Execute(ctx context.Context) error {
	s.state = SagaStateRunning
	s.logger.Debug("Starting saga execution",
		zap.String("sagaID", s.id),
		zap.String("sagaName", s.name),
		zap.Int("totalSteps", len(s.steps)),
	)

	for i, step := range s.steps {
		if err := s.executeStepWithRetry(ctx, step); err != nil {
			s.state = SagaStateFailed
			s.logger.Warn("Saga step failed",
				zap.String("sagaID", s.id),
				zap.String("stepName", step.Name),
				zap.Int("stepNumber", i+1),
				zap.Error(err),
			)

			if compErr := s.compensate(ctx); compErr != nil {
				s.state = SagaStateFailed
				return fmt.Errorf("saga %s failed at step %s and compensation failed: %w",
					s.name, step.Name, errors.Join(err, compErr))
			}
			s.state = SagaStateCompensated
			return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
		}

		if step.Compensate != nil {
			s.compensations = append(s.compensations, namedCompensation{step: step.Name, fn: step.Compensate})
		}
	}

	s.state = SagaStateCompleted
	return nil
}

// executeStepWithRetry executes a step with retry logic
func (s *Saga) executeStepWithRetry(ctx context.Context, step SagaStep) error {
	attempts := max(step.MaxRetries, 1)
	delay := step.RetryDelay
	if delay == 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = step.Execute(ctx)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// compensate runs every registered compensation in reverse order, even if one fails.
// Compensation uses a context detached from cancellation so a cancelled request still cleans up.
func (s *Saga) compensate(ctx context.Context) error {
	s.state = SagaStateCompensating
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(s.compensations) - 1; i >= 0; i-- {
		c := s.compensations[i]
		if err := c.fn(ctx); err != nil {
			s.logger.Error("Compensation failed",
				zap.String("sagaID", s.id),
				zap.String("stepName", c.step),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("compensate %s: %w", c.step, err))
		}
	}
	return errors.Join(errs...)
}

// GetState returns the current state of the saga
func (s *Saga) GetState() SagaState {
	return s.state
}

// GetID returns the saga ID
func (s *Saga) GetID() string {
	return s.id
}
