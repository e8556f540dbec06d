package sagas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SagaStep represents a single step in a saga. Steps share data through
// the closures that build them.
type SagaStep struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
	MaxRetries int
	RetryDelay time.Duration
	// Retryable decides whether a failed attempt is retried; nil retries everything
	Retryable func(error) bool
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

// Saga runs steps in order and, when one fails, compensates the completed
// steps in reverse order
type Saga struct {
	id        string
	name      string
	steps     []SagaStep
	completed []SagaStep
	state     SagaState
	logger    *zap.Logger
}

// NewSaga creates a new saga instance
func NewSaga(name string, logger *zap.Logger) *Saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga{
		id:     uuid.New().String(),
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

// Execute runs the saga. The returned error wraps the failing step's error.
func (s *Saga) Execute(ctx context.Context) error {
	s.state = SagaStateRunning
	s.logger.Debug("Starting saga execution",
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
		zap.Int("total_steps", len(s.steps)),
	)

	for _, step := range s.steps {
		if err := s.executeStepWithRetry(ctx, step); err != nil {
			s.state = SagaStateFailed
			s.logger.Warn("Saga step failed",
				zap.String("saga_id", s.id),
				zap.String("step_name", step.Name),
				zap.Error(err),
			)

			if compensateErr := s.compensate(ctx); compensateErr != nil {
				s.logger.Error("Saga compensation failed",
					zap.String("saga_id", s.id),
					zap.Error(compensateErr),
				)
				return fmt.Errorf("saga %s failed at step %s and compensation failed (%v): %w", s.name, step.Name, compensateErr, err)
			}

			s.state = SagaStateCompensated
			return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
		}
		s.completed = append(s.completed, step)
	}

	s.state = SagaStateCompleted
	s.logger.Debug("Saga completed successfully",
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
	)
	return nil
}

// executeStepWithRetry executes a step with retry logic
func (s *Saga) executeStepWithRetry(ctx context.Context, step SagaStep) error {
	attempts := step.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	delay := step.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := step.Execute(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if step.Retryable != nil && !step.Retryable(err) {
			return err
		}
		s.logger.Debug("Retrying saga step",
			zap.String("saga_id", s.id),
			zap.String("step_name", step.Name),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("step %s failed after %d attempts: %w", step.Name, attempts, lastErr)
}

// compensate undoes completed steps in reverse order. It keeps going after a
// failed compensation and reports all of them.
func (s *Saga) compensate(ctx context.Context) error {
	s.state = SagaStateCompensating

	// Compensation must run even when the caller's context is already done
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(s.completed) - 1; i >= 0; i-- {
		step := s.completed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
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
