package services

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	SagaStepCompleted   = "completed"
	SagaStepCompensated = "compensated"
	SagaStepFailed      = "failed"
)

// SagaStep is one completed checkout side effect and how to undo it.
type SagaStep struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ExecutedAt time.Time `json:"executedAt"`

	compensate func(ctx context.Context) error
}

// CompensationLog records undo actions for completed steps so a later
// failure can unwind them newest first.
type CompensationLog struct {
	steps []*SagaStep
}

func (l *CompensationLog) Record(name string, compensate func(ctx context.Context) error) {
	l.steps = append(l.steps, &SagaStep{
		Name:       name,
		Status:     SagaStepCompleted,
		ExecutedAt: time.Now().UTC(),
		compensate: compensate,
	})
}

func (l *CompensationLog) Steps() []SagaStep {
	out := make([]SagaStep, len(l.steps))
	for i, s := range l.steps {
		out[i] = *s
	}
	return out
}

func (l *CompensationLog) Len() int { return len(l.steps) }

// Unwind runs every recorded compensator in reverse order. A failing
// compensator does not stop the rest; the number of failures is returned.
func (l *CompensationLog) Unwind(ctx context.Context, logger *zap.Logger) int {
	failed := 0
	for i := len(l.steps) - 1; i >= 0; i-- {
		step := l.steps[i]
		if step.Status != SagaStepCompleted || step.compensate == nil {
			continue
		}
		if err := step.compensate(ctx); err != nil {
			failed++
			step.Status = SagaStepFailed
			step.Error = err.Error()
			logger.Error("compensation failed", zap.String("step", step.Name), zap.Error(err))
			continue
		}
		step.Status = SagaStepCompensated
		step.ExecutedAt = time.Now().UTC()
		logger.Info("compensated checkout step", zap.String("step", step.Name))
	}
	return failed
}
