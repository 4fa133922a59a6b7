package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"
)

// FineSweeper refreshes the fines of every overdue loan.
type FineSweeper interface {
	SweepOverdue(ctx context.Context) (int, error)
}

// SweepFinesTask re-evaluates fines on all overdue active loans so stored
// balances stay current between checkins. Trigger records what enqueued it.
type SweepFinesTask struct {
	Trigger string `json:"trigger,omitempty"`
}

// Config returns the queue configuration for fine sweep tasks.
func (t SweepFinesTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sweep_fines",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   7 * 24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SweepFinesProcessor creates a processor function for SweepFinesTask.
func SweepFinesProcessor(sweeper FineSweeper, log *zap.Logger) backlite.QueueProcessor[SweepFinesTask] {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, task SweepFinesTask) error {
		if sweeper == nil {
			return fmt.Errorf("fine sweeper not configured")
		}

		start := time.Now()
		n, err := sweeper.SweepOverdue(ctx)
		if err != nil {
			return fmt.Errorf("sweep fines: %w", err)
		}

		log.Info("fine sweep finished",
			zap.String("trigger", task.Trigger),
			zap.Int("loans", n),
			zap.Duration("duration", time.Since(start)))
		return nil
	}
}

// NewSweepFinesQueue creates a backlite queue for fine sweep tasks.
func NewSweepFinesQueue(sweeper FineSweeper, log *zap.Logger) backlite.Queue {
	return backlite.NewQueue(SweepFinesProcessor(sweeper, log))
}
