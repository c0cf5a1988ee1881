// Package runstore persists training runs and per-step metrics.
package runstore

import (
	"context"
	"errors"

	"github.com/Ashirog1/rl4co/internal/domain/nco"
)

// ErrRunNotFound signals a lookup for an unknown run.
var ErrRunNotFound = errors.New("runstore: run not found")

// Store records training runs and their step metrics.
type Store interface {
	// SaveRun records a new training run.
	SaveRun(ctx context.Context, run *nco.TrainingRun) error

	// AppendStep records the metrics of one outer training step.
	AppendStep(ctx context.Context, m *nco.StepMetrics) error

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]*nco.TrainingRun, error)

	// StepsForRun returns a run's step metrics in step order.
	StepsForRun(ctx context.Context, runID string) ([]*nco.StepMetrics, error)

	// Close releases the underlying connection.
	Close() error
}
