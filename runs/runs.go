// Package runs records sampling experiments.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/zephyrtronium/vose/fingerprint"
)

// ErrNoRuns is an error returned when no run has been recorded for a
// distribution.
var ErrNoRuns = errors.New("no runs recorded")

// Run is the result of one sampling experiment on a distribution.
type Run struct {
	// ID uniquely identifies the run.
	ID uuid.UUID
	// Dist is the name of the distribution sampled.
	Dist string
	// Fingerprint identifies the weights of the distribution at the time of
	// the run.
	Fingerprint fingerprint.Hash
	// Samples is the number of samples drawn.
	Samples int64
	// Counts is the number of times each outcome was drawn.
	Counts []uint64
	// Time is the time at which the run started.
	Time time.Time
	// Cost is the time the run took.
	Cost time.Duration
}

// Store records runs.
type Store interface {
	// Record saves a run.
	Record(ctx context.Context, run *Run) error
	// Latest returns the most recent run of a distribution by start time.
	// If no run of the distribution exists, the error is ErrNoRuns.
	Latest(ctx context.Context, dist string) (*Run, error)
}
