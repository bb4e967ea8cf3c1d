// Package scheduler drives a block search to completion. It partitions the
// positive integers into contiguous blocks, keeps a bounded set of them in
// flight on a worker pool, polls with a timeout and harvests results until a
// winning value is settled.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/me/worksizing/internal/metrics"
	"github.com/me/worksizing/pkg/model"
)

// Scheduler runs one search for the smallest value that satisfies the rule for
// every divisor below bound.
type Scheduler interface {
	Run(ctx context.Context, bound int64, mc *metrics.Collector) (*model.Result, error)
}

// Config holds scheduler configuration.
type Config struct {
	// BlockSize is the number of candidates each task scans.
	BlockSize int64

	// MaxWorkers is the number of searches that may run at the same time.
	MaxWorkers int

	// MaxJobs caps how many blocks are outstanding at once. Zero means MaxWorkers.
	MaxJobs int

	// Timeout bounds each poll of the in-flight set.
	Timeout time.Duration

	// WaitMode selects when a poll returns before its timeout.
	WaitMode model.WaitMode

	// Ordered delays accepting a found value until every block that starts
	// below the winning block has completed, so the smallest value wins.
	// When false the first block to report a value wins.
	Ordered bool

	// Limit is the largest candidate that may be searched. Zero is unbounded.
	Limit int64
}

// DefaultConfig returns the defaults used by the command line.
func DefaultConfig() Config {
	return Config{
		BlockSize:  100,
		MaxWorkers: 20,
		Timeout:    100 * time.Millisecond,
		WaitMode:   model.WaitFirstCompleted,
		Ordered:    true,
	}
}

// resolve fills derived values and rejects settings the loop cannot run with.
func (c Config) resolve() (Config, error) {
	if c.MaxJobs == 0 {
		c.MaxJobs = c.MaxWorkers
	}
	if c.WaitMode == "" {
		c.WaitMode = model.WaitFirstCompleted
	}
	switch {
	case c.BlockSize <= 0:
		return c, fmt.Errorf("block size must be positive, got %d", c.BlockSize)
	case c.MaxWorkers <= 0:
		return c, fmt.Errorf("max workers must be positive, got %d", c.MaxWorkers)
	case c.MaxJobs < 0:
		return c, fmt.Errorf("max jobs must not be negative, got %d", c.MaxJobs)
	case c.Timeout <= 0:
		return c, fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	case c.Limit < 0:
		return c, fmt.Errorf("limit must not be negative, got %d", c.Limit)
	case !c.WaitMode.Valid():
		return c, fmt.Errorf("unknown wait mode %q", c.WaitMode)
	}
	return c, nil
}
