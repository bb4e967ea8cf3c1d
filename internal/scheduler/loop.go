package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/me/worksizing/internal/metrics"
	"github.com/me/worksizing/internal/pool"
	"github.com/me/worksizing/internal/predicate"
	"github.com/me/worksizing/pkg/model"
)

// Loop implements the Scheduler interface with a polling-based block loop.
type Loop struct {
	rule   predicate.Rule
	config Config
	logger *slog.Logger
}

// NewLoop creates a new scheduler loop. A nil rule selects predicate.Modulo.
func NewLoop(cfg Config, rule predicate.Rule, logger *slog.Logger) *Loop {
	return &Loop{
		rule:   rule,
		config: cfg,
		logger: logger.With("component", "scheduler"),
	}
}

// Run searches for the smallest candidate valid for bound. The worker pool
// lives for the duration of the call and is torn down on every return path.
// mc may be nil.
func (l *Loop) Run(ctx context.Context, bound int64, mc *metrics.Collector) (*model.Result, error) {
	if bound < 1 {
		return nil, fmt.Errorf("bound must be at least 1, got %d", bound)
	}
	cfg, err := l.config.resolve()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	s := l.newSearch(ctx, cfg, bound, mc)
	defer s.pool.Shutdown(false)

	s.logger.Debug("search started",
		"bound", bound,
		"block_size", cfg.BlockSize,
		"max_workers", cfg.MaxWorkers,
		"max_jobs", cfg.MaxJobs,
		"timeout", cfg.Timeout,
		"wait", cfg.WaitMode,
		"ordered", cfg.Ordered,
		"limit", cfg.Limit)

	for {
		settled, err := s.tick(ctx)
		if err != nil {
			s.abandon()
			elapsed := time.Since(started)
			mc.FinishRun(outcomeFor(err), 0, elapsed)
			s.logger.Debug("search stopped", "error", err, "elapsed", elapsed, "loops", s.stats.Loops)
			return nil, err
		}
		if settled {
			break
		}
	}

	// Hard stop: whatever is left is discarded, not awaited.
	s.abandon()

	elapsed := time.Since(started)
	s.stats.AvgAvailableWorkers = s.avgAvailable()
	mc.FinishRun("found", s.best.value, elapsed)

	s.logger.Debug("Average number of workers available (optimally 0)", "avg", s.stats.AvgAvailableWorkers)
	s.logger.Debug("search finished",
		"value", s.best.value,
		"block", s.best.block.String(),
		"elapsed", elapsed,
		"loops", s.stats.Loops,
		"blocks_submitted", s.stats.BlocksSubmitted)

	return &model.Result{
		RunID:        s.runID,
		Bound:        bound,
		Value:        s.best.value,
		WinningBlock: s.best.block,
		Elapsed:      elapsed,
		Stats:        s.stats,
	}, nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, model.ErrSearchSpaceExhausted):
		return "exhausted"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

type candidate struct {
	value int64
	block model.Block
}

// search is the state of one run. It is owned by the goroutine calling Run.
type search struct {
	cfg    Config
	pool   *pool.Pool
	logger *slog.Logger
	mc     *metrics.Collector
	runID  string

	cursor    int64
	exhausted bool
	inFlight  map[*pool.Task]model.Block
	best      *candidate

	stats        model.Stats
	availableSum int
}

func (l *Loop) newSearch(ctx context.Context, cfg Config, bound int64, mc *metrics.Collector) *search {
	runID := "run_" + uuid.New().String()
	logger := l.logger.With("run_id", runID)
	eval := predicate.NewEvaluator(l.rule, bound)

	mc.StartRun(runID, bound)
	return &search{
		cfg:      cfg,
		pool:     pool.New(ctx, pool.Config{MaxWorkers: cfg.MaxWorkers}, eval.Search, logger),
		logger:   logger,
		mc:       mc,
		runID:    runID,
		cursor:   1,
		inFlight: make(map[*pool.Task]model.Block),
	}
}

// tick runs a single loop iteration: sample, top up, poll, harvest.
// It reports whether a winning value has been settled.
func (s *search) tick(ctx context.Context) (bool, error) {
	// Sample before top-up.
	available := max(s.cfg.MaxWorkers-len(s.inFlight), 0)
	s.stats.Loops++
	s.availableSum += available
	s.mc.RecordLoop(available, len(s.inFlight))

	if err := s.topUp(); err != nil {
		return false, err
	}

	if len(s.inFlight) == 0 {
		if s.best != nil {
			return true, nil
		}
		if s.exhausted {
			return false, fmt.Errorf("no valid candidate up to %d: %w", s.cursor-1, model.ErrSearchSpaceExhausted)
		}
	}

	done, pending, err := s.pool.Wait(ctx, s.tasks(), s.cfg.Timeout, s.cfg.WaitMode)
	if err != nil {
		return false, fmt.Errorf("poll: %w", err)
	}
	timedOut := len(done) == 0 || (s.cfg.WaitMode == model.WaitAllCompleted && len(pending) > 0)
	s.mc.RecordPoll(timedOut)
	if timedOut {
		s.stats.PollTimeouts++
	}

	if err := s.harvest(done); err != nil {
		return false, err
	}
	return s.settled(), nil
}

// topUp submits new blocks until max_jobs are outstanding. Nothing is
// submitted once a candidate winner exists.
func (s *search) topUp() error {
	for len(s.inFlight) < s.cfg.MaxJobs && s.best == nil {
		b, ok := s.nextBlock()
		if !ok {
			return nil
		}
		t, err := s.pool.Submit(b)
		if err != nil {
			return fmt.Errorf("submit block %s: %w", b, err)
		}
		s.inFlight[t] = b
		s.stats.BlocksSubmitted++
		s.mc.BlockSubmitted()
	}
	return nil
}

// nextBlock allocates [cursor, cursor+block_size) and advances the cursor. The
// final block is truncated at the limit or at math.MaxInt64.
func (s *search) nextBlock() (model.Block, bool) {
	if s.exhausted {
		return model.Block{}, false
	}
	ceiling := int64(math.MaxInt64)
	if s.cfg.Limit > 0 && s.cfg.Limit < math.MaxInt64 {
		ceiling = s.cfg.Limit + 1
	}
	if s.cursor >= ceiling {
		s.exhausted = true
		return model.Block{}, false
	}

	end := ceiling
	if s.cursor <= ceiling-s.cfg.BlockSize {
		end = s.cursor + s.cfg.BlockSize
	}
	b := model.Block{Start: s.cursor, End: end}
	s.cursor = end
	return b, true
}

// harvest removes completed tasks from the in-flight set and keeps the lowest
// found value. A failed block is fatal to the run.
func (s *search) harvest(done []*pool.Task) error {
	for _, t := range done {
		b, ok := s.inFlight[t]
		if !ok {
			continue
		}
		delete(s.inFlight, t)
		s.stats.BlocksCompleted++
		s.mc.RecordBlock(metrics.BlockMetrics{
			TaskID:    t.ID,
			Block:     b,
			StartTime: t.StartedAt(),
			Duration:  t.Duration(),
			State:     t.State(),
		})

		switch t.State() {
		case model.TaskStateFound:
			v, _ := t.Result()
			s.logger.Debug("block found candidate", "block", b.String(), "value", v)
			if s.best == nil || v < s.best.value {
				s.best = &candidate{value: v, block: b}
			}
		case model.TaskStateFailed:
			return fmt.Errorf("search block %s: %w", b, t.Err())
		case model.TaskStateCancelled:
			// Only the pool's own context can cancel a task we still track.
			if err := t.Err(); err != nil {
				return fmt.Errorf("search block %s: %w", b, err)
			}
		}
	}

	if s.best != nil && s.cfg.Ordered {
		s.cancelAfter(s.best.block)
	}
	return nil
}

// cancelAfter abandons every in-flight block that starts after b. None of them
// can hold a value smaller than one found in b.
func (s *search) cancelAfter(b model.Block) {
	for t, tb := range s.inFlight {
		if b.Before(tb) {
			s.drop(t, tb)
		}
	}
}

// settled reports whether the current candidate can be returned.
func (s *search) settled() bool {
	if s.best == nil {
		return false
	}
	if !s.cfg.Ordered {
		return true
	}
	for _, b := range s.inFlight {
		if b.Before(s.best.block) {
			return false
		}
	}
	return true
}

// abandon cancels every remaining in-flight task without waiting for it.
func (s *search) abandon() {
	for t, b := range s.inFlight {
		s.drop(t, b)
	}
}

func (s *search) drop(t *pool.Task, b model.Block) {
	t.Cancel()
	delete(s.inFlight, t)
	s.stats.BlocksCancelled++
	s.mc.RecordBlock(metrics.BlockMetrics{
		TaskID:    t.ID,
		Block:     b,
		StartTime: t.StartedAt(),
		State:     model.TaskStateCancelled,
	})
}

// tasks returns the in-flight tasks ordered by block start.
func (s *search) tasks() []*pool.Task {
	out := make([]*pool.Task, 0, len(s.inFlight))
	for t := range s.inFlight {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		return s.inFlight[out[i]].Start < s.inFlight[out[j]].Start
	})
	return out
}

func (s *search) avgAvailable() float64 {
	if s.stats.Loops == 0 {
		return 0
	}
	return float64(s.availableSum) / float64(s.stats.Loops)
}
