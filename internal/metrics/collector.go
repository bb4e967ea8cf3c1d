package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/me/worksizing/pkg/model"
)

// BlockMetrics holds metrics for a single block search.
type BlockMetrics struct {
	TaskID      string          `json:"task_id"`
	Block       model.Block     `json:"block"`
	StartTime   time.Time       `json:"start_time"`
	Duration    time.Duration   `json:"duration_ns"`
	DurationStr string          `json:"duration"`
	State       model.TaskState `json:"state"`
}

// RunMetrics holds aggregate metrics for one search run.
type RunMetrics struct {
	RunID       string        `json:"run_id,omitempty"`
	Bound       int64         `json:"bound"`
	Value       int64         `json:"value,omitempty"`
	StartTime   time.Time     `json:"start_time"`
	Duration    time.Duration `json:"duration_ns"`
	DurationStr string        `json:"duration"`

	Loops           int `json:"loops"`
	PollTimeouts    int `json:"poll_timeouts"`
	BlocksSubmitted int `json:"blocks_submitted"`
	BlocksFound     int `json:"blocks_found"`
	BlocksEmpty     int `json:"blocks_empty"`
	BlocksFailed    int `json:"blocks_failed"`
	BlocksCancelled int `json:"blocks_cancelled"`

	AvgAvailableWorkers float64        `json:"avg_available_workers"`
	Blocks              []BlockMetrics `json:"blocks"`

	availableSum int
	mu           sync.Mutex
}

// Collector gathers metrics during a run. It always forwards to its
// Prometheus instruments (if any); per-block detail is only kept when enabled.
// A nil Collector is valid and does nothing.
type Collector struct {
	enabled bool
	inst    *Instruments
	run     *RunMetrics
}

// NewCollector creates a collector. inst may be nil.
func NewCollector(enabled bool, inst *Instruments) *Collector {
	c := &Collector{enabled: enabled, inst: inst}
	if enabled {
		c.run = &RunMetrics{
			StartTime: time.Now(),
			Blocks:    make([]BlockMetrics, 0),
		}
	}
	return c
}

// Enabled returns true if detailed collection is enabled.
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// StartRun records the identity of the run.
func (c *Collector) StartRun(runID string, bound int64) {
	if !c.Enabled() {
		return
	}
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.run.RunID = runID
	c.run.Bound = bound
	c.run.StartTime = time.Now()
}

// RecordLoop records one scheduler iteration and the idle worker slots seen at its start.
func (c *Collector) RecordLoop(available, inFlight int) {
	if c == nil {
		return
	}
	c.inst.observeLoop(available, inFlight)
	if !c.enabled {
		return
	}
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.run.Loops++
	c.run.availableSum += available
}

// BlockSubmitted records a dispatched block.
func (c *Collector) BlockSubmitted() {
	if c == nil {
		return
	}
	c.inst.observeSubmit()
	if !c.enabled {
		return
	}
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.run.BlocksSubmitted++
}

// RecordPoll records the outcome of one poll.
func (c *Collector) RecordPoll(timedOut bool) {
	if c == nil {
		return
	}
	c.inst.observePoll(timedOut)
	if !c.enabled || !timedOut {
		return
	}
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.run.PollTimeouts++
}

// RecordBlock records a block that left the in-flight set.
func (c *Collector) RecordBlock(m BlockMetrics) {
	if c == nil {
		return
	}
	c.inst.observeBlock(m.State, m.Duration)
	if !c.enabled {
		return
	}

	m.DurationStr = formatDuration(m.Duration)

	c.run.mu.Lock()
	defer c.run.mu.Unlock()

	c.run.Blocks = append(c.run.Blocks, m)
	switch m.State {
	case model.TaskStateFound:
		c.run.BlocksFound++
	case model.TaskStateEmpty:
		c.run.BlocksEmpty++
	case model.TaskStateFailed:
		c.run.BlocksFailed++
	case model.TaskStateCancelled:
		c.run.BlocksCancelled++
	}
}

// FinishRun records how the run ended. outcome is "found", "exhausted",
// "cancelled" or "error".
func (c *Collector) FinishRun(outcome string, value int64, d time.Duration) {
	if c == nil {
		return
	}
	c.inst.observeRun(outcome, d)
	if !c.enabled {
		return
	}
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.run.Value = value
}

// Finalize completes the run metrics collection.
func (c *Collector) Finalize() *RunMetrics {
	if !c.Enabled() {
		return nil
	}

	c.run.mu.Lock()
	defer c.run.mu.Unlock()

	c.run.Duration = time.Since(c.run.StartTime)
	c.run.DurationStr = formatDuration(c.run.Duration)
	if c.run.Loops > 0 {
		c.run.AvgAvailableWorkers = float64(c.run.availableSum) / float64(c.run.Loops)
	}

	// Sort blocks by position for consistent output
	sort.Slice(c.run.Blocks, func(i, j int) bool {
		return c.run.Blocks[i].Block.Start < c.run.Blocks[j].Block.Start
	})

	return c.run
}

// formatDuration formats a duration for human display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}
