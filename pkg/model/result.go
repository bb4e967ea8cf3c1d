package model

import "time"

// Result is the outcome of one completed search run.
type Result struct {
	RunID        string        `json:"run_id"`
	Bound        int64         `json:"bound"`
	Value        int64         `json:"value"`
	WinningBlock Block         `json:"winning_block"`
	Elapsed      time.Duration `json:"elapsed_ns"`
	Stats        Stats         `json:"stats"`
}

// Stats holds diagnostic counters gathered by the scheduler during a run.
// None of them affect the outcome.
type Stats struct {
	Loops           int `json:"loops"`
	BlocksSubmitted int `json:"blocks_submitted"`
	BlocksCompleted int `json:"blocks_completed"`
	BlocksCancelled int `json:"blocks_cancelled"`
	PollTimeouts    int `json:"poll_timeouts"`

	// AvgAvailableWorkers is the mean number of idle worker slots observed at
	// the start of each loop. Zero means the pool was saturated throughout.
	AvgAvailableWorkers float64 `json:"avg_available_workers"`
}
