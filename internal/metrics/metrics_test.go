package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/me/worksizing/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Disabled(t *testing.T) {
	c := NewCollector(false, nil)
	if c.Enabled() {
		t.Error("expected disabled collector")
	}

	// All operations should be no-ops
	c.StartRun("run_1", 10)
	c.RecordLoop(3, 1)
	c.BlockSubmitted()
	c.RecordPoll(true)
	c.RecordBlock(BlockMetrics{State: model.TaskStateEmpty})
	c.FinishRun("found", 2520, time.Second)

	if m := c.Finalize(); m != nil {
		t.Error("expected nil metrics from disabled collector")
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	c.StartRun("run_1", 10)
	c.RecordLoop(3, 1)
	c.BlockSubmitted()
	c.RecordPoll(false)
	c.RecordBlock(BlockMetrics{State: model.TaskStateFound})
	c.FinishRun("found", 1, 0)

	if c.Enabled() {
		t.Error("expected disabled for nil collector")
	}
	if m := c.Finalize(); m != nil {
		t.Error("expected nil metrics from nil collector")
	}
}

func TestCollector_Enabled(t *testing.T) {
	c := NewCollector(true, nil)
	c.StartRun("run_abc", 10)

	c.RecordLoop(4, 0)
	c.RecordLoop(0, 4)
	c.RecordLoop(2, 2)
	for i := 0; i < 4; i++ {
		c.BlockSubmitted()
	}
	c.RecordPoll(true)
	c.RecordPoll(false)

	c.RecordBlock(BlockMetrics{Block: model.Block{Start: 201, End: 301}, State: model.TaskStateCancelled})
	c.RecordBlock(BlockMetrics{Block: model.Block{Start: 1, End: 101}, State: model.TaskStateEmpty, Duration: 3 * time.Millisecond})
	c.RecordBlock(BlockMetrics{Block: model.Block{Start: 101, End: 201}, State: model.TaskStateFound, Duration: 2 * time.Millisecond})
	c.FinishRun("found", 120, 10*time.Millisecond)

	m := c.Finalize()
	if m == nil {
		t.Fatal("expected non-nil metrics")
	}
	if m.RunID != "run_abc" || m.Bound != 10 || m.Value != 120 {
		t.Errorf("identity = (%q, %d, %d), want (run_abc, 10, 120)", m.RunID, m.Bound, m.Value)
	}
	if m.Loops != 3 {
		t.Errorf("Loops = %d, want 3", m.Loops)
	}
	if m.AvgAvailableWorkers != 2 {
		t.Errorf("AvgAvailableWorkers = %v, want 2", m.AvgAvailableWorkers)
	}
	if m.BlocksSubmitted != 4 || m.PollTimeouts != 1 {
		t.Errorf("submitted=%d timeouts=%d, want 4/1", m.BlocksSubmitted, m.PollTimeouts)
	}
	if m.BlocksFound != 1 || m.BlocksEmpty != 1 || m.BlocksCancelled != 1 {
		t.Errorf("found=%d empty=%d cancelled=%d, want 1/1/1", m.BlocksFound, m.BlocksEmpty, m.BlocksCancelled)
	}
	if m.Blocks[0].Block.Start != 1 || m.Blocks[2].Block.Start != 201 {
		t.Errorf("blocks not sorted by start: %+v", m.Blocks)
	}
	if m.Blocks[0].DurationStr != "3ms" {
		t.Errorf("DurationStr = %q, want 3ms", m.Blocks[0].DurationStr)
	}
}

func TestCollector_ForwardsToInstruments(t *testing.T) {
	inst := NewInstruments()
	reg := prometheus.NewRegistry()
	inst.MustRegister(reg)

	c := NewCollector(false, inst)
	c.RecordLoop(5, 3)
	c.BlockSubmitted()
	c.BlockSubmitted()
	c.RecordPoll(true)
	c.RecordPoll(false)
	c.RecordBlock(BlockMetrics{State: model.TaskStateEmpty, Duration: time.Millisecond})
	c.RecordBlock(BlockMetrics{State: model.TaskStateFound, Duration: time.Millisecond})
	c.FinishRun("found", 2520, 50*time.Millisecond)

	if got := testutil.ToFloat64(inst.BlocksSubmitted); got != 2 {
		t.Errorf("blocks_submitted_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(inst.PollTimeouts); got != 1 {
		t.Errorf("poll_timeouts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(inst.Polls); got != 2 {
		t.Errorf("polls_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(inst.AvailableWorkers); got != 5 {
		t.Errorf("available_workers = %v, want 5", got)
	}
	if got := testutil.ToFloat64(inst.BlocksCompleted.WithLabelValues("FOUND")); got != 1 {
		t.Errorf("blocks_completed_total{state=FOUND} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(inst.Searches.WithLabelValues("found")); got != 1 {
		t.Errorf("searches_total{outcome=found} = %v, want 1", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{30 * time.Second, "30.0s"},
		{1 * time.Minute, "1m 00s"},
		{90 * time.Second, "1m 30s"},
		{1 * time.Hour, "1h 00m 00s"},
		{90 * time.Minute, "1h 30m 00s"},
	}

	for _, tc := range tests {
		got := formatDuration(tc.duration)
		if got != tc.expected {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.duration, got, tc.expected)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	m := &RunMetrics{
		RunID:               "run_xyz",
		Bound:               20,
		Value:               232792560,
		DurationStr:         "1m 30s",
		Loops:               1500,
		PollTimeouts:        12,
		BlocksSubmitted:     2328000,
		BlocksEmpty:         2327990,
		BlocksFound:         1,
		BlocksCancelled:     9,
		AvgAvailableWorkers: 0.25,
		Blocks: []BlockMetrics{
			{Block: model.Block{Start: 232792501, End: 232792601}, DurationStr: "2ms", Duration: 2 * time.Millisecond, State: model.TaskStateFound},
			{Block: model.Block{Start: 232792601, End: 232792701}, DurationStr: "1ms", Duration: time.Millisecond, State: model.TaskStateCancelled},
		},
	}

	var buf bytes.Buffer
	PrintSummary(&buf, m)
	output := buf.String()

	for _, want := range []string{
		"Search Summary",
		"run_xyz",
		"Result: 232,792,560",
		"1m 30s",
		"Loops: 1,500 (12 poll timeouts)",
		"optimally 0): 0.25",
		"[232,792,501, 232,792,601)",
		"2,328,000 submitted",
		"9 cancelled",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("summary missing %q:\n%s", want, output)
		}
	}
}

func TestPrintSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output for nil metrics, got %q", buf.String())
	}
}
