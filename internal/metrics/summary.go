package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/me/worksizing/pkg/model"
)

// maxBlockRows caps how many blocks PrintSummary lists individually.
const maxBlockRows = 10

// PrintSummary writes a human-readable run summary to w.
// Only the slowest blocks are listed; totals cover every block.
func PrintSummary(w io.Writer, m *RunMetrics) {
	if m == nil {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Search Summary ===")
	if m.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", m.RunID)
	}
	fmt.Fprintf(w, "Bound: %s\n", humanize.Comma(m.Bound))
	if m.Value > 0 {
		fmt.Fprintf(w, "Result: %s\n", humanize.Comma(m.Value))
	}
	fmt.Fprintf(w, "Total Duration: %s\n", m.DurationStr)
	fmt.Fprintf(w, "Loops: %s (%s poll timeouts)\n",
		humanize.Comma(int64(m.Loops)), humanize.Comma(int64(m.PollTimeouts)))
	fmt.Fprintf(w, "Average available workers (optimally 0): %.2f\n", m.AvgAvailableWorkers)
	fmt.Fprintln(w)

	if len(m.Blocks) > 0 {
		slowest := make([]BlockMetrics, len(m.Blocks))
		copy(slowest, m.Blocks)
		sort.SliceStable(slowest, func(i, j int) bool {
			return slowest[i].Duration > slowest[j].Duration
		})
		if len(slowest) > maxBlockRows {
			slowest = slowest[:maxBlockRows]
		}

		rows := make([]string, len(slowest))
		width := len("Block")
		for i, b := range slowest {
			rows[i] = fmt.Sprintf("[%s, %s)", humanize.Comma(b.Block.Start), humanize.Comma(b.Block.End))
			if len(rows[i]) > width {
				width = len(rows[i])
			}
		}

		fmt.Fprintf(w, "%-*s  %12s  %s\n", width, "Block", "Duration", "State")
		fmt.Fprintln(w, strings.Repeat("-", width+30))
		for i, b := range slowest {
			icon := "○"
			switch b.State {
			case model.TaskStateFound:
				icon = "✓"
			case model.TaskStateFailed:
				icon = "✗"
			case model.TaskStateCancelled:
				icon = "-"
			}
			fmt.Fprintf(w, "%-*s  %12s  %s %s\n", width, rows[i], b.DurationStr, icon, b.State)
		}
		fmt.Fprintln(w, strings.Repeat("-", width+30))
	}

	fmt.Fprintf(w, "Blocks: %s submitted, %s empty",
		humanize.Comma(int64(m.BlocksSubmitted)), humanize.Comma(int64(m.BlocksEmpty)))
	if m.BlocksFound > 0 {
		fmt.Fprintf(w, ", %d found", m.BlocksFound)
	}
	if m.BlocksCancelled > 0 {
		fmt.Fprintf(w, ", %s cancelled", humanize.Comma(int64(m.BlocksCancelled)))
	}
	if m.BlocksFailed > 0 {
		fmt.Fprintf(w, ", %d failed", m.BlocksFailed)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)
}
