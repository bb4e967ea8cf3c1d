package server

import (
	"sync"

	"github.com/me/worksizing/pkg/model"
)

// history keeps the most recent search results in memory, newest first.
// Nothing survives a restart.
type history struct {
	mu   sync.Mutex
	max  int
	runs []*model.Result
}

func newHistory(size int) *history {
	return &history{max: size}
}

func (h *history) add(res *model.Result) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append([]*model.Result{res}, h.runs...)
	if len(h.runs) > h.max {
		h.runs = h.runs[:h.max]
	}
}

func (h *history) get(runID string) *model.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.runs {
		if r.RunID == runID {
			return r
		}
	}
	return nil
}

// list returns one page of results and the total number held.
func (h *history) list(opts model.ListOptions) ([]*model.Result, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := len(h.runs)
	if opts.Offset >= total {
		return []*model.Result{}, total
	}
	end := min(opts.Offset+opts.Limit, total)
	page := make([]*model.Result, end-opts.Offset)
	copy(page, h.runs[opts.Offset:end])
	return page, total
}

func (h *history) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}
