package schema

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Progress is one notification in a scan's progress stream.
// Current never decreases, and exactly one event per stream has Done set.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
	Done    bool   `json:"done,omitempty"`
	Err     error  `json:"-"`
}

// ProgressFunc observes progress. Calls are serialized; it must not block for long.
type ProgressFunc func(Progress)

// reporter delivers progress events in order, optionally throttling the
// intermediate ones. The first and terminal events are never dropped.
type reporter struct {
	mu      sync.Mutex
	fn      ProgressFunc
	limiter *rate.Limiter
	total   int
	current int
	done    bool
}

func newReporter(fn ProgressFunc, interval time.Duration) *reporter {
	r := &reporter{fn: fn}
	if interval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return r
}

// start announces the total and emits the opening event.
func (r *reporter) start(total int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
	if r.fn == nil || r.done {
		return
	}
	if r.limiter != nil {
		r.limiter.Allow()
	}
	r.fn(Progress{Current: r.current, Total: r.total, Message: msg})
}

// advance counts one finished unit of work.
func (r *reporter) advance(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current++
	if r.fn == nil || r.done {
		return
	}
	if r.limiter != nil && !r.limiter.Allow() {
		return
	}
	r.fn(Progress{Current: r.current, Total: r.total, Message: msg})
}

// finish emits the terminal event. Later calls are ignored.
func (r *reporter) finish(msg string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	if r.fn == nil {
		return
	}
	r.fn(Progress{Current: r.current, Total: r.total, Message: msg, Done: true, Err: err})
}
