package progress

import (
	"path/filepath"
	"sync"

	"github.com/codebuildervaibhav/video-transcription/internal/types"
)

// Snapshot is the batch progress at one point in time
type Snapshot struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Last      string `json:"last,omitempty"`
	LastKind  string `json:"last_kind,omitempty"`
}

// Percent returns completed/total as a percentage
func (s Snapshot) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) * 100 / float64(s.Total)
}

// Done reports whether every job has an outcome
func (s Snapshot) Done() bool {
	return s.Total > 0 && s.Completed >= s.Total
}

// Reporter renders progress updates
type Reporter interface {
	Start(total int)
	Update(s Snapshot)
}

// Tracker counts finished jobs and fans snapshots out to reporters and
// subscribers. Completed only ever grows.
type Tracker struct {
	reporters []Reporter

	mu    sync.Mutex
	state Snapshot
	subs  map[chan Snapshot]struct{}
}

// NewTracker creates a tracker feeding the given reporters
func NewTracker(reporters ...Reporter) *Tracker {
	return &Tracker{
		reporters: reporters,
		subs:      make(map[chan Snapshot]struct{}),
	}
}

// Start resets the counters for a batch of total jobs
func (t *Tracker) Start(total int) {
	t.mu.Lock()
	t.state = Snapshot{Total: total}
	s := t.state
	t.mu.Unlock()

	for _, r := range t.reporters {
		r.Start(total)
	}
	t.publish(s)
}

// Complete records one finished job
func (t *Tracker) Complete(outcome types.JobOutcome) {
	t.mu.Lock()
	t.state.Completed++
	if outcome.Succeeded() {
		t.state.Succeeded++
	} else {
		t.state.Failed++
	}
	t.state.Last = filepath.Base(outcome.SourcePath)
	t.state.LastKind = string(outcome.Kind())
	s := t.state
	t.mu.Unlock()

	for _, r := range t.reporters {
		r.Update(s)
	}
	t.publish(s)
}

// Snapshot returns the current progress
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe returns a channel receiving every later snapshot, starting
// with the current one. Slow subscribers only see the newest snapshot.
// Call the returned function to unsubscribe.
func (t *Tracker) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	t.mu.Lock()
	t.subs[ch] = struct{}{}
	ch <- t.state
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, ch)
			close(ch)
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) publish(s Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.subs {
		// Replace a stale snapshot the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
