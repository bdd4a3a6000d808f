package engine

import (
	"sort"
	"sync"
	"time"
)

// TableState is the lifecycle state of one fact table's generation.
// Deliberately independent from the numeric progress fraction: a table
// can sit at 1.0 progress while final persistence is pending, and must
// still report in_progress until CompleteTable is called.
type TableState string

const (
	StateNotStarted TableState = "not_started"
	StateInProgress TableState = "in_progress"
	StateCompleted  TableState = "completed"
	StateFailed     TableState = "failed"
)

// Report is one progress snapshot, shaped for an external status
// endpoint to serve directly.
type Report struct {
	Overall          float64
	TablesInProgress []string
	TablesCompleted  []string
	CurrentDay       string
	CurrentHour      int
}

type tableProgress struct {
	state    TableState
	progress float64
}

// Tracker tracks per-table progress and lifecycle state. Safe for
// concurrent use: every worker updates it, so critical sections are
// map updates only.
type Tracker struct {
	mu       sync.Mutex
	interval time.Duration
	now      func() time.Time
	lastEmit time.Time

	tables  map[string]*tableProgress
	day     string
	hour    int
	started bool
}

// NewTracker builds a tracker that throttles emitted snapshots to at
// most one per interval.
func NewTracker(interval time.Duration) *Tracker {
	return &Tracker{
		interval: interval,
		now:      time.Now,
		tables:   make(map[string]*tableProgress),
	}
}

// Reset clears all table state for a fresh run.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tables = make(map[string]*tableProgress)
	t.day = ""
	t.hour = 0
	t.started = false
	t.lastEmit = time.Time{}
}

// StartTable marks a table in_progress. Starting an already started or
// completed table is a no-op.
func (t *Tracker) StartTable(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp := t.table(name)
	if tp.state == StateNotStarted {
		tp.state = StateInProgress
	}
	t.started = true
}

// UpdateProgress sets a table's progress fraction. Values are clamped
// to [0,1] and never move backwards. Reaching 1.0 does not change the
// lifecycle state.
func (t *Tracker) UpdateProgress(name string, p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp := t.table(name)
	if p > 1 {
		p = 1
	}
	if p > tp.progress {
		tp.progress = p
	}
}

// CompleteTable is the only way a table reaches the completed state.
// Progress is forced to 1.0.
func (t *Tracker) CompleteTable(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp := t.table(name)
	tp.state = StateCompleted
	tp.progress = 1
}

// FailTable marks a table failed. Progress is left where it was.
func (t *Tracker) FailTable(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table(name).state = StateFailed
}

// SetClock records the simulation position surfaced in snapshots.
func (t *Tracker) SetClock(day string, hour int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.day = day
	t.hour = hour
}

// State returns a table's lifecycle state.
func (t *Tracker) State(name string) TableState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tp, ok := t.tables[name]; ok {
		return tp.state
	}
	return StateNotStarted
}

// Progress returns a table's numeric progress.
func (t *Tracker) Progress(name string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tp, ok := t.tables[name]; ok {
		return tp.progress
	}
	return 0
}

// Snapshot returns the current progress report.
func (t *Tracker) Snapshot() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// ThrottledSnapshot returns a report at most once per interval. The
// second return is false when the interval has not elapsed; callers
// emitting to slow consumers should skip those.
func (t *Tracker) ThrottledSnapshot() (Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.lastEmit.IsZero() && now.Sub(t.lastEmit) < t.interval {
		return Report{}, false
	}
	t.lastEmit = now
	return t.snapshotLocked(), true
}

func (t *Tracker) snapshotLocked() Report {
	rep := Report{CurrentDay: t.day, CurrentHour: t.hour}
	total := 0.0
	for name, tp := range t.tables {
		total += tp.progress
		switch tp.state {
		case StateInProgress:
			rep.TablesInProgress = append(rep.TablesInProgress, name)
		case StateCompleted:
			rep.TablesCompleted = append(rep.TablesCompleted, name)
		}
	}
	if len(t.tables) > 0 {
		rep.Overall = total / float64(len(t.tables))
	}
	sort.Strings(rep.TablesInProgress)
	sort.Strings(rep.TablesCompleted)
	return rep
}

func (t *Tracker) table(name string) *tableProgress {
	tp, ok := t.tables[name]
	if !ok {
		tp = &tableProgress{state: StateNotStarted}
		t.tables[name] = tp
	}
	return tp
}
