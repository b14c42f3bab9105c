package eventloop

import (
	"sort"
	"time"
)

// Manual is a deterministic Scheduler with a virtual clock. Background work
// runs inline during Flush, so tests observe a fixed interleaving.
type Manual struct {
	now      time.Time
	tasks    []func()
	workers  []func()
	timers   []*manualTimer
	timerSeq int
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Post(fn func()) { m.tasks = append(m.tasks, fn) }

func (m *Manual) Go(fn func()) { m.workers = append(m.workers, fn) }

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.timerSeq++
	t := &manualTimer{at: m.now.Add(d), seq: m.timerSeq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) Now() time.Time { return m.now }

// Pending reports queued tasks, background work and live timers.
func (m *Manual) Pending() (tasks, workers, timers int) {
	for _, t := range m.timers {
		if !t.stopped {
			timers++
		}
	}
	return len(m.tasks), len(m.workers), timers
}

// Flush runs queued tasks and background work until both are empty.
func (m *Manual) Flush() {
	for len(m.tasks) > 0 || len(m.workers) > 0 {
		if len(m.tasks) > 0 {
			fn := m.tasks[0]
			m.tasks = m.tasks[1:]
			fn()
			continue
		}
		fn := m.workers[0]
		m.workers = m.workers[1:]
		fn()
	}
}

// Advance moves the clock forward by d, firing due timers in order and
// flushing after each one.
func (m *Manual) Advance(d time.Duration) {
	end := m.now.Add(d)
	m.Flush()
	for {
		t := m.nextDue(end)
		if t == nil {
			break
		}
		if t.at.After(m.now) {
			m.now = t.at
		}
		t.stopped = true
		t.fn()
		m.Flush()
	}
	m.now = end
}

func (m *Manual) nextDue(end time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].seq < m.timers[j].seq
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})
	if len(m.timers) == 0 || m.timers[0].at.After(end) {
		return nil
	}
	return m.timers[0]
}

type manualTimer struct {
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}
