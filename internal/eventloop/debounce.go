package eventloop

import "time"

// Debouncer coalesces bursts of calls into one trailing call. A burst never
// delays the call longer than maxWait after its first call. Call and Cancel
// must run on the loop.
type Debouncer struct {
	sched   Scheduler
	wait    time.Duration
	maxWait time.Duration

	timer   Timer
	pending bool
	first   time.Time
	fn      func()
}

func NewDebouncer(sched Scheduler, wait, maxWait time.Duration) *Debouncer {
	return &Debouncer{sched: sched, wait: wait, maxWait: maxWait}
}

// Call schedules fn, replacing any fn still waiting from the same burst.
func (d *Debouncer) Call(fn func()) {
	now := d.sched.Now()
	d.fn = fn
	if !d.pending {
		d.pending = true
		d.first = now
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delay := d.wait
	if d.maxWait > 0 {
		if left := d.maxWait - now.Sub(d.first); left < delay {
			delay = left
		}
	}
	if delay < 0 {
		delay = 0
	}
	d.timer = d.sched.AfterFunc(delay, d.fire)
}

func (d *Debouncer) fire() {
	if !d.pending {
		return
	}
	fn := d.fn
	d.pending = false
	d.fn = nil
	d.timer = nil
	fn()
}

func (d *Debouncer) Cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
	d.fn = nil
}
