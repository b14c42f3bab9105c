// Package interaction turns pointer and wheel input into pan and zoom calls,
// with release momentum, and detects clicks and long presses on map objects.
package interaction

import (
	"math"
	"time"

	"github.com/gogpu/gg"

	"slippy/internal/eventloop"
)

const (
	HistorySize      = 40
	WheelStep        = 0.1
	MomentumInterval = 7 * time.Millisecond
	MomentumDecay    = 0.99
	// MinDisplacement ends momentum once a tick moves less than this many
	// pixels.
	MinDisplacement = 0.3
	MinSamples      = 5
	// MinVelocity is the release speed, in px/s, needed to start momentum.
	MinVelocity = 100
)

// Viewport is what the controller drives.
type Viewport interface {
	PanPx(v gg.Vec2)
	Zoom(dz float64, origin gg.Vec2)
}

type PointerType int

const (
	Mouse PointerType = iota
	Touch
	Pen
)

// window is how far back release samples count towards momentum.
func (t PointerType) window() time.Duration {
	if t == Mouse {
		return 40 * time.Millisecond
	}
	return 100 * time.Millisecond
}

type Pointer struct {
	ID   int
	Type PointerType
	X, Y float64
	Time time.Time
}

func (p Pointer) pos() gg.Vec2 { return gg.Vec2{X: p.X, Y: p.Y} }

type State int

const (
	Idle State = iota
	Tracking
	Momentum
)

func (s State) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Momentum:
		return "momentum"
	}
	return "idle"
}

type sample struct {
	v  gg.Vec2
	at time.Time
}

// Controller is the viewport gesture state machine. It must be driven from
// the scheduler's loop.
type Controller struct {
	view  Viewport
	sched eventloop.Scheduler

	pointers map[int]gg.Vec2
	history  []sample
	velocity gg.Vec2
	timer    eventloop.Timer
	moving   bool
	disposed bool
}

func NewController(view Viewport, sched eventloop.Scheduler) *Controller {
	return &Controller{
		view:     view,
		sched:    sched,
		pointers: make(map[int]gg.Vec2),
	}
}

func (c *Controller) State() State {
	switch {
	case c.moving:
		return Momentum
	case len(c.pointers) > 0:
		return Tracking
	}
	return Idle
}

// Velocity is the current momentum velocity in px/s.
func (c *Controller) Velocity() gg.Vec2 { return c.velocity }

func (c *Controller) PointerDown(p Pointer) {
	if c.disposed {
		return
	}
	c.stopMomentum()
	if len(c.pointers) == 0 {
		c.history = c.history[:0]
	}
	c.pointers[p.ID] = p.pos()
}

func (c *Controller) PointerMove(p Pointer) {
	prev, ok := c.pointers[p.ID]
	if c.disposed || !ok {
		return
	}
	cur := p.pos()
	if len(c.pointers) == 1 {
		d := cur.Sub(prev)
		c.pointers[p.ID] = cur
		c.record(d, p.Time)
		c.view.PanPx(d)
		return
	}

	before := c.centroid()
	oldSum := c.spread(before)
	c.pointers[p.ID] = cur
	after := c.centroid()
	newSum := c.spread(before)

	pan := after.Sub(before)
	c.record(pan, p.Time)
	c.view.PanPx(pan)
	if m := math.Max(newSum, oldSum); m > 0 {
		c.view.Zoom((newSum-oldSum)/m, after)
	}
}

// PointerUp handles release, cancel and leave. Momentum starts when the last
// pointer lifts fast enough.
func (c *Controller) PointerUp(p Pointer) {
	if _, ok := c.pointers[p.ID]; c.disposed || !ok {
		return
	}
	delete(c.pointers, p.ID)
	if len(c.pointers) > 0 {
		return
	}

	// Velocity is averaged over the span of the recent samples, not up to
	// the release.
	window := p.Type.window()
	var sum gg.Vec2
	var first, last time.Time
	n := 0
	for _, s := range c.history {
		if age := p.Time.Sub(s.at); age < 0 || age >= window {
			continue
		}
		if n == 0 || s.at.Before(first) {
			first = s.at
		}
		if n == 0 || s.at.After(last) {
			last = s.at
		}
		sum = sum.Add(s.v)
		n++
	}
	c.history = c.history[:0]
	span := last.Sub(first).Seconds()
	if n < MinSamples || span <= 0 {
		return
	}
	v := sum.Div(span)
	if v.Length() <= MinVelocity {
		return
	}
	c.velocity = v
	c.moving = true
	c.tick()
}

// Wheel zooms one step about the cursor. Negative dy zooms in.
func (c *Controller) Wheel(x, y, dy float64) {
	if c.disposed || dy == 0 {
		return
	}
	dz := WheelStep
	if dy > 0 {
		dz = -WheelStep
	}
	c.view.Zoom(dz, gg.Vec2{X: x, Y: y})
}

// Dispose stops momentum and ignores all further input.
func (c *Controller) Dispose() {
	c.disposed = true
	c.stopMomentum()
	clear(c.pointers)
}

func (c *Controller) tick() {
	if c.disposed || !c.moving {
		return
	}
	d := c.velocity.Mul(MomentumInterval.Seconds())
	if d.Length() < MinDisplacement {
		c.stopMomentum()
		return
	}
	c.view.PanPx(d)
	c.velocity = c.velocity.Mul(MomentumDecay)
	c.timer = c.sched.AfterFunc(MomentumInterval, c.tick)
}

func (c *Controller) stopMomentum() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.moving = false
	c.velocity = gg.Vec2{}
}

func (c *Controller) record(v gg.Vec2, at time.Time) {
	if len(c.history) == HistorySize {
		copy(c.history, c.history[1:])
		c.history = c.history[:HistorySize-1]
	}
	c.history = append(c.history, sample{v: v, at: at})
}

func (c *Controller) centroid() gg.Vec2 {
	var sum gg.Vec2
	for _, p := range c.pointers {
		sum = sum.Add(p)
	}
	return sum.Div(float64(len(c.pointers)))
}

func (c *Controller) spread(from gg.Vec2) float64 {
	total := 0.0
	for _, p := range c.pointers {
		total += p.Sub(from).Length()
	}
	return total
}
