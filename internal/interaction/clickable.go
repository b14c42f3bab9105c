package interaction

import (
	"math"
	"time"

	"github.com/gogpu/gg"

	"slippy/internal/eventloop"
	"slippy/internal/scene"
)

const (
	LongPress = 500 * time.Millisecond
	// ClickSlop is how far, per axis, a press may travel and still count.
	ClickSlop = 5
)

// ClickEvent describes a click or long press on an interactive map object.
type ClickEvent struct {
	ScreenX, ScreenY float64
	Lat, Long        float64
	Properties       any
	LayerID          int
}

type press struct {
	id     int
	start  gg.Vec2
	target *scene.Node
	timer  eventloop.Timer
}

// Clickable raises OnClick for a short press and OnContext for a long one on
// whatever Hit returns.
type Clickable struct {
	sched   eventloop.Scheduler
	hit     func(x, y float64) *scene.Node
	resolve func(x, y float64) (lat, long float64)

	OnClick   func(ClickEvent)
	OnContext func(ClickEvent)

	active   map[int]struct{}
	press    *press
	disposed bool
}

func NewClickable(sched eventloop.Scheduler, hit func(x, y float64) *scene.Node, resolve func(x, y float64) (lat, long float64)) *Clickable {
	return &Clickable{
		sched:   sched,
		hit:     hit,
		resolve: resolve,
		active:  make(map[int]struct{}),
	}
}

func (c *Clickable) PointerDown(p Pointer) {
	if c.disposed {
		return
	}
	c.active[p.ID] = struct{}{}
	if len(c.active) > 1 {
		c.cancel()
		return
	}
	target := c.hit(p.X, p.Y)
	if target == nil {
		return
	}
	pr := &press{id: p.ID, start: p.pos(), target: target}
	pr.timer = c.sched.AfterFunc(LongPress, func() {
		if c.press != pr {
			return
		}
		c.press = nil
		c.emit(c.OnContext, pr)
	})
	c.press = pr
}

func (c *Clickable) PointerMove(p Pointer) {
	if c.press == nil || c.press.id != p.ID {
		return
	}
	d := p.pos().Sub(c.press.start)
	if math.Abs(d.X) > ClickSlop || math.Abs(d.Y) > ClickSlop {
		c.cancel()
	}
}

func (c *Clickable) PointerUp(p Pointer) {
	delete(c.active, p.ID)
	if c.press == nil || c.press.id != p.ID {
		return
	}
	pr := c.press
	c.cancel()
	c.emit(c.OnClick, pr)
}

// Pending reports whether a press is waiting to become a click.
func (c *Clickable) Pending() bool { return c.press != nil }

func (c *Clickable) Dispose() {
	c.disposed = true
	c.cancel()
	clear(c.active)
}

func (c *Clickable) cancel() {
	if c.press == nil {
		return
	}
	c.press.timer.Stop()
	c.press = nil
}

func (c *Clickable) emit(fn func(ClickEvent), pr *press) {
	if fn == nil || c.disposed {
		return
	}
	lat, long := c.resolve(pr.start.X, pr.start.Y)
	fn(ClickEvent{
		ScreenX:    pr.start.X,
		ScreenY:    pr.start.Y,
		Lat:        lat,
		Long:       long,
		Properties: pr.target.Properties,
		LayerID:    pr.target.LayerID,
	})
}
