// Package engine is the map façade: it wires layers, input and a render loop
// onto a drawing surface.
package engine

import (
	"errors"
	"time"

	"github.com/gogpu/gg"
	"go.uber.org/zap"

	"slippy/internal/compose"
	"slippy/internal/eventloop"
	"slippy/internal/interaction"
	"slippy/internal/layer"
	"slippy/internal/mercator"
	"slippy/internal/pyramid"
	"slippy/internal/scene"
)

const (
	panCost  = 20
	zoomCost = 150
)

var (
	ErrNoSurface   = errors.New("engine: surface is required")
	ErrNoScheduler = errors.New("engine: scheduler is required")
	ErrNoAssets    = errors.New("engine: asset source is required")
	ErrBadOptions  = errors.New("engine: invalid options")
)

// Surface is the drawing backend.
type Surface interface {
	Size() (w, h int)
	Resize(w, h int) error
	Render(stage *scene.Node) error
	Close() error
}

type Options struct {
	TileSize      int
	MinScale      float64
	MaxScale      float64
	MaxZoom       int
	FrameInterval time.Duration
	ResizeWait    time.Duration
	ResizeMaxWait time.Duration
}

func DefaultOptions() Options {
	return Options{
		TileSize:      512,
		MinScale:      0.7,
		MaxScale:      1.4,
		MaxZoom:       19,
		FrameInterval: 16 * time.Millisecond,
		ResizeWait:    200 * time.Millisecond,
		ResizeMaxWait: 400 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TileSize == 0 {
		o.TileSize = d.TileSize
	}
	if o.MinScale == 0 {
		o.MinScale = d.MinScale
	}
	if o.MaxScale == 0 {
		o.MaxScale = d.MaxScale
	}
	if o.MaxZoom == 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.FrameInterval == 0 {
		o.FrameInterval = d.FrameInterval
	}
	if o.ResizeWait == 0 {
		o.ResizeWait = d.ResizeWait
	}
	if o.ResizeMaxWait == 0 {
		o.ResizeMaxWait = d.ResizeMaxWait
	}
	return o
}

// valid requires MaxScale to be at least twice MinScale so a level change
// lands back inside the range.
func (o Options) valid() bool {
	return o.TileSize > 0 && o.MinScale > 0 && o.MaxScale >= 2*o.MinScale && o.MaxZoom > 0
}

type Params struct {
	Surface   Surface
	Scheduler eventloop.Scheduler
	Assets    pyramid.AssetSource
	Options   Options
	// Position is the initial centre; nil means compose.DefaultPosition.
	Position *mercator.Position

	OnClick   func(interaction.ClickEvent)
	OnContext func(interaction.ClickEvent)
	// OnMapMove is called after every pan or zoom.
	OnMapMove func(mercator.Position)

	Logger *zap.Logger
}

// Map owns the scene, the layer stack and the render loop. Every method must
// be called on the scheduler's loop.
type Map struct {
	surface   Surface
	sched     eventloop.Scheduler
	stage     *scene.Node
	layers    *compose.Manager
	clickable *interaction.Clickable
	resize    *eventloop.Debouncer
	frame     eventloop.Timer
	opts      Options
	budget    float64
	frames    int
	onMove    func(mercator.Position)
	log       *zap.Logger
	destroyed bool
}

func New(p Params) (*Map, error) {
	switch {
	case p.Surface == nil:
		return nil, ErrNoSurface
	case p.Scheduler == nil:
		return nil, ErrNoScheduler
	case p.Assets == nil:
		return nil, ErrNoAssets
	}
	opts := p.Options.withDefaults()
	if !opts.valid() {
		return nil, ErrBadOptions
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := &Map{
		surface: p.Surface,
		sched:   p.Scheduler,
		stage:   scene.NewGroup(),
		resize:  eventloop.NewDebouncer(p.Scheduler, opts.ResizeWait, opts.ResizeMaxWait),
		opts:    opts,
		onMove:  p.OnMapMove,
		log:     log,
	}
	w, h := p.Surface.Size()
	renderer := pyramid.NewContentRenderer(p.Assets, opts.TileSize, log)
	m.layers = compose.NewManager(m.stage, w, h, pyramid.Options{
		TileSize: opts.TileSize,
		MinScale: opts.MinScale,
		MaxScale: opts.MaxScale,
		MaxZoom:  opts.MaxZoom,
	}, renderer, p.Scheduler, log)
	if p.Position != nil {
		m.layers.SetPosition(*p.Position)
	}
	m.clickable = interaction.NewClickable(p.Scheduler, m.stage.HitTest, m.layers.LatLongAt)
	m.clickable.OnClick = p.OnClick
	m.clickable.OnContext = p.OnContext

	m.scheduleFrame()
	log.Info("map created",
		zap.Int("width", w),
		zap.Int("height", h),
		zap.Int("tile_size", opts.TileSize),
	)
	return m, nil
}

// AddLayer puts l on top of the stack and returns it with its ID set.
func (m *Map) AddLayer(l *layer.Layer) *layer.Layer { return m.layers.AddLayer(l) }

func (m *Map) InsertLayer(l *layer.Layer, idx int) (*layer.Layer, error) {
	return m.layers.InsertLayer(l, idx)
}

func (m *Map) RemoveLayer(id int) bool { return m.layers.RemoveLayer(id) }

func (m *Map) Layers() []*layer.Layer { return m.layers.Layers() }

func (m *Map) SetPosition(pos mercator.Position) {
	m.layers.SetPosition(pos)
	m.budget = 0
}

func (m *Map) Position() mercator.Position { return m.layers.Position() }

func (m *Map) LatLongAt(x, y float64) (lat, long float64) { return m.layers.LatLongAt(x, y) }

func (m *Map) PanPx(v gg.Vec2) {
	if m.destroyed {
		return
	}
	m.layers.PanPx(v)
	m.spend(panCost)
}

func (m *Map) Zoom(dz float64, origin gg.Vec2) {
	if m.destroyed {
		return
	}
	m.layers.Zoom(dz, origin)
	m.spend(zoomCost)
}

// spend charges the refresh budget and refreshes tiles once it exceeds a
// tile's width.
func (m *Map) spend(cost float64) {
	m.budget += cost
	if m.budget > float64(m.opts.TileSize) {
		m.budget = 0
		m.layers.Refresh()
	}
	if m.onMove != nil {
		m.onMove(m.Position())
	}
}

// RevalidateTile refreshes the content of a tile and its ancestors.
func (m *Map) RevalidateTile(key mercator.Key) { m.layers.RevalidateTile(key) }

// Resize resizes the surface and the layers once a burst of calls settles.
func (m *Map) Resize(w, h int) {
	if m.destroyed {
		return
	}
	m.resize.Call(func() {
		if err := m.surface.Resize(w, h); err != nil {
			m.log.Warn("resize failed", zap.Int("width", w), zap.Int("height", h), zap.Error(err))
			return
		}
		m.layers.Resize(w, h)
		m.log.Debug("map resized", zap.Int("width", w), zap.Int("height", h))
	})
}

// Clickable is the click and long-press detector for map objects.
func (m *Map) Clickable() *interaction.Clickable { return m.clickable }

// Stage is the root of the scene graph.
func (m *Map) Stage() *scene.Node { return m.stage }

// Frames is the number of frames the render loop has drawn.
func (m *Map) Frames() int { return m.frames }

// RenderNow draws a frame immediately.
func (m *Map) RenderNow() error {
	if m.destroyed {
		return nil
	}
	m.frames++
	return m.surface.Render(m.stage)
}

func (m *Map) scheduleFrame() {
	m.frame = m.sched.AfterFunc(m.opts.FrameInterval, func() {
		if m.destroyed {
			return
		}
		if err := m.RenderNow(); err != nil {
			m.log.Warn("render failed", zap.Error(err))
		}
		m.scheduleFrame()
	})
}

// Destroy stops the render loop, drops every layer and closes the surface.
// Calling it again is a no-op.
func (m *Map) Destroy() error {
	if m.destroyed {
		return nil
	}
	m.destroyed = true
	m.resize.Cancel()
	if m.frame != nil {
		m.frame.Stop()
	}
	m.clickable.Dispose()
	m.layers.Destroy()
	m.stage.Destroy()
	m.log.Info("map destroyed", zap.Int("frames", m.frames))
	return m.surface.Close()
}
