// Package compose keeps a stack of layers spatially in sync.
package compose

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gg"
	"go.uber.org/zap"

	"slippy/internal/eventloop"
	"slippy/internal/layer"
	"slippy/internal/mercator"
	"slippy/internal/pyramid"
	"slippy/internal/scene"
)

// ErrLayerIndex is returned when inserting past the end of the stack.
var ErrLayerIndex = errors.New("layer index out of range")

// DefaultPosition is used until a position is set or a layer exists.
var DefaultPosition = mercator.Position{Lat: 0, Long: 0, Zoom: 3}

type entry struct {
	layer   *layer.Layer
	pyramid *pyramid.Pyramid
	root    *scene.Node
}

// Manager owns one pyramid per layer. Layers earlier in the stack draw below
// later ones.
type Manager struct {
	stage    *scene.Node
	entries  []*entry
	nextID   int
	initial  mercator.Position
	width    int
	height   int
	opts     pyramid.Options
	renderer pyramid.Renderer
	sched    eventloop.Scheduler
	log      *zap.Logger
}

func NewManager(stage *scene.Node, w, h int, opts pyramid.Options, r pyramid.Renderer, sched eventloop.Scheduler, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		stage:    stage,
		initial:  DefaultPosition,
		width:    w,
		height:   h,
		opts:     opts,
		renderer: r,
		sched:    sched,
		log:      log,
	}
}

// AddLayer appends l to the top of the stack.
func (m *Manager) AddLayer(l *layer.Layer) *layer.Layer {
	l, _ = m.InsertLayer(l, len(m.entries))
	return l
}

// InsertLayer assigns l a new ID and inserts it at idx, seeded at the
// current position.
func (m *Manager) InsertLayer(l *layer.Layer, idx int) (*layer.Layer, error) {
	if idx < 0 || idx > len(m.entries) {
		return nil, fmt.Errorf("insert layer at %d of %d: %w", idx, len(m.entries), ErrLayerIndex)
	}
	pos := m.Position()
	m.nextID++
	l.ID = m.nextID

	root := scene.NewGroup()
	m.stage.AddChildAt(root, idx)
	p := pyramid.New(l, root, m.width, m.height, m.opts, m.renderer, m.sched, m.log)
	p.SetPosition(pos)

	e := &entry{layer: l, pyramid: p, root: root}
	m.entries = append(m.entries, nil)
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = e

	m.log.Info("layer added",
		zap.Int("layer", l.ID),
		zap.Stringer("kind", l.Kind),
		zap.String("name", l.Name),
		zap.Int("index", idx),
	)
	return l, nil
}

// RemoveLayer drops the layer with the given id.
func (m *Manager) RemoveLayer(id int) bool {
	for i, e := range m.entries {
		if e.layer.ID != id {
			continue
		}
		e.pyramid.Destroy()
		e.root.Destroy()
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
		return true
	}
	return false
}

// Layers returns the stack from bottom to top.
func (m *Manager) Layers() []*layer.Layer {
	out := make([]*layer.Layer, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.layer
	}
	return out
}

// Pyramid returns the pyramid backing the layer with the given id.
func (m *Manager) Pyramid(id int) (*pyramid.Pyramid, bool) {
	for _, e := range m.entries {
		if e.layer.ID == id {
			return e.pyramid, true
		}
	}
	return nil, false
}

func (m *Manager) PanPx(v gg.Vec2) {
	for _, e := range m.entries {
		e.pyramid.PanPx(v)
	}
}

func (m *Manager) Zoom(dz float64, origin gg.Vec2) {
	for _, e := range m.entries {
		e.pyramid.Zoom(dz, origin)
	}
}

func (m *Manager) SetPosition(pos mercator.Position) {
	if len(m.entries) == 0 {
		m.initial = pos
		return
	}
	for _, e := range m.entries {
		e.pyramid.SetPosition(pos)
	}
}

func (m *Manager) Resize(w, h int) {
	m.width, m.height = w, h
	for _, e := range m.entries {
		e.pyramid.Resize(w, h)
	}
}

// Refresh recomputes the visible tiles of every layer.
func (m *Manager) Refresh() {
	for _, e := range m.entries {
		e.pyramid.RefreshTiles()
	}
}

// Position is the base layer's centre, or the initial position when there
// are no layers.
func (m *Manager) Position() mercator.Position {
	if len(m.entries) == 0 {
		return m.initial
	}
	return m.entries[0].pyramid.Position()
}

// LatLongAt resolves a screen point against the base layer.
func (m *Manager) LatLongAt(x, y float64) (lat, long float64) {
	if len(m.entries) == 0 {
		return m.initial.Lat, m.initial.Long
	}
	return m.entries[0].pyramid.LatLongAt(x, y)
}

// RevalidateTile runs every layer's revalidation hook for key, then reloads
// the tile and its ancestors.
func (m *Manager) RevalidateTile(key mercator.Key) {
	for _, e := range m.entries {
		e := e
		if e.layer.Revalidate == nil {
			e.pyramid.RefreshTile(key)
			continue
		}
		m.sched.Go(func() {
			err := e.layer.Revalidate(context.Background(), key)
			m.sched.Post(func() {
				if err != nil {
					m.log.Warn("revalidate failed",
						zap.Int("layer", e.layer.ID),
						zap.Stringer("tile", mercator.KeyToTile(key)),
						zap.Error(err),
					)
				}
				if _, ok := m.Pyramid(e.layer.ID); ok {
					e.pyramid.RefreshTile(key)
				}
			})
		})
	}
}

// Destroy tears down every layer.
func (m *Manager) Destroy() {
	for _, e := range m.entries {
		e.pyramid.Destroy()
		e.root.Destroy()
	}
	m.entries = nil
}
