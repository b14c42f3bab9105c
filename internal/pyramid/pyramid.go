// Package pyramid keeps the tiles of one layer materialized for a viewport and
// moves them between zoom levels.
package pyramid

import (
	"context"
	"math"
	"sort"

	"github.com/gogpu/gg"
	"go.uber.org/zap"

	"slippy/internal/eventloop"
	"slippy/internal/layer"
	"slippy/internal/mercator"
	"slippy/internal/scene"
)

const (
	// edgeBuffer is added to the visible radius, in tiles.
	edgeBuffer = 2
	// MinLevel is the lowest level zooming out can reach.
	MinLevel = 3
)

type Options struct {
	TileSize int
	MinScale float64
	MaxScale float64
	MaxZoom  int
}

func DefaultOptions() Options {
	return Options{TileSize: 512, MinScale: 0.7, MaxScale: 1.4, MaxZoom: 19}
}

// Renderer turns tile content into a detached scene node.
type Renderer interface {
	Render(ctx context.Context, l *layer.Layer, c layer.Content) (*scene.Node, error)
}

// Pyramid owns the SceneTiles of a single layer. All methods must be called
// on the scheduler's loop.
type Pyramid struct {
	layer    *layer.Layer
	root     *scene.Node
	tiles    map[mercator.Tile]*SceneTile
	anchor   *SceneTile
	seq      uint64
	z        int
	width    float64
	height   float64
	opts     Options
	renderer Renderer
	sched    eventloop.Scheduler
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates an empty pyramid drawing under parent. SetPosition must run
// before any other operation.
func New(l *layer.Layer, parent *scene.Node, w, h int, opts Options, r Renderer, sched eventloop.Scheduler, log *zap.Logger) *Pyramid {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pyramid{
		layer:    l,
		root:     scene.NewGroup(),
		tiles:    make(map[mercator.Tile]*SceneTile),
		width:    float64(w),
		height:   float64(h),
		opts:     opts,
		renderer: r,
		sched:    sched,
		log:      log.With(zap.Int("layer", l.ID)),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.root.Scale = opts.MinScale
	parent.AddChild(p.root)
	return p
}

func (p *Pyramid) tileSize() float64 { return float64(p.opts.TileSize) }

// Scale is the current display scale of a tile relative to its pixel size.
func (p *Pyramid) Scale() float64 { return p.root.Scale }

// Level is the current integer zoom level.
func (p *Pyramid) Level() int { return p.z }

func (p *Pyramid) Len() int { return len(p.tiles) }

// Anchor returns the positioning tile.
func (p *Pyramid) Anchor() *SceneTile { return p.anchor }

// Tile returns the materialized tile at coord.
func (p *Pyramid) Tile(coord mercator.Tile) (*SceneTile, bool) {
	st, ok := p.tiles[coord]
	return st, ok
}

// Tiles lists the materialized tiles in creation order.
func (p *Pyramid) Tiles() []*SceneTile { return p.ordered() }

func (p *Pyramid) ordered() []*SceneTile {
	out := make([]*SceneTile, 0, len(p.tiles))
	for _, st := range p.tiles {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// SetPosition rebuilds the pyramid around pos.
func (p *Pyramid) SetPosition(pos mercator.Position) {
	lat := mercator.ClampLat(pos.Lat)
	zoom := math.Max(pos.Zoom, 0)
	p.z = int(math.Floor(zoom))
	if p.z > p.opts.MaxZoom {
		p.z, zoom = p.opts.MaxZoom, float64(p.opts.MaxZoom)
	}
	s := p.opts.MinScale * (1 + zoom - math.Floor(zoom))

	mx := mercator.MercatorX(pos.Long, zoom)
	my := mercator.MercatorY(lat, zoom)
	center := mercator.Point{X: mx, Y: my, Z: p.z}.Floor()

	p.cullAll()
	p.root.Scale = s
	st := p.add(center)
	size := p.tileSize() * s
	gx := p.width/2 - (mx-math.Floor(mx))*size
	gy := p.height/2 - (my-math.Floor(my))*size
	st.Node.X, st.Node.Y = p.root.ToLocal(gx, gy)
	p.anchor = st
	p.request(st)

	p.RefreshTiles()
}

// RefreshTiles materializes every tile near the viewport and culls the rest.
func (p *Pyramid) RefreshTiles() {
	if p.anchor == nil {
		return
	}
	size := p.tileSize() * p.root.Scale
	r := int(math.Floor(math.Hypot(p.height, p.width)/2/size)) + edgeBuffer
	center := p.MercatorCenter().Floor()

	type candidate struct {
		tile mercator.Tile
		dist int
	}
	var visible []candidate
	for i := -r; i < r; i++ {
		for j := -r; j < r; j++ {
			if math.Hypot(float64(i), float64(j)) >= float64(r) {
				continue
			}
			t := mercator.Tile{X: center.X + i, Y: center.Y + j, Z: p.z}
			if !t.IsYValid() {
				continue
			}
			visible = append(visible, candidate{t, abs(i) + abs(j)})
		}
	}
	sort.SliceStable(visible, func(a, b int) bool { return visible[a].dist > visible[b].dist })

	keep := make(map[mercator.Tile]struct{}, len(visible))
	created, retried := 0, 0
	for _, c := range visible {
		keep[c.tile] = struct{}{}
		if st, ok := p.tiles[c.tile]; ok {
			if st.failed {
				st.failed = false
				p.request(st)
				retried++
			}
			continue
		}
		st := p.add(c.tile)
		p.place(st)
		p.request(st)
		created++
	}
	culled := p.cull(func(st *SceneTile) bool {
		_, ok := keep[st.Coord]
		return !ok
	})
	if created > 0 || retried > 0 || culled > 0 {
		p.log.Debug("tiles refreshed",
			zap.Int("level", p.z),
			zap.Int("created", created),
			zap.Int("retried", retried),
			zap.Int("culled", culled),
			zap.Int("tiles", len(p.tiles)),
		)
	}
}

// PanPx moves the map by v screen pixels. Vertical movement stops at the
// poles; horizontal movement is unbounded.
func (p *Pyramid) PanPx(v gg.Vec2) {
	if p.anchor == nil {
		return
	}
	top, bottom := p.mapEdges()
	if v.Y > 0 && top+v.Y > 0 {
		v.Y = math.Max(0, -top)
	}
	if v.Y < 0 && bottom+v.Y < p.height {
		v.Y = math.Min(0, p.height-bottom)
	}
	p.translate(v.Div(p.root.Scale))
}

// Zoom scales the map by 1+dz about origin, changing level when the scale
// leaves [MinScale, MaxScale].
func (p *Pyramid) Zoom(dz float64, origin gg.Vec2) {
	if p.anchor == nil {
		return
	}
	ns := p.root.Scale * (1 + dz)
	if dz < 0 && p.z <= MinLevel && ns < p.opts.MinScale {
		return
	}
	p.root.Scale = ns

	t := origin.Mul(-dz / ns)
	top, bottom := p.mapEdges()
	switch {
	case top+t.Y*ns > 0:
		t.Y = -top / ns
	case bottom+t.Y*ns < p.height:
		t.Y = (p.height - bottom) / ns
	}
	p.translate(t)

	switch {
	case ns < p.opts.MinScale && p.z > 0:
		p.DecreaseTileZ()
	case ns > p.opts.MaxScale && p.z < p.opts.MaxZoom:
		p.IncreaseTileZ()
	}
	p.RefreshTiles()
}

// IncreaseTileZ replaces every tile with its four children.
func (p *Pyramid) IncreaseTileZ() {
	if p.anchor == nil {
		return
	}
	ts := p.tileSize()
	ax, ay := p.anchor.Node.GlobalPosition()
	a := p.anchor.Coord

	var children []*SceneTile
	seen := make(map[mercator.Tile]struct{})
	for _, st := range p.ordered() {
		for _, c := range st.split(ts) {
			if _, dup := seen[c.Coord]; dup {
				c.destroy()
				continue
			}
			seen[c.Coord] = struct{}{}
			children = append(children, c)
		}
	}

	p.cullAll()
	p.z++
	p.root.Scale /= 2
	for _, c := range children {
		p.insert(c)
	}
	anchor, ok := p.tiles[mercator.Tile{X: 2 * a.X, Y: 2 * a.Y, Z: p.z}]
	if !ok {
		anchor = p.add(mercator.Tile{X: 2 * a.X, Y: 2 * a.Y, Z: p.z})
	}
	anchor.Node.X, anchor.Node.Y = p.root.ToLocal(ax, ay)
	p.anchor = anchor
	for _, c := range p.ordered() {
		if c != anchor {
			p.place(c)
		}
		p.request(c)
	}
	p.log.Debug("level increased", zap.Int("level", p.z), zap.Int("tiles", len(p.tiles)))
}

// DecreaseTileZ replaces tiles with their parents, compositing the children's
// images into each parent until its own content arrives.
func (p *Pyramid) DecreaseTileZ() {
	if p.anchor == nil || p.z == 0 {
		return
	}
	ts := p.tileSize()
	s := p.root.Scale
	a := p.anchor.Coord
	ax, ay := p.anchor.Node.GlobalPosition()
	ax -= float64(a.X&1) * ts * s
	ay -= float64(a.Y&1) * ts * s
	center := p.MercatorCenter()
	cx, cy := math.Floor(center.X/2), math.Floor(center.Y/2)

	var parents []*SceneTile
	byCoord := make(map[mercator.Tile]*SceneTile)
	for _, st := range p.ordered() {
		pc, ok := st.Coord.Parent()
		if !ok {
			continue
		}
		parent, ok := byCoord[pc]
		if !ok {
			parent = newSceneTile(pc)
			byCoord[pc] = parent
			parents = append(parents, parent)
		}
		parent.absorb(st, ts)
	}

	p.cullAll()
	p.z--
	p.root.Scale = s * 2
	for _, parent := range parents {
		p.insert(parent)
	}
	pa, _ := a.Parent()
	anchor, ok := p.tiles[pa]
	if !ok {
		anchor = p.add(pa)
	}
	anchor.Node.X, anchor.Node.Y = p.root.ToLocal(ax, ay)
	p.anchor = anchor

	ordered := p.ordered()
	dist := func(st *SceneTile) float64 {
		return math.Hypot(float64(st.Coord.X)-cx, float64(st.Coord.Y)-cy)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return dist(ordered[i]) > dist(ordered[j]) })
	for _, st := range ordered {
		if st != anchor {
			p.place(st)
		}
		p.request(st)
	}
	p.log.Debug("level decreased", zap.Int("level", p.z), zap.Int("tiles", len(p.tiles)))
}

// RefreshTile requests fresh content for the tile at key and every tile
// showing one of its ancestors.
func (p *Pyramid) RefreshTile(key mercator.Key) {
	keys := map[mercator.Key]struct{}{key: {}}
	for _, k := range mercator.ParentKeys(key) {
		keys[k] = struct{}{}
	}
	for _, st := range p.ordered() {
		if _, ok := keys[st.Display.Key()]; ok {
			p.request(st)
		}
	}
}

// Resize updates the viewport size and refreshes the visible set.
func (p *Pyramid) Resize(w, h int) {
	p.width, p.height = float64(w), float64(h)
	p.RefreshTiles()
}

// MercatorCenter is the fractional tile coordinate at the viewport centre.
func (p *Pyramid) MercatorCenter() mercator.Point {
	return p.MercatorAtGlobal(p.width/2, p.height/2)
}

// MercatorAtGlobal is the fractional tile coordinate under a screen point.
func (p *Pyramid) MercatorAtGlobal(x, y float64) mercator.Point {
	if p.anchor == nil {
		return mercator.Point{Z: p.z}
	}
	size := p.tileSize() * p.root.Scale
	ax, ay := p.anchor.Node.GlobalPosition()
	return mercator.Point{
		X: float64(p.anchor.Coord.X) + (x-ax)/size,
		Y: float64(p.anchor.Coord.Y) + (y-ay)/size,
		Z: p.z,
	}
}

// LatLongAt resolves a screen point to geographic degrees.
func (p *Pyramid) LatLongAt(x, y float64) (lat, long float64) {
	return p.MercatorAtGlobal(x, y).LatLong()
}

// Position is the geographic centre with the fractional zoom implied by the
// current scale.
func (p *Pyramid) Position() mercator.Position {
	lat, long := p.MercatorCenter().LatLong()
	return mercator.Position{
		Lat:  lat,
		Long: long,
		Zoom: float64(p.z) + (p.root.Scale-p.opts.MinScale)/p.opts.MinScale,
	}
}

// Destroy culls every tile, detaches the pyramid and drops pending fetches.
func (p *Pyramid) Destroy() {
	p.cancel()
	p.cullAll()
	p.root.Destroy()
}

// mapEdges returns the global y of the top and bottom edge of the world.
func (p *Pyramid) mapEdges() (top, bottom float64) {
	size := p.tileSize() * p.root.Scale
	_, ay := p.anchor.Node.GlobalPosition()
	top = ay - float64(p.anchor.Coord.Y)*size
	bottom = top + math.Exp2(float64(p.z))*size
	return top, bottom
}

func (p *Pyramid) translate(v gg.Vec2) {
	for _, st := range p.tiles {
		st.Node.X += v.X
		st.Node.Y += v.Y
	}
}

func (p *Pyramid) add(coord mercator.Tile) *SceneTile {
	st := newSceneTile(coord)
	p.insert(st)
	return st
}

func (p *Pyramid) insert(st *SceneTile) {
	p.seq++
	st.seq = p.seq
	p.tiles[st.Coord] = st
	p.root.AddChild(st.Node)
}

// place positions st relative to the anchor.
func (p *Pyramid) place(st *SceneTile) {
	ts := p.tileSize()
	st.Node.X = p.anchor.Node.X + float64(st.Coord.X-p.anchor.Coord.X)*ts
	st.Node.Y = p.anchor.Node.Y + float64(st.Coord.Y-p.anchor.Coord.Y)*ts
}

func (p *Pyramid) cullAll() {
	p.cull(func(*SceneTile) bool { return true })
}

func (p *Pyramid) cull(drop func(*SceneTile) bool) int {
	n := 0
	for coord, st := range p.tiles {
		if !drop(st) {
			continue
		}
		delete(p.tiles, coord)
		st.destroy()
		n++
	}
	if p.anchor != nil && p.tiles[p.anchor.Coord] != p.anchor {
		p.anchor = nil
		for _, st := range p.tiles {
			if p.anchor == nil || st.seq < p.anchor.seq {
				p.anchor = st
			}
		}
	}
	return n
}

// request fetches content for st off the loop and applies it on return.
func (p *Pyramid) request(st *SceneTile) {
	ctx, l, r := p.ctx, p.layer, p.renderer
	p.sched.Go(func() {
		c, err := l.GetTile(ctx, st.Display)
		var n *scene.Node
		if err == nil {
			n, err = r.Render(ctx, l, c)
		}
		p.sched.Post(func() { p.apply(st, n, err) })
	})
}

func (p *Pyramid) apply(st *SceneTile, n *scene.Node, err error) {
	if p.tiles[st.Coord] != st {
		if n != nil {
			n.Destroy()
		}
		return
	}
	if err != nil {
		st.failed = true
		p.log.Warn("tile content failed", zap.Stringer("tile", st.Display), zap.Error(err))
		return
	}
	st.failed = false
	st.setContent(n)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
