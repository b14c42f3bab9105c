package pyramid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"slippy/internal/layer"
	"slippy/internal/scene"
)

// ErrUnknownLayerKind is returned for a layer variant the renderer cannot draw.
var ErrUnknownLayerKind = errors.New("unknown layer kind")

// AssetSource resolves image URLs to loaded assets.
type AssetSource interface {
	Get(ctx context.Context, url string) (*scene.Asset, error)
}

// ContentRenderer turns resolved tile content into scene nodes. It is safe to
// call from background work; the nodes it returns are detached.
type ContentRenderer struct {
	assets      AssetSource
	tileSize    float64
	scaleFactor float64
	log         *zap.Logger
}

func NewContentRenderer(assets AssetSource, tileSize int, log *zap.Logger) *ContentRenderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContentRenderer{
		assets:      assets,
		tileSize:    float64(tileSize),
		scaleFactor: float64(tileSize) / 256,
		log:         log,
	}
}

func (r *ContentRenderer) Render(ctx context.Context, l *layer.Layer, c layer.Content) (*scene.Node, error) {
	switch l.Kind {
	case layer.KindRaster:
		return r.raster(ctx, c.Raster)
	case layer.KindVector:
		return r.points(ctx, l, c.Vector)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownLayerKind, l.Kind)
}

func (r *ContentRenderer) raster(ctx context.Context, c layer.RasterContent) (*scene.Node, error) {
	asset, err := r.assets.Get(ctx, c.Image)
	if err != nil {
		return nil, err
	}
	n := scene.NewImage(asset, r.tileSize, r.tileSize)
	n.Interactive = c.PrimaryClick || c.SecondaryClick
	n.Properties = c.ID
	n.LayerID = c.LayerID
	return n, nil
}

// points draws every styled point. It fails only when markers were wanted
// and none could be drawn, so the tile is retried.
func (r *ContentRenderer) points(ctx context.Context, l *layer.Layer, c layer.VectorContent) (*scene.Node, error) {
	group := scene.NewGroup()
	var failed int
	var firstErr error
	for _, p := range c.Points {
		style := l.StyleOf(p)
		x := p.Coordinates[0] * r.scaleFactor
		y := p.Coordinates[1] * r.scaleFactor

		var n *scene.Node
		switch {
		case style.Image != "":
			asset, err := r.assets.Get(ctx, style.Image)
			if err != nil {
				r.log.Warn("marker image unavailable",
					zap.Stringer("tile", c.Tile),
					zap.String("image", style.Image),
					zap.Error(err),
				)
				if failed == 0 {
					firstErr = err
				}
				failed++
				continue
			}
			w, h := float64(asset.Width), float64(asset.Height)
			n = scene.NewImage(asset, w, h)
			n.X, n.Y = x-w/2, y-h
		case style.Radius > 0:
			col := style.Color
			if col == nil {
				col = layer.DefaultStyle(p).Color
			}
			n = scene.NewCircle(style.Radius, col)
			n.X, n.Y = x, y
		default:
			continue
		}
		if p.Properties["id"] != nil {
			n.Interactive = true
		}
		n.Properties = p.Properties
		n.LayerID = c.LayerID
		group.AddChild(n)
	}
	if failed > 0 && group.Len() == 0 {
		group.Destroy()
		return nil, fmt.Errorf("%d marker images unavailable for %s: %w", failed, c.Tile, firstErr)
	}
	return group, nil
}
