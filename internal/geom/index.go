package geom

import (
	"context"
	"math"
	"sync"

	"github.com/paulmach/orb"

	"slippy/internal/layer"
	"slippy/internal/mercator"
)

// tilePixels is the pixel grid point coordinates are expressed in.
const tilePixels = 256

// PointIndex serves a collection to a vector layer, bucketing features by
// tile on first use of each zoom level. It is safe for concurrent use.
type PointIndex struct {
	features []Feature

	mu      sync.Mutex
	buckets map[int]map[mercator.Tile][]layer.Point
}

func NewPointIndex(collections ...*Collection) *PointIndex {
	idx := &PointIndex{buckets: make(map[int]map[mercator.Tile][]layer.Point)}
	for _, c := range collections {
		idx.features = append(idx.features, c.Features...)
	}
	return idx
}

func (idx *PointIndex) Len() int { return len(idx.features) }

// Points returns the features inside t in tile-local pixels.
func (idx *PointIndex) Points(_ context.Context, t mercator.Tile) ([]layer.Point, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	b, ok := idx.buckets[t.Z]
	if !ok {
		b = idx.bucket(t.Z)
		idx.buckets[t.Z] = b
	}
	return b[t.Normalize()], nil
}

func (idx *PointIndex) bucket(z int) map[mercator.Tile][]layer.Point {
	zoom := float64(z)
	out := make(map[mercator.Tile][]layer.Point)
	for _, f := range idx.features {
		lat := mercator.ClampLat(f.Point.Lat())
		mx := mercator.MercatorX(f.Point.Lon(), zoom)
		my := mercator.MercatorY(lat, zoom)
		t := mercator.Tile{X: int(math.Floor(mx)), Y: int(math.Floor(my)), Z: z}.Normalize()
		out[t] = append(out[t], layer.Point{
			Coordinates: orb.Point{
				(mx - math.Floor(mx)) * tilePixels,
				(my - math.Floor(my)) * tilePixels,
			},
			Properties: f.Properties,
		})
	}
	return out
}
