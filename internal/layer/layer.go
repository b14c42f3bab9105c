// Package layer defines the tile content sources a map is built from.
package layer

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"slippy/internal/mercator"
)

// Kind discriminates the closed set of layer variants.
type Kind int

const (
	KindRaster Kind = iota + 1
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindVector:
		return "vector"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

var ErrNoProvider = errors.New("vector layer has no point provider")

// Point is a feature positioned in tile-local pixels on a 256 pixel grid.
type Point struct {
	Coordinates orb.Point
	Properties  map[string]any
}

// PointStyle is how a point is drawn: an image marker when Image is set,
// otherwise a filled circle.
type PointStyle struct {
	Image  string
	Color  color.Color
	Radius float64
}

type StyleFunc func(Point) PointStyle

// PointProvider returns the points that fall inside a tile.
type PointProvider interface {
	Points(ctx context.Context, tile mercator.Tile) ([]Point, error)
}

type ProviderFunc func(ctx context.Context, tile mercator.Tile) ([]Point, error)

func (f ProviderFunc) Points(ctx context.Context, tile mercator.Tile) ([]Point, error) {
	return f(ctx, tile)
}

type RasterContent struct {
	Image          string
	ID             string
	LayerID        int
	PrimaryClick   bool
	SecondaryClick bool
}

type VectorContent struct {
	Tile    mercator.Tile
	Points  []Point
	LayerID int
}

// Content is the resolved content of one tile. Exactly the field matching
// Kind is meaningful.
type Content struct {
	Kind   Kind
	Raster RasterContent
	Vector VectorContent
}

// Layer is a tile content source. ID is assigned when the layer is added to
// a map.
type Layer struct {
	Kind        Kind
	ID          int
	Name        string
	Interactive bool

	URLTemplate string

	Provider PointProvider
	Style    StyleFunc

	// Revalidate asks the upstream source to refresh the content behind a
	// tile key. Optional.
	Revalidate func(ctx context.Context, key mercator.Key) error
}

// NewRaster creates a layer whose tiles are images addressed by a URL
// template containing {x}, {y} and {z}.
func NewRaster(urlTemplate string) *Layer {
	return &Layer{Kind: KindRaster, URLTemplate: urlTemplate}
}

// NewVector creates a layer of styled points.
func NewVector(provider PointProvider, style StyleFunc) *Layer {
	return &Layer{Kind: KindVector, Provider: provider, Style: style}
}

// TileURL expands the template for a normalized tile.
func TileURL(template string, t mercator.Tile) string {
	r := strings.NewReplacer(
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{z}", strconv.Itoa(t.Z),
	)
	return r.Replace(template)
}

// GetTile resolves the content of a normalized tile.
func (l *Layer) GetTile(ctx context.Context, t mercator.Tile) (Content, error) {
	switch l.Kind {
	case KindRaster:
		return Content{
			Kind: KindRaster,
			Raster: RasterContent{
				Image:        TileURL(l.URLTemplate, t),
				ID:           fmt.Sprintf("%d/%d/%d", t.X, t.Y, t.Z),
				LayerID:      l.ID,
				PrimaryClick: l.Interactive,
			},
		}, nil
	case KindVector:
		if l.Provider == nil {
			return Content{}, ErrNoProvider
		}
		pts, err := l.Provider.Points(ctx, t)
		if err != nil {
			return Content{}, fmt.Errorf("points for %s: %w", t, err)
		}
		return Content{
			Kind:   KindVector,
			Vector: VectorContent{Tile: t, Points: pts, LayerID: l.ID},
		}, nil
	}
	return Content{Kind: l.Kind}, nil
}

// StyleOf applies the layer style, falling back to a small marker.
func (l *Layer) StyleOf(p Point) PointStyle {
	if l.Style == nil {
		return DefaultStyle(p)
	}
	return l.Style(p)
}

func DefaultStyle(Point) PointStyle {
	return PointStyle{Color: color.RGBA{R: 0xE1, G: 0x1D, B: 0x48, A: 0xFF}, Radius: 6}
}
