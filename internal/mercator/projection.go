package mercator

import (
	"math"

	"github.com/paulmach/orb"
)

// EarthRadius is the EPSG:3857 sphere radius in meters.
const EarthRadius = 6378137.0

// MaxLatitude is the latitude at which the square Web Mercator world ends.
const MaxLatitude = 85.05112877980659

const worldSpan = 2 * math.Pi * EarthRadius

func LonToX3857(lon float64) float64 {
	return EarthRadius * lon * math.Pi / 180
}

func LatToY3857(lat float64) float64 {
	latRad := lat * math.Pi / 180
	return EarthRadius * math.Log(math.Tan(math.Pi/4+latRad/2))
}

func X3857ToLon(x float64) float64 {
	return x / EarthRadius * 180 / math.Pi
}

func Y3857ToLat(y float64) float64 {
	return (2*math.Atan(math.Exp(y/EarthRadius)) - math.Pi/2) * 180 / math.Pi
}

// TileToWebMercator returns the EPSG:3857 meters of a tile's top-left corner.
// Fractional tile coordinates are accepted.
func TileToWebMercator(x, y float64, z int) orb.Point {
	span := worldSpan / math.Exp2(float64(z))
	return orb.Point{x*span - worldSpan/2, -(y*span - worldSpan/2)}
}

// WebMercatorToTile is the inverse of TileToWebMercator.
func WebMercatorToTile(p orb.Point, z int) Point {
	span := worldSpan / math.Exp2(float64(z))
	return Point{
		X: (p[0] + worldSpan/2) / span,
		Y: -(p[1] - worldSpan/2) / span,
		Z: z,
	}
}

// MercatorX projects a longitude into fractional tile space at floor(zoom).
func MercatorX(lon, zoom float64) float64 {
	lonRad := lon * math.Pi / 180
	return math.Exp2(math.Floor(zoom)) * (lonRad + math.Pi) / (2 * math.Pi)
}

// MercatorY projects a latitude into fractional tile space at floor(zoom).
func MercatorY(lat, zoom float64) float64 {
	latRad := lat * math.Pi / 180
	return math.Exp2(math.Floor(zoom)) * (math.Pi - math.Log(math.Tan(math.Pi/4+latRad/2))) / (2 * math.Pi)
}

func MercatorTileX(lon, zoom float64) int {
	return int(math.Floor(MercatorX(lon, zoom)))
}

func MercatorTileY(lat, zoom float64) int {
	return int(math.Floor(MercatorY(lat, zoom)))
}

// LngFromMercatorX recovers a longitude from a fractional tile x, wrapped into [-180, 180].
func LngFromMercatorX(x, zoom float64) float64 {
	lonRad := 2*math.Pi*x/math.Exp2(math.Floor(zoom)) - math.Pi
	return ValidLong(lonRad * 180 / math.Pi)
}

func LatFromMercatorY(y, zoom float64) float64 {
	n := math.Pi - 2*math.Pi*y/math.Exp2(math.Floor(zoom))
	return 2 * (math.Atan(math.Exp(n)) - math.Pi/4) * 180 / math.Pi
}

// ValidLong reduces a longitude into [-180, 180].
func ValidLong(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	lon = math.Mod(lon, 360)
	switch {
	case lon > 180:
		return lon - 360
	case lon < -180:
		return lon + 360
	}
	return lon
}

// ClampLat keeps a latitude inside the projectable band.
func ClampLat(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

// Position is a geographic centre with a fractional zoom.
type Position struct {
	Lat  float64
	Long float64
	Zoom float64
}

// Point is a fractional coordinate in tile space at zoom Z.
type Point struct {
	X, Y float64
	Z    int
}

func (p Point) Floor() Tile {
	return Tile{X: int(math.Floor(p.X)), Y: int(math.Floor(p.Y)), Z: p.Z}
}

// LatLong converts the point back to geographic degrees.
func (p Point) LatLong() (lat, long float64) {
	z := float64(p.Z)
	return LatFromMercatorY(p.Y, z), LngFromMercatorX(p.X, z)
}
