// Package geom loads point overlays from GeoJSON, CSV, KML and WKT files and
// serves them to vector layers.
package geom

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
)

var (
	ErrNoFeatures  = errors.New("no features found")
	ErrUnsupported = errors.New("unsupported file type")
)

// Feature is one point with its attributes. Non-point geometries are reduced
// to the centre of their bound.
type Feature struct {
	Point      orb.Point
	Properties map[string]any
}

// Collection is a loaded overlay.
type Collection struct {
	Name     string
	Features []Feature
	Bound    orb.Bound
}

func (c *Collection) add(p orb.Point, props map[string]any) {
	if props == nil {
		props = make(map[string]any)
	}
	if _, ok := props["id"]; !ok {
		props["id"] = len(c.Features) + 1
	}
	if len(c.Features) == 0 {
		c.Bound = orb.Bound{Min: p, Max: p}
	} else {
		c.Bound = c.Bound.Extend(p)
	}
	c.Features = append(c.Features, Feature{Point: p, Properties: props})
}

// addGeometry adds every point of a multipoint, or the centre of any other
// geometry.
func (c *Collection) addGeometry(g orb.Geometry, props map[string]any) {
	switch g := g.(type) {
	case nil:
	case orb.Point:
		c.add(g, props)
	case orb.MultiPoint:
		for _, p := range g {
			c.add(p, clone(props))
		}
	default:
		c.add(g.Bound().Center(), props)
	}
}

func (c *Collection) done() (*Collection, error) {
	if len(c.Features) == 0 {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrNoFeatures)
	}
	return c, nil
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Load picks a loader by file extension.
func Load(path string) (*Collection, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return LoadGeoJSON(path)
	case ".csv":
		return LoadCSV(path)
	case ".kml":
		return LoadKML(path)
	case ".wkt", ".txt":
		return LoadWKT(path)
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
}

// Supported reports whether Load understands the file's extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json", ".csv", ".kml", ".wkt", ".txt":
		return true
	}
	return false
}
