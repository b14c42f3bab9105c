package geom

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
)

// LoadGeoJSON reads a FeatureCollection, a single Feature or a bare geometry.
func LoadGeoJSON(path string) (*Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGeoJSON(filepath.Base(path), data)
}

func ParseGeoJSON(name string, data []byte) (*Collection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	c := &Collection{Name: name}
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		for _, f := range fc.Features {
			c.addGeometry(f.Geometry, f.Properties.Clone())
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c.addGeometry(f.Geometry, f.Properties.Clone())
	case "":
		return nil, fmt.Errorf("%s: missing geojson type", name)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		c.addGeometry(g.Geometry(), nil)
	}
	return c.done()
}
