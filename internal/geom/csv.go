package geom

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

var errNoLatLon = errors.New("latitude/longitude columns not found")

// LoadCSV reads a CSV with latitude/longitude columns. Column detection:
// lat|latitude|y and lon|lng|long|longitude|x (case-insensitive). Every other
// column becomes a property.
func LoadCSV(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseCSV(filepath.Base(path), f)
}

func ParseCSV(name string, r io.Reader) (*Collection, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoFeatures)
	}
	header := recs[0]
	idxLat, idxLon := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude", "y":
			if idxLat == -1 {
				idxLat = i
			}
		case "lon", "lng", "long", "longitude", "x":
			if idxLon == -1 {
				idxLon = i
			}
		}
	}
	if idxLat == -1 || idxLon == -1 {
		return nil, fmt.Errorf("%s: %w", name, errNoLatLon)
	}

	c := &Collection{Name: name}
	for _, row := range recs[1:] {
		if idxLon >= len(row) || idxLat >= len(row) {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(row[idxLon]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(row[idxLat]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		props := make(map[string]any, len(row))
		for i, v := range row {
			if i == idxLat || i == idxLon || i >= len(header) {
				continue
			}
			props[header[i]] = v
		}
		c.add(orb.Point{lon, lat}, props)
	}
	return c.done()
}
