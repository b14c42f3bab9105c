package geom

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	Point       *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
}

// LoadKML extracts Placemark points from a KML file. Placemarks may be
// nested in Documents and Folders.
func LoadKML(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseKML(filepath.Base(path), f)
}

func ParseKML(name string, r io.Reader) (*Collection, error) {
	c := &Collection{Name: name}
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Placemark" {
			continue
		}
		var pm kmlPlacemark
		if err := dec.DecodeElement(&pm, &se); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if pm.Point == nil {
			continue
		}
		// KML tuples are "lon,lat[,alt]"; altitude is ignored.
		for _, tuple := range strings.Fields(pm.Point.Coordinates) {
			vals := strings.Split(tuple, ",")
			if len(vals) < 2 {
				continue
			}
			lon, err1 := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
			lat, err2 := strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
			if err1 != nil || err2 != nil {
				continue
			}
			props := map[string]any{}
			if pm.Name != "" {
				props["name"] = pm.Name
			}
			if pm.Description != "" {
				props["description"] = strings.TrimSpace(pm.Description)
			}
			c.add(orb.Point{lon, lat}, props)
		}
	}
	return c.done()
}
