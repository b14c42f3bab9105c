package geom

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"slippy/internal/mercator"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		body  string
		count int
		first [2]float64
	}{
		{
			name: "geojson collection",
			file: "cafes.geojson",
			body: `{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{"id":"a","name":"Kaffe"},"geometry":{"type":"Point","coordinates":[10.75,59.91]}},
				{"type":"Feature","properties":{"name":"Route"},"geometry":{"type":"LineString","coordinates":[[0,0],[2,2]]}},
				{"type":"Feature","properties":null,"geometry":{"type":"MultiPoint","coordinates":[[1,1],[3,3]]}}
			]}`,
			count: 4,
			first: [2]float64{10.75, 59.91},
		},
		{
			name:  "geojson feature",
			file:  "one.json",
			body:  `{"type":"Feature","properties":{},"geometry":{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,2],[0,2],[0,0]]]}}`,
			count: 1,
			first: [2]float64{2, 1},
		},
		{
			name:  "geojson geometry",
			file:  "pt.geojson",
			body:  `{"type":"Point","coordinates":[-3.7,40.4]}`,
			count: 1,
			first: [2]float64{-3.7, 40.4},
		},
		{
			name:  "csv",
			file:  "pts.csv",
			body:  "name, Latitude, LNG\nOslo, 59.91, 10.75\nbad, x, y\nBergen, 60.39, 5.32\n",
			count: 2,
			first: [2]float64{10.75, 59.91},
		},
		{
			name: "kml",
			file: "pts.kml",
			body: `<?xml version="1.0"?><kml xmlns="http://www.opengis.net/kml/2.2"><Document><Folder>
				<Placemark><name>Tower</name><Point><coordinates>2.2945,48.8584,0</coordinates></Point></Placemark>
				<Placemark><name>Line</name><LineString><coordinates>0,0 1,1</coordinates></LineString></Placemark>
			</Folder></Document></kml>`,
			count: 1,
			first: [2]float64{2.2945, 48.8584},
		},
		{
			name:  "wkt lines",
			file:  "shapes.wkt",
			body:  "# comment\nPOINT(1 2)\n\nMULTIPOINT(3 4,5 6)\nLINESTRING(0 0, 10 10)\n",
			count: 4,
			first: [2]float64{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Load(writeFile(t, tt.file, tt.body))
			if err != nil {
				t.Fatal(err)
			}
			if len(c.Features) != tt.count {
				t.Fatalf("%d features", len(c.Features))
			}
			f := c.Features[0]
			if math.Abs(f.Point[0]-tt.first[0]) > 1e-9 || math.Abs(f.Point[1]-tt.first[1]) > 1e-9 {
				t.Fatalf("first point %v", f.Point)
			}
			for _, f := range c.Features {
				if f.Properties["id"] == nil {
					t.Fatalf("feature without id: %v", f.Properties)
				}
				if !c.Bound.Contains(f.Point) {
					t.Fatalf("bound %v misses %v", c.Bound, f.Point)
				}
			}
		})
	}
}

func TestLoadProperties(t *testing.T) {
	c, err := Load(writeFile(t, "pts.csv", "lat,lon,name,kind\n1,2,Home,house\n"))
	if err != nil {
		t.Fatal(err)
	}
	props := c.Features[0].Properties
	if props["name"] != "Home" || props["kind"] != "house" || props["id"] != 1 {
		t.Fatalf("properties %v", props)
	}
	if _, ok := props["lat"]; ok {
		t.Fatal("coordinate column kept as a property")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want error
	}{
		{"unsupported", "a.shp", "", ErrUnsupported},
		{"empty collection", "a.geojson", `{"type":"FeatureCollection","features":[]}`, ErrNoFeatures},
		{"csv without coordinates", "a.csv", "name,city\nx,y\n", errNoLatLon},
		{"kml without points", "a.kml", `<kml><Placemark><name>x</name></Placemark></kml>`, ErrNoFeatures},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.body))
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Load(writeFile(t, "bad.geojson", "{")); err == nil {
		t.Fatal("expected error for invalid json")
	}
	if _, err := Load(writeFile(t, "bad.wkt", "POINT(1 2)\nNOT WKT\n")); err == nil || !strings.Contains(err.Error(), ":2:") {
		t.Fatalf("err = %v", err)
	}
}

func TestParseWKT(t *testing.T) {
	c, err := ParseWKT("POLYGON((0 0, 4 0, 4 4, 0 4, 0 0))")
	if err != nil {
		t.Fatal(err)
	}
	if c.Features[0].Point[0] != 2 || c.Features[0].Point[1] != 2 {
		t.Fatalf("centre %v", c.Features[0].Point)
	}
	if _, err := ParseWKT(""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestPointIndex(t *testing.T) {
	c, err := ParseGeoJSON("t", []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"id":1},"geometry":{"type":"Point","coordinates":[0,0]}},
		{"type":"Feature","properties":{"id":2},"geometry":{"type":"Point","coordinates":[-90,45]}},
		{"type":"Feature","properties":{"id":3},"geometry":{"type":"Point","coordinates":[179.9,45]}}
	]}`))
	if err != nil {
		t.Fatal(err)
	}
	idx := NewPointIndex(c)
	ctx := context.Background()

	pts, _ := idx.Points(ctx, mercator.Tile{X: 1, Y: 1, Z: 1})
	if len(pts) != 1 || pts[0].Properties["id"] != 1 || pts[0].Coordinates[0] != 0 || pts[0].Coordinates[1] != 0 {
		t.Fatalf("tile 1/1/1: %+v", pts)
	}

	pts, _ = idx.Points(ctx, mercator.Tile{X: 0, Y: 0, Z: 1})
	if len(pts) != 1 || pts[0].Properties["id"] != 2 {
		t.Fatalf("tile 1/0/0: %+v", pts)
	}
	if x := pts[0].Coordinates[0]; math.Abs(x-128) > 1e-9 {
		t.Fatalf("x = %v", x)
	}

	// Features are found through wrapped tile coordinates.
	pts, _ = idx.Points(ctx, mercator.Tile{X: -1, Y: 0, Z: 1})
	if len(pts) != 1 || pts[0].Properties["id"] != 3 {
		t.Fatalf("wrapped tile: %+v", pts)
	}
	if idx.Len() != 3 {
		t.Fatalf("len %d", idx.Len())
	}
}
