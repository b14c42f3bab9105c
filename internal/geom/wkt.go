package geom

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"
)

// ParseWKT reads a single WKT geometry.
func ParseWKT(s string) (*Collection, error) {
	c := &Collection{Name: "wkt"}
	g, err := wkt.Unmarshal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("wkt: %w", err)
	}
	c.addGeometry(g, nil)
	return c.done()
}

// LoadWKT reads one WKT geometry per non-empty line. Lines starting with #
// are skipped.
func LoadWKT(path string) (*Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseWKTLines(filepath.Base(path), f)
}

func parseWKTLines(name string, r io.Reader) (*Collection, error) {
	c := &Collection{Name: name}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		g, err := wkt.Unmarshal(s)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		c.addGeometry(g, map[string]any{"line": line})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return c.done()
}
