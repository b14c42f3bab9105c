package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	list "github.com/charmbracelet/bubbles/list"
	"go.uber.org/zap"

	"slippy/internal/geom"
	"slippy/internal/layer"
	"slippy/internal/mercator"
)

type fileItem struct {
	title, desc string
	path        string
}

func (f fileItem) Title() string       { return f.title }
func (f fileItem) Description() string { return f.desc }
func (f fileItem) FilterValue() string { return f.title }

func (m *Model) refreshDir() {
	entries, err := os.ReadDir(m.cwd)
	if err != nil {
		m.status = "read dir error: " + err.Error()
		return
	}
	var items []list.Item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !geom.Supported(name) {
			continue
		}
		items = append(items, fileItem{title: name, desc: strings.ToLower(filepath.Ext(name)), path: filepath.Join(m.cwd, name)})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].(fileItem).Title() < items[j].(fileItem).Title() })
	m.items = items
	m.l.SetItems(items)
	if len(items) == 0 {
		m.status = "no supported files in current directory"
	}
}

// loadPath loads an overlay file onto the map.
func (m *Model) loadPath(p string) {
	m.selPath = p
	c, err := geom.Load(p)
	if err != nil {
		m.status = "load error: " + err.Error()
		return
	}
	m.addOverlay(p, c)
}

// addOverlay shows c as an interactive vector layer and centres the map on
// it. A second load of the same path replaces the first.
func (m *Model) addOverlay(path string, c *geom.Collection) {
	for i, o := range m.overlays {
		if o.path == path {
			m.deps.Map.RemoveLayer(o.layerID)
			m.overlays = append(m.overlays[:i], m.overlays[i+1:]...)
			break
		}
	}
	l := layer.NewVector(geom.NewPointIndex(c), nil)
	l.Name = c.Name
	l.Interactive = true
	m.deps.Map.AddLayer(l)
	m.overlays = append(m.overlays, overlay{path: path, layerID: l.ID, data: c})

	centre := c.Bound.Center()
	m.deps.Map.SetPosition(mercator.Position{Lat: centre.Lat(), Long: centre.Lon(), Zoom: m.deps.Map.Position().Zoom})
	m.deps.Log.Info("overlay added",
		zap.String("path", path),
		zap.Int("layer", l.ID),
		zap.Int("features", len(c.Features)),
	)
	m.status = fmt.Sprintf("loaded: %s  features=%d", filepath.Base(path), len(c.Features))

	if m.showAttrs {
		m.refreshAttrsFromCurrent()
	}
}

func (m *Model) removeLastOverlay() {
	if len(m.overlays) == 0 {
		m.status = "no overlays"
		return
	}
	o := m.overlays[len(m.overlays)-1]
	m.overlays = m.overlays[:len(m.overlays)-1]
	m.deps.Map.RemoveLayer(o.layerID)
	m.status = "removed " + filepath.Base(o.path)
	if m.showAttrs {
		m.refreshAttrsFromCurrent()
	}
}
