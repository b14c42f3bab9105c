package tui

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	list "github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gogpu/gg"
	"go.uber.org/zap"

	"slippy/internal/geom"
	"slippy/internal/interaction"
	"slippy/internal/mercator"
)

// panCells is how far one arrow key press moves the map, in columns.
const panCells = 4

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tasksReadyMsg:
		m.deps.Loop.Drain()
		m.applyInbox()
		return m, waitForTasks(m.deps.Loop)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeMap()
	case tea.KeyMsg:
		// If list is visible and filtering, send keys to list and ignore global commands
		if m.showSidebar && m.l.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.l, cmd = m.l.Update(msg)
			return m, cmd
		}
		if m.pasteMode {
			return m.updatePaste(msg)
		}
		if cmd := m.handleKey(msg.String()); cmd != nil {
			return m, cmd
		}
	case tea.MouseMsg:
		m.handleMouse(msg)
	}
	// Pass messages to list when visible
	if m.showSidebar {
		var cmd tea.Cmd
		m.l, cmd = m.l.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) updatePaste(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.pasteMode = false
		m.ta.Blur()
		return *m, nil
	case "enter":
		w := strings.TrimSpace(m.ta.Value())
		if w == "" {
			m.status = "paste: empty"
			return *m, nil
		}
		c, err := geom.ParseWKT(w)
		if err != nil {
			m.status = "wkt error: " + err.Error()
			return *m, nil
		}
		c.Name = "pasted"
		m.addOverlay("pasted", c)
		m.pasteMode = false
		m.ta.Blur()
		return *m, nil
	}
	var cmd tea.Cmd
	m.ta, cmd = m.ta.Update(msg)
	return *m, cmd
}

func (m *Model) handleKey(key string) tea.Cmd {
	step := float64(panCells * m.deps.CellWidth)
	switch key {
	case "ctrl+c", "q":
		m.deps.Controller.Dispose()
		if err := m.deps.Map.Destroy(); err != nil {
			m.deps.Log.Warn("map teardown failed", zap.Error(err))
		}
		return tea.Quit
	case "up":
		m.deps.Map.PanPx(gg.Vec2{Y: step})
	case "down":
		m.deps.Map.PanPx(gg.Vec2{Y: -step})
	case "left":
		m.deps.Map.PanPx(gg.Vec2{X: step})
	case "right":
		m.deps.Map.PanPx(gg.Vec2{X: -step})
	case "+", "=":
		m.deps.Map.Zoom(interaction.WheelStep, m.centre())
	case "-", "_":
		m.deps.Map.Zoom(-interaction.WheelStep, m.centre())
	case "b":
		m.braille = !m.braille
		m.status = fmt.Sprintf("braille: %v", m.braille)
	case "tab":
		m.showSidebar = !m.showSidebar
		if m.showSidebar {
			m.refreshDir()
		}
		m.resizeMap()
	case "p":
		m.pasteMode = true
		m.ta.SetValue("")
		m.status = "paste mode"
		m.ta.Focus()
	case "h":
		m.helpVisible = !m.helpVisible
	case "a":
		m.showAttrs = !m.showAttrs
		if m.showAttrs {
			m.refreshAttrsFromCurrent()
		}
	case "i":
		m.inspectPopup = m.inspect()
		m.status = "inspect popup"
	case "esc":
		m.inspectPopup = ""
	case "r":
		t := m.centreTile()
		m.deps.Map.RevalidateTile(t.Key())
		m.status = "revalidating " + t.String()
	case "s":
		path, err := m.snapshot()
		if err != nil {
			m.status = "snapshot error: " + err.Error()
		} else {
			m.status = "saved " + path
		}
	case "x":
		m.removeLastOverlay()
	case "enter":
		if m.showSidebar {
			if it, ok := m.l.SelectedItem().(fileItem); ok {
				m.loadPath(it.path)
			}
		}
	}
	return nil
}

func (m *Model) handleMouse(msg tea.MouseMsg) {
	lay := m.layout()
	if m.showSidebar {
		m.l.SetSize(lay.sidebarW-2, lay.height-2)
	}
	inside := lay.contains(msg.X, msg.Y)
	px, py := m.cellToPixel(lay, msg.X, msg.Y)
	p := interaction.Pointer{ID: 1, Type: interaction.Mouse, X: px, Y: py, Time: m.deps.Loop.Now()}
	clickable := m.deps.Map.Clickable()

	switch {
	case msg.Button == tea.MouseButtonWheelUp && inside:
		m.deps.Controller.Wheel(px, py, -1)
	case msg.Button == tea.MouseButtonWheelDown && inside:
		m.deps.Controller.Wheel(px, py, 1)
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft && inside:
		m.pressed = true
		m.deps.Controller.PointerDown(p)
		clickable.PointerDown(p)
	case msg.Action == tea.MouseActionMotion && m.pressed:
		m.deps.Controller.PointerMove(p)
		clickable.PointerMove(p)
	case msg.Action == tea.MouseActionRelease && m.pressed:
		m.pressed = false
		m.deps.Controller.PointerUp(p)
		clickable.PointerUp(p)
	}

	m.hoverHasGeo = inside
	if inside {
		m.hoverLat, m.hoverLon = m.deps.Map.LatLongAt(px, py)
	}
}

// applyInbox moves engine callbacks into the model.
func (m *Model) applyInbox() {
	box := m.deps.Inbox
	for _, e := range box.clicks {
		m.inspectPopup = formatEvent("click", e)
		m.status = fmt.Sprintf("clicked layer %d", e.LayerID)
	}
	for _, e := range box.contexts {
		m.inspectPopup = formatEvent("long press", e) + "\nr revalidate  esc close"
		m.status = fmt.Sprintf("long press on layer %d", e.LayerID)
	}
	if box.position != nil {
		m.position = *box.position
	}
	box.clicks, box.contexts, box.position = nil, nil, nil
}

func formatEvent(kind string, e interaction.ClickEvent) string {
	lines := []string{
		kind,
		fmt.Sprintf("lat=%.6f lon=%.6f", e.Lat, e.Long),
		fmt.Sprintf("layer: %d", e.LayerID),
	}
	switch props := e.Properties.(type) {
	case map[string]any:
		for _, k := range sortedKeys(props) {
			lines = append(lines, fmt.Sprintf("%s: %s", k, formatValue(props[k])))
		}
	case nil:
	default:
		lines = append(lines, fmt.Sprintf("tile: %v", props))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) resizeMap() {
	lay := m.layout()
	if m.showSidebar {
		m.l.SetSize(lay.sidebarW-2, lay.height-2)
	}
	w, h := m.surfaceSize(lay)
	m.deps.Map.Resize(w, h)
}

// centre is the surface pixel at the middle of the map area.
func (m Model) centre() gg.Vec2 {
	w, h := m.surfaceSize(m.layout())
	return gg.Vec2{X: float64(w) / 2, Y: float64(h) / 2}
}

func (m Model) centreTile() mercator.Tile {
	pos := m.deps.Map.Position()
	z := math.Floor(pos.Zoom)
	return mercator.Point{
		X: mercator.MercatorX(pos.Long, z),
		Y: mercator.MercatorY(mercator.ClampLat(pos.Lat), z),
		Z: int(z),
	}.Floor().Normalize()
}

func (m Model) inspect() string {
	pos := m.deps.Map.Position()
	t := m.centreTile()
	var names []string
	for _, l := range m.deps.Map.Layers() {
		name := l.Name
		if name == "" {
			name = l.Kind.String()
		}
		names = append(names, fmt.Sprintf("%d:%s", l.ID, name))
	}
	meta := []string{
		fmt.Sprintf("centre: lat=%.6f lon=%.6f", pos.Lat, pos.Long),
		fmt.Sprintf("zoom: %.2f", pos.Zoom),
		fmt.Sprintf("tile: %s  key: %d", t, t.Key()),
		"layers: " + strings.Join(names, ", "),
		fmt.Sprintf("overlays: %d", len(m.overlays)),
		fmt.Sprintf("frames: %d", m.deps.Map.Frames()),
		"crs: EPSG:3857",
	}
	return strings.Join(meta, "\n")
}

func (m Model) snapshot() (string, error) {
	dir := m.deps.SnapshotDir
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, fmt.Sprintf("slippy-%s.png", time.Now().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := m.deps.Surface.EncodePNG(f); err != nil {
		return "", err
	}
	return path, nil
}
