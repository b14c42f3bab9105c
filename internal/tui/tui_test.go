package tui

import (
	"context"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"slippy/internal/engine"
	"slippy/internal/eventloop"
	"slippy/internal/interaction"
	"slippy/internal/layer"
	"slippy/internal/render"
	"slippy/internal/scene"
)

type stubAssets struct{}

func (stubAssets) Get(_ context.Context, url string) (*scene.Asset, error) {
	return scene.NewAsset(url, image.NewRGBA(image.Rect(0, 0, 4, 4))), nil
}

func newTestModel(t *testing.T) (Model, *engine.Map, *Inbox) {
	t.Helper()
	q := eventloop.NewQueue(nil)
	t.Cleanup(q.Close)
	surface := render.New(200, 108, "#FFFFFF")
	inbox := &Inbox{}
	m, err := engine.New(engine.Params{
		Surface:   surface,
		Scheduler: q,
		Assets:    stubAssets{},
		OnClick:   inbox.OnClick,
		OnContext: inbox.OnContext,
		OnMapMove: inbox.OnMapMove,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { m.Destroy() })
	m.AddLayer(layer.NewRaster("https://tiles/{z}/{x}/{y}.png"))

	model := New(Deps{
		Map:         m,
		Surface:     surface,
		Loop:        q,
		Controller:  interaction.NewController(m, q),
		CellWidth:   2,
		SnapshotDir: t.TempDir(),
		Inbox:       inbox,
	})
	model = send(model, tea.WindowSizeMsg{Width: 100, Height: 30})
	return model, m, inbox
}

func send(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name    string
		sidebar bool
		mapX    int
		mapW    int
	}{
		{"full width", false, 0, 100},
		{"with sidebar", true, 29, 71},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Model{width: 100, height: 30, showSidebar: tt.sidebar, deps: Deps{CellWidth: 2}}
			l := m.layout()
			if l.mapX != tt.mapX || l.mapW != tt.mapW || l.mapY != 1 || l.mapH != 27 {
				t.Fatalf("layout = %+v", l)
			}
			if w, h := m.surfaceSize(l); w != tt.mapW*2 || h != 27*4 {
				t.Fatalf("surface = %dx%d", w, h)
			}
			if !l.contains(tt.mapX, 1) || l.contains(tt.mapX, 0) || l.contains(tt.mapX+tt.mapW, 1) || l.contains(tt.mapX, 28) {
				t.Fatal("contains disagrees with the map area")
			}
			x, y := m.cellToPixel(l, tt.mapX, 1)
			if x != 1 || y != 2 {
				t.Fatalf("first cell maps to (%v, %v)", x, y)
			}
		})
	}
}

func TestHalfBlocks(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	out := halfBlocks(img, 3, 2)
	if n := strings.Count(out, "▀"); n != 6 {
		t.Fatalf("%d half blocks", n)
	}
	if n := len(strings.Split(out, "\n")); n != 2 {
		t.Fatalf("%d rows", n)
	}
	if blankOut := halfBlocks(nil, 3, 2); blankOut != "   \n   " {
		t.Fatalf("blank = %q", blankOut)
	}
}

func TestBrailleLinesCrosshair(t *testing.T) {
	lines := brailleLines(nil, 10, 5)
	if len(lines) != 5 {
		t.Fatalf("%d lines", len(lines))
	}
	if strings.TrimSpace(lines[2]) == "" {
		t.Fatal("no crosshair on the centre row")
	}
	if strings.TrimSpace(lines[0]) != "" || strings.TrimSpace(lines[4]) != "" {
		t.Fatal("crosshair spilled to the edges")
	}

	dark := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range dark.Pix {
		if i%4 == 3 {
			dark.Pix[i] = 255
		}
	}
	for _, l := range brailleLines(dark, 4, 2) {
		if strings.ContainsRune(l, ' ') {
			t.Fatalf("dark image left blank cells: %q", l)
		}
	}
}

func TestKeysDriveTheMap(t *testing.T) {
	model, m, _ := newTestModel(t)

	model = send(model, key("+"))
	if z := m.Position().Zoom; math.Abs(z-3.1) > 1e-9 {
		t.Fatalf("zoom after + = %v", z)
	}
	model = send(model, key("+"))
	in := m.Position().Zoom
	model = send(model, key("-"))
	if z := m.Position().Zoom; z >= in {
		t.Fatalf("zoom after - = %v, was %v", z, in)
	}
	send(model, key("left"))
	if long := m.Position().Long; long >= 0 {
		t.Fatalf("panning left moved to long %v", long)
	}
}

func TestMouseDragAndWheel(t *testing.T) {
	model, m, _ := newTestModel(t)

	model = send(model, tea.MouseMsg{X: 40, Y: 10, Button: tea.MouseButtonLeft, Action: tea.MouseActionPress})
	model = send(model, tea.MouseMsg{X: 50, Y: 10, Button: tea.MouseButtonNone, Action: tea.MouseActionMotion})
	model = send(model, tea.MouseMsg{X: 50, Y: 10, Button: tea.MouseButtonLeft, Action: tea.MouseActionRelease})
	if long := m.Position().Long; long >= 0 {
		t.Fatalf("dragging right moved to long %v", long)
	}
	if model.pressed || m.Clickable().Pending() {
		t.Fatal("press survived release")
	}
	if !model.hoverHasGeo {
		t.Fatal("hover coordinates not tracked")
	}

	before := m.Position().Zoom
	send(model, tea.MouseMsg{X: 50, Y: 14, Button: tea.MouseButtonWheelUp, Action: tea.MouseActionPress})
	if m.Position().Zoom <= before {
		t.Fatal("wheel up did not zoom in")
	}
}

func TestInboxFeedsTheModel(t *testing.T) {
	model, _, inbox := newTestModel(t)

	inbox.OnClick(interaction.ClickEvent{Lat: 1, Long: 2, LayerID: 2, Properties: map[string]any{"name": "cafe"}})
	model = send(model, tasksReadyMsg{})
	if !strings.Contains(model.inspectPopup, "name: cafe") {
		t.Fatalf("popup = %q", model.inspectPopup)
	}
	if model.status != "clicked layer 2" {
		t.Fatalf("status = %q", model.status)
	}
	if len(inbox.clicks) != 0 {
		t.Fatal("inbox not emptied")
	}
}

func TestPasteOverlayLifecycle(t *testing.T) {
	model, m, _ := newTestModel(t)

	model = send(model, key("p"))
	if !model.pasteMode {
		t.Fatal("paste mode not entered")
	}
	model.ta.SetValue("POINT(10 20)")
	model = send(model, key("enter"))
	if model.pasteMode || len(model.overlays) != 1 || len(m.Layers()) != 2 {
		t.Fatalf("paste=%v overlays=%d layers=%d", model.pasteMode, len(model.overlays), len(m.Layers()))
	}
	pos := m.Position()
	if math.Abs(pos.Lat-20) > 1e-6 || math.Abs(pos.Long-10) > 1e-6 {
		t.Fatalf("not centred on overlay: %+v", pos)
	}

	model = send(model, key("a"))
	if !model.showAttrs || len(model.tbl.Rows()) != 1 {
		t.Fatalf("attrs=%v rows=%d", model.showAttrs, len(model.tbl.Rows()))
	}
	model = send(model, key("a"))

	model = send(model, key("x"))
	if len(model.overlays) != 0 || len(m.Layers()) != 1 {
		t.Fatalf("overlays=%d layers=%d", len(model.overlays), len(m.Layers()))
	}
}

func TestSnapshotAndInspect(t *testing.T) {
	model, m, _ := newTestModel(t)
	if err := m.RenderNow(); err != nil {
		t.Fatal(err)
	}

	model = send(model, key("s"))
	files, _ := filepath.Glob(filepath.Join(model.deps.SnapshotDir, "slippy-*.png"))
	if len(files) != 1 {
		t.Fatalf("status %q, files %v", model.status, files)
	}

	model = send(model, key("i"))
	for _, want := range []string{"zoom: 3.00", "tile: 3/", "1:raster"} {
		if !strings.Contains(model.inspectPopup, want) {
			t.Fatalf("inspect popup %q lacks %q", model.inspectPopup, want)
		}
	}
	if v := model.View(); !strings.Contains(v, "slippy") {
		t.Fatal("header missing from view")
	}
}

func TestQuitDestroysMap(t *testing.T) {
	model, m, _ := newTestModel(t)
	_, cmd := model.Update(key("q"))
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}
}

func TestStatusStyle(t *testing.T) {
	tests := []struct {
		status string
		want   lipgloss.Style
	}{
		{"slippy ready", dimStyle},
		{"load error: boom", errStyle},
		{"unsupported file: .shp", errStyle},
		{"no overlays", errStyle},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := statusStyle(tt.status); got.GetForeground() != tt.want.GetForeground() {
				t.Fatalf("%q styled as %v", tt.status, got.GetForeground())
			}
		})
	}
}

func TestPastedLineBecomesCentreMarker(t *testing.T) {
	model, _, _ := newTestModel(t)
	if !strings.Contains(model.ta.Placeholder, "centre") {
		t.Fatalf("placeholder %q does not say how lines are shown", model.ta.Placeholder)
	}

	model = send(model, key("p"))
	model.ta.SetValue("LINESTRING(0 0,10 10)")
	model = send(model, key("enter"))
	if len(model.overlays) != 1 {
		t.Fatalf("overlays=%d status=%q", len(model.overlays), model.status)
	}
	fs := model.overlays[0].data.Features
	if len(fs) != 1 || fs[0].Point.Lon() != 5 || fs[0].Point.Lat() != 5 {
		t.Fatalf("features %+v", fs)
	}
}
