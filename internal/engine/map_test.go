package engine

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/gogpu/gg"

	"slippy/internal/eventloop"
	"slippy/internal/interaction"
	"slippy/internal/layer"
	"slippy/internal/mercator"
	"slippy/internal/scene"
)

type fakeSurface struct {
	w, h    int
	renders int
	closes  int
	resizes [][2]int
}

func (s *fakeSurface) Size() (int, int) { return s.w, s.h }

func (s *fakeSurface) Resize(w, h int) error {
	s.resizes = append(s.resizes, [2]int{w, h})
	s.w, s.h = w, h
	return nil
}

func (s *fakeSurface) Render(*scene.Node) error {
	s.renders++
	return nil
}

func (s *fakeSurface) Close() error {
	s.closes++
	return nil
}

type assets struct{}

func (assets) Get(_ context.Context, url string) (*scene.Asset, error) {
	return scene.NewAsset(url, image.NewRGBA(image.Rect(0, 0, 2, 2))), nil
}

func newTestMap(t *testing.T, p Params) (*Map, *fakeSurface, *eventloop.Manual) {
	t.Helper()
	surface := &fakeSurface{w: 1024, h: 768}
	sched := eventloop.NewManual(time.Unix(0, 0))
	p.Surface, p.Scheduler, p.Assets = surface, sched, assets{}
	m, err := New(p)
	if err != nil {
		t.Fatal(err)
	}
	return m, surface, sched
}

func TestNewValidates(t *testing.T) {
	sched := eventloop.NewManual(time.Unix(0, 0))
	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"no surface", Params{Scheduler: sched, Assets: assets{}}, ErrNoSurface},
		{"no scheduler", Params{Surface: &fakeSurface{}, Assets: assets{}}, ErrNoScheduler},
		{"no assets", Params{Surface: &fakeSurface{}, Scheduler: sched}, ErrNoAssets},
		{"scale range too narrow", Params{
			Surface: &fakeSurface{}, Scheduler: sched, Assets: assets{},
			Options: Options{MinScale: 0.7, MaxScale: 1},
		}, ErrBadOptions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.p); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRenderLoopAndDestroy(t *testing.T) {
	m, surface, sched := newTestMap(t, Params{})
	sched.Advance(3 * DefaultOptions().FrameInterval)
	if surface.renders != 3 || m.Frames() != 3 {
		t.Fatalf("renders %d frames %d", surface.renders, m.Frames())
	}

	if err := m.Destroy(); err != nil {
		t.Fatal(err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatal(err)
	}
	sched.Advance(time.Second)
	if surface.renders != 3 || surface.closes != 1 {
		t.Fatalf("renders %d closes %d", surface.renders, surface.closes)
	}
	if _, _, timers := sched.Pending(); timers != 0 {
		t.Fatalf("%d timers after Destroy", timers)
	}
}

func TestInitialPosition(t *testing.T) {
	pos := mercator.Position{Lat: 35.68, Long: 139.69, Zoom: 9.5}
	m, _, _ := newTestMap(t, Params{Position: &pos})
	m.AddLayer(layer.NewRaster("https://tiles/{z}/{x}/{y}.png"))
	got := m.Position()
	if math.Abs(got.Lat-pos.Lat) > 1e-6 || math.Abs(got.Long-pos.Long) > 1e-6 || math.Abs(got.Zoom-pos.Zoom) > 1e-9 {
		t.Fatalf("position %+v", got)
	}
}

func TestRefreshBudget(t *testing.T) {
	m, _, sched := newTestMap(t, Params{})
	m.AddLayer(layer.NewRaster("https://tiles/{z}/{x}/{y}.png"))
	sched.Flush()
	p, _ := m.layers.Pyramid(1)
	centerLoaded := func() bool {
		_, ok := p.Tile(p.MercatorCenter().Floor())
		return ok
	}

	// 20 per pan: the 26th pan crosses the 512 px tile size.
	m.PanPx(gg.Vec2{X: -2000})
	for i := 0; i < 24; i++ {
		m.PanPx(gg.Vec2{})
	}
	if centerLoaded() {
		t.Fatal("refreshed before the budget was spent")
	}
	m.PanPx(gg.Vec2{})
	if !centerLoaded() {
		t.Fatal("budget spent without a refresh")
	}

	// 150 per zoom.
	origin := gg.Vec2{X: 512, Y: 384}
	for i := 0; i < 3; i++ {
		m.Zoom(0.01, origin)
	}
	m.PanPx(gg.Vec2{X: -2000})
	m.PanPx(gg.Vec2{})
	m.PanPx(gg.Vec2{})
	if centerLoaded() {
		t.Fatal("refreshed before the budget was spent")
	}
	m.PanPx(gg.Vec2{})
	if !centerLoaded() {
		t.Fatal("budget spent without a refresh")
	}
}

func TestOnMapMove(t *testing.T) {
	var moves []mercator.Position
	m, _, _ := newTestMap(t, Params{OnMapMove: func(p mercator.Position) { moves = append(moves, p) }})
	m.AddLayer(layer.NewRaster("https://tiles/{z}/{x}/{y}.png"))
	m.PanPx(gg.Vec2{X: 100})
	m.Zoom(0.1, gg.Vec2{X: 512, Y: 384})
	if len(moves) != 2 {
		t.Fatalf("%d moves", len(moves))
	}
	if moves[0].Long >= 0 {
		t.Fatalf("panning right should move the centre west, got %+v", moves[0])
	}
	if moves[1].Zoom <= moves[0].Zoom {
		t.Fatalf("zoom did not increase: %+v", moves)
	}
}

func TestResizeIsDebounced(t *testing.T) {
	m, surface, sched := newTestMap(t, Params{})
	m.AddLayer(layer.NewRaster("https://tiles/{z}/{x}/{y}.png"))
	m.Resize(800, 600)
	sched.Advance(100 * time.Millisecond)
	m.Resize(640, 480)
	sched.Advance(150 * time.Millisecond)
	if len(surface.resizes) != 0 {
		t.Fatalf("resized early: %v", surface.resizes)
	}
	sched.Advance(100 * time.Millisecond)
	if len(surface.resizes) != 1 || surface.resizes[0] != [2]int{640, 480} {
		t.Fatalf("resizes %v", surface.resizes)
	}

	// A steady stream of resizes still lands within the max wait.
	for i := 0; i < 10; i++ {
		m.Resize(500+i, 400)
		sched.Advance(100 * time.Millisecond)
	}
	if len(surface.resizes) < 3 {
		t.Fatalf("max wait not honoured: %v", surface.resizes)
	}
}

func TestClickReachesHost(t *testing.T) {
	var got []interaction.ClickEvent
	m, _, sched := newTestMap(t, Params{OnClick: func(e interaction.ClickEvent) { got = append(got, e) }})
	l := layer.NewRaster("https://tiles/{z}/{x}/{y}.png")
	l.Interactive = true
	m.AddLayer(l)
	sched.Flush()

	c := m.Clickable()
	c.PointerDown(interaction.Pointer{ID: 1, X: 522, Y: 394})
	c.PointerUp(interaction.Pointer{ID: 1, X: 522, Y: 394})
	if len(got) != 1 {
		t.Fatalf("%d clicks", len(got))
	}
	e := got[0]
	if e.Properties != "4/4/3" || e.LayerID != l.ID {
		t.Fatalf("event %+v", e)
	}
	lat, long := m.LatLongAt(522, 394)
	if e.Lat != lat || e.Long != long {
		t.Fatalf("event at %v,%v want %v,%v", e.Lat, e.Long, lat, long)
	}
}
