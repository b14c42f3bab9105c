package compose

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/gogpu/gg"

	"slippy/internal/eventloop"
	"slippy/internal/layer"
	"slippy/internal/mercator"
	"slippy/internal/pyramid"
	"slippy/internal/scene"
)

type assets struct{ gets int }

func (a *assets) Get(_ context.Context, url string) (*scene.Asset, error) {
	a.gets++
	return scene.NewAsset(url, image.NewRGBA(image.Rect(0, 0, 2, 2))), nil
}

func newTestManager() (*Manager, *eventloop.Manual, *scene.Node, *assets) {
	sched := eventloop.NewManual(time.Unix(0, 0))
	stage := scene.NewGroup()
	a := &assets{}
	r := pyramid.NewContentRenderer(a, 512, nil)
	return NewManager(stage, 800, 600, pyramid.DefaultOptions(), r, sched, nil), sched, stage, a
}

func TestLayerIDsAndOrder(t *testing.T) {
	m, _, stage, _ := newTestManager()
	base := m.AddLayer(layer.NewRaster("base/{z}/{x}/{y}"))
	top := m.AddLayer(layer.NewRaster("top/{z}/{x}/{y}"))
	mid, err := m.InsertLayer(layer.NewRaster("mid/{z}/{x}/{y}"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if base.ID != 1 || top.ID != 2 || mid.ID != 3 {
		t.Fatalf("ids %d %d %d", base.ID, top.ID, mid.ID)
	}
	got := m.Layers()
	if got[0] != base || got[1] != mid || got[2] != top {
		t.Fatal("unexpected stack order")
	}
	if stage.Len() != 3 {
		t.Fatalf("stage has %d children", stage.Len())
	}

	tests := []struct {
		name string
		idx  int
	}{
		{"past end", 4},
		{"negative", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.InsertLayer(layer.NewRaster("x"), tt.idx)
			if !errors.Is(err, ErrLayerIndex) {
				t.Fatalf("err = %v", err)
			}
			if len(m.Layers()) != 3 {
				t.Fatal("failed insert changed the stack")
			}
		})
	}

	if !m.RemoveLayer(mid.ID) || m.RemoveLayer(mid.ID) {
		t.Fatal("RemoveLayer")
	}
	if stage.Len() != 2 {
		t.Fatalf("stage has %d children", stage.Len())
	}
}

func TestInitialPosition(t *testing.T) {
	m, _, _, _ := newTestManager()
	if m.Position() != DefaultPosition {
		t.Fatalf("position %+v", m.Position())
	}
	want := mercator.Position{Lat: 48.85, Long: 2.35, Zoom: 12}
	m.SetPosition(want)
	m.AddLayer(layer.NewRaster("a/{z}/{x}/{y}"))
	got := m.Position()
	if math.Abs(got.Lat-want.Lat) > 1e-6 || math.Abs(got.Long-want.Long) > 1e-6 || math.Abs(got.Zoom-want.Zoom) > 1e-9 {
		t.Fatalf("position %+v", got)
	}
}

func TestLayersStayInSync(t *testing.T) {
	m, sched, _, _ := newTestManager()
	m.AddLayer(layer.NewRaster("a/{z}/{x}/{y}"))
	m.AddLayer(layer.NewVector(layer.ProviderFunc(func(context.Context, mercator.Tile) ([]layer.Point, error) {
		return nil, nil
	}), nil))

	m.PanPx(gg.Vec2{X: 130, Y: -40})
	m.Zoom(0.5, gg.Vec2{X: 100, Y: 100})
	m.Zoom(0.5, gg.Vec2{X: 100, Y: 100})
	m.Resize(1024, 768)
	sched.Flush()

	a, _ := m.Pyramid(1)
	b, _ := m.Pyramid(2)
	if a.Level() != b.Level() || a.Scale() != b.Scale() || a.Len() != b.Len() {
		t.Fatalf("layers diverged: %d/%v/%d vs %d/%v/%d", a.Level(), a.Scale(), a.Len(), b.Level(), b.Scale(), b.Len())
	}
	if a.Position() != b.Position() {
		t.Fatalf("positions %+v vs %+v", a.Position(), b.Position())
	}
	lat, long := m.LatLongAt(512, 384)
	pos := m.Position()
	if math.Abs(lat-pos.Lat) > 1e-9 || math.Abs(long-pos.Long) > 1e-9 {
		t.Fatal("LatLongAt does not agree with Position")
	}
}

func TestRevalidateTile(t *testing.T) {
	m, sched, _, a := newTestManager()
	var revalidated []mercator.Key
	l := layer.NewRaster("a/{z}/{x}/{y}")
	l.Revalidate = func(_ context.Context, key mercator.Key) error {
		revalidated = append(revalidated, key)
		return errors.New("upstream unavailable")
	}
	m.AddLayer(l)
	sched.Flush()

	before := a.gets
	key := mercator.TileKey(4, 4, 3)
	m.RevalidateTile(key)
	sched.Flush()
	if len(revalidated) != 1 || revalidated[0] != key {
		t.Fatalf("revalidated %v", revalidated)
	}
	if a.gets != before+1 {
		t.Fatalf("tile reloaded %d times", a.gets-before)
	}
}

func TestDestroy(t *testing.T) {
	m, _, stage, _ := newTestManager()
	m.AddLayer(layer.NewRaster("a/{z}/{x}/{y}"))
	m.Destroy()
	if len(m.Layers()) != 0 || stage.Len() != 0 {
		t.Fatal("layers survived Destroy")
	}
}
