package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"slippy/internal/scene"
)

func solid(w, h int, c color.Color) *scene.Asset {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return scene.NewAsset("solid", img)
}

func near(c color.Color, r, g, b uint8) bool {
	cr, cg, cb, _ := c.RGBA()
	d := func(a uint32, v uint8) bool {
		x := int(a>>8) - int(v)
		return x > -24 && x < 24
	}
	return d(cr, r) && d(cg, g) && d(cb, b)
}

func TestRenderDrawsImagesAndCircles(t *testing.T) {
	s := New(64, 32, "#FFFFFF")
	defer s.Close()

	stage := scene.NewGroup()
	layer := scene.NewGroup()
	layer.Scale = 0.5
	stage.AddChild(layer)

	img := scene.NewImage(solid(8, 8, color.RGBA{R: 255, A: 255}), 32, 32)
	layer.AddChild(img)

	dot := scene.NewCircle(4, color.RGBA{B: 255, A: 255})
	dot.X, dot.Y = 96, 32
	layer.AddChild(dot)

	if err := s.Render(stage); err != nil {
		t.Fatalf("Render: %v", err)
	}
	frame := s.Frame()
	if frame == nil {
		t.Fatal("no frame")
	}
	if !near(frame.At(8, 8), 255, 0, 0) {
		t.Fatalf("image pixel = %v", frame.At(8, 8))
	}
	if !near(frame.At(48, 16), 0, 0, 255) {
		t.Fatalf("circle pixel = %v", frame.At(48, 16))
	}
	if !near(frame.At(30, 28), 255, 255, 255) {
		t.Fatalf("background pixel = %v", frame.At(30, 28))
	}
	if s.Frames() != 1 {
		t.Fatalf("frames = %d", s.Frames())
	}
}

func TestRenderSourceRect(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if x < 4 {
				src.Set(x, y, color.RGBA{G: 255, A: 255})
			} else {
				src.Set(x, y, color.RGBA{R: 255, A: 255})
			}
		}
	}
	s := New(16, 16, "#000000")
	defer s.Close()
	stage := scene.NewGroup()
	n := scene.NewImage(scene.NewAsset("split", src), 16, 16)
	n.Src = image.Rect(4, 0, 8, 8)
	stage.AddChild(n)
	if err := s.Render(stage); err != nil {
		t.Fatal(err)
	}
	if !near(s.Frame().At(8, 8), 255, 0, 0) {
		t.Fatalf("expected the right half of the source, got %v", s.Frame().At(8, 8))
	}
}

func TestResizeAndPNG(t *testing.T) {
	s := New(10, 10, "#336699")
	if err := s.Resize(20, 12); err != nil {
		t.Fatal(err)
	}
	if w, h := s.Size(); w != 20 || h != 12 {
		t.Fatalf("size = %dx%d", w, h)
	}
	if err := s.Resize(0, 5); err == nil {
		t.Fatal("expected error for empty size")
	}
	if err := s.Render(scene.NewGroup()); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := s.EncodePNG(&buf); err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 20 {
		t.Fatalf("png width %d", img.Bounds().Dx())
	}
	s.Close()
	if err := s.Render(scene.NewGroup()); err != ErrClosed {
		t.Fatalf("render after close: %v", err)
	}
}
