// Package render rasterizes a scene graph with gg.
package render

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/gogpu/gg"

	"slippy/internal/scene"
)

var ErrClosed = errors.New("render: surface closed")

// Surface draws the scene into an offscreen RGBA frame.
type Surface struct {
	dc         *gg.Context
	background gg.RGBA
	buffers    map[*scene.Asset]*gg.ImageBuf
	frame      image.Image
	frames     int
}

// New creates a surface of w x h pixels cleared to background (a hex colour).
func New(w, h int, background string) *Surface {
	if w <= 0 {
		w = 1
	}
	if h <= 0 {
		h = 1
	}
	return &Surface{
		dc:         gg.NewContext(w, h),
		background: gg.Hex(background),
		buffers:    make(map[*scene.Asset]*gg.ImageBuf),
	}
}

func (s *Surface) Size() (int, int) { return s.dc.Width(), s.dc.Height() }

func (s *Surface) Resize(w, h int) error {
	if err := s.dc.Resize(w, h); err != nil {
		return fmt.Errorf("resize surface: %w", err)
	}
	return nil
}

// Render clears the frame and draws every live node under stage.
func (s *Surface) Render(stage *scene.Node) error {
	if s.buffers == nil {
		return ErrClosed
	}
	s.dc.ClearWithColor(s.background)
	w, h := float64(s.dc.Width()), float64(s.dc.Height())
	seen := make(map[*scene.Asset]struct{}, len(s.buffers))
	var errs []error

	stage.Walk(func(n *scene.Node, ox, oy, sc float64) bool {
		switch n.Kind {
		case scene.KindImage:
			dw, dh := n.W*sc, n.H*sc
			if n.Asset == nil || n.Asset.Image == nil || ox > w || oy > h || ox+dw < 0 || oy+dh < 0 {
				return true
			}
			buf := s.buffer(n.Asset)
			seen[n.Asset] = struct{}{}
			opts := gg.DrawImageOptions{
				X:         ox,
				Y:         oy,
				DstWidth:  dw,
				DstHeight: dh,
				Opacity:   1,
			}
			if !n.Src.Empty() {
				src := n.Src
				opts.SrcRect = &src
			}
			s.dc.DrawImageEx(buf, opts)
		case scene.KindCircle:
			r := n.Radius * sc
			if n.Color == nil || ox+r < 0 || oy+r < 0 || ox-r > w || oy-r > h {
				return true
			}
			s.dc.SetColor(n.Color)
			s.dc.DrawCircle(ox, oy, r)
			if err := s.dc.Fill(); err != nil {
				errs = append(errs, err)
			}
		}
		return true
	})

	for a := range s.buffers {
		if _, ok := seen[a]; !ok {
			delete(s.buffers, a)
		}
	}
	s.frame = s.dc.Image()
	s.frames++
	return errors.Join(errs...)
}

func (s *Surface) buffer(a *scene.Asset) *gg.ImageBuf {
	if buf, ok := s.buffers[a]; ok {
		return buf
	}
	buf := gg.ImageBufFromImage(a.Image)
	s.buffers[a] = buf
	return buf
}

// Frame returns the last rendered frame, or nil before the first Render.
func (s *Surface) Frame() image.Image { return s.frame }

// Frames is the number of frames rendered so far.
func (s *Surface) Frames() int { return s.frames }

func (s *Surface) EncodePNG(w io.Writer) error { return s.dc.EncodePNG(w) }

func (s *Surface) Close() error {
	s.buffers = nil
	return s.dc.Close()
}
