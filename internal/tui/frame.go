package tui

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/image/draw"
)

// darkLuma is the luminance below which a pixel is set in braille mode.
const darkLuma = 110

type layout struct {
	sidebarW int
	mapX     int
	mapY     int
	mapW     int
	mapH     int
	width    int
	height   int
}

// layout computes the screen areas. View and the mouse handling must agree
// on it.
func (m Model) layout() layout {
	sidebarWidth := 0
	if m.showSidebar {
		sidebarWidth = 28
	}
	headerHeight := 1
	footerHeight := 2
	contentHeight := max(4, m.height-headerHeight-footerHeight)
	contentWidth := max(10, m.width)

	mapWidth := contentWidth - sidebarWidth
	mapX := sidebarWidth
	if m.showSidebar {
		mapWidth--
		mapX++
	}
	return layout{
		sidebarW: sidebarWidth,
		mapX:     mapX,
		mapY:     headerHeight,
		mapW:     max(10, mapWidth),
		mapH:     contentHeight,
		width:    contentWidth,
		height:   contentHeight,
	}
}

// contains reports whether the screen cell is on the map.
func (l layout) contains(x, y int) bool {
	return x >= l.mapX && x < l.mapX+l.mapW && y >= l.mapY && y < l.mapY+l.mapH
}

// surfaceSize is the surface resolution backing the map area.
func (m Model) surfaceSize(l layout) (int, int) {
	return l.mapW * m.deps.CellWidth, l.mapH * 2 * m.deps.CellWidth
}

// cellToPixel maps a screen cell to the surface pixel under its centre.
func (m Model) cellToPixel(l layout, x, y int) (float64, float64) {
	cw := float64(m.deps.CellWidth)
	return (float64(x-l.mapX) + 0.5) * cw, (float64(y-l.mapY) + 0.5) * 2 * cw
}

func scaled(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if img != nil {
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	}
	return dst
}

// halfBlocks draws img into w x h cells, two pixels per cell.
func halfBlocks(img image.Image, w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	if img == nil {
		return blank(w, h)
	}
	px := scaled(img, w, h*2)
	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			top, bottom := px.RGBAAt(x, 2*y), px.RGBAAt(x, 2*y+1)
			b.WriteString(lipgloss.NewStyle().Foreground(hexColor(top)).Background(hexColor(bottom)).Render("▀"))
		}
		if y < h-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// brailleLines draws the dark pixels of img into w x h braille cells with a
// crosshair at the centre.
func brailleLines(img image.Image, w, h int) []string {
	br := newBrailleBuf(w, h)
	if img != nil {
		px := scaled(img, w*2, h*4)
		for y := 0; y < h*4; y++ {
			for x := 0; x < w*2; x++ {
				if luma(px.RGBAAt(x, y)) < darkLuma {
					br.setPixel(x, y)
				}
			}
		}
	}
	cx, cy := w, h*2
	br.drawLineMicro(cx-3, cy, cx+3, cy)
	br.drawLineMicro(cx, cy-3, cx, cy+3)
	return br.toLines()
}

func blank(w, h int) string {
	row := strings.Repeat(" ", w)
	rows := make([]string, h)
	for i := range rows {
		rows[i] = row
	}
	return strings.Join(rows, "\n")
}

func luma(c color.RGBA) int {
	return (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
}

func hexColor(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B))
}
