package pyramid

import (
	"image"

	"slippy/internal/mercator"
	"slippy/internal/scene"
)

// SceneTile is one materialized tile of a pyramid.
type SceneTile struct {
	// Coord is the raw coordinate, possibly in a repeated world copy.
	Coord mercator.Tile
	// Display is Coord normalized; content is requested for it.
	Display mercator.Tile
	Node    *scene.Node

	content *scene.Node
	seq     uint64
	// failed marks a tile whose last request errored; the next refresh
	// requests it again.
	failed bool
}

func newSceneTile(coord mercator.Tile) *SceneTile {
	return &SceneTile{
		Coord:   coord,
		Display: coord.Normalize(),
		Node:    scene.NewGroup(),
	}
}

// Content is the most recently applied content node, nil while loading.
func (st *SceneTile) Content() *scene.Node { return st.content }

func (st *SceneTile) setContent(n *scene.Node) {
	if st.content != nil {
		st.content.Destroy()
	}
	st.Node.AddChildAt(n, 0)
	st.content = n
}

// raster returns the tile's image content, if it has any.
func (st *SceneTile) raster() *scene.Node {
	if st.content == nil || st.content.Kind != scene.KindImage || st.content.Asset == nil {
		return nil
	}
	return st.content
}

// split creates the four children of st. When st shows an image, every child
// starts with the matching quarter of it stretched over the full tile.
func (st *SceneTile) split(tileSize float64) [4]*SceneTile {
	var out [4]*SceneTile
	img := st.raster()
	for i, coord := range st.Coord.Children() {
		child := newSceneTile(coord)
		if img != nil {
			child.setContent(section(img, coord.X&1, coord.Y&1, tileSize))
		}
		out[i] = child
	}
	return out
}

func section(img *scene.Node, qx, qy int, tileSize float64) *scene.Node {
	src := img.Src
	if src.Empty() {
		src = image.Rect(0, 0, img.Asset.Width, img.Asset.Height)
	}
	hw, hh := src.Dx()/2, src.Dy()/2
	min := image.Pt(src.Min.X+qx*hw, src.Min.Y+qy*hh)
	n := scene.NewImage(img.Asset, tileSize, tileSize)
	n.Src = image.Rectangle{Min: min, Max: min.Add(image.Pt(hw, hh))}
	return n
}

// absorb draws a child's image into its quadrant of st at half size.
func (st *SceneTile) absorb(child *SceneTile, tileSize float64) {
	img := child.raster()
	if img == nil {
		return
	}
	if st.content == nil || st.content.Kind != scene.KindGroup {
		st.setContent(scene.NewGroup())
	}
	n := img.Clone()
	n.Interactive = false
	n.W, n.H = tileSize/2, tileSize/2
	n.X = float64(child.Coord.X&1) * tileSize / 2
	n.Y = float64(child.Coord.Y&1) * tileSize / 2
	st.content.AddChild(n)
}

func (st *SceneTile) destroy() {
	st.Node.Destroy()
	st.content = nil
}
