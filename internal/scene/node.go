// Package scene is the retained 2-D scene graph the engine places tiles in.
// A node has a position in its parent's space and a uniform scale applied to
// its own content and children.
package scene

import (
	"image"
	"image/color"
)

type Kind int

const (
	KindGroup Kind = iota
	KindImage
	KindCircle
)

// Asset is a loaded image. It is immutable once loaded and may be shared by
// any number of nodes.
type Asset struct {
	URL    string
	Image  image.Image
	Width  int
	Height int
}

func NewAsset(url string, img image.Image) *Asset {
	b := img.Bounds()
	return &Asset{URL: url, Image: img, Width: b.Dx(), Height: b.Dy()}
}

type Node struct {
	Kind  Kind
	X, Y  float64
	Scale float64

	// Image content: Src selects a region of Asset (empty means all of it),
	// drawn at W x H local units.
	Asset *Asset
	Src   image.Rectangle
	W, H  float64

	// Circle content, centred on the node position.
	Radius float64
	Color  color.Color

	// Interactive nodes are reported by HitTest.
	Interactive bool
	Properties  any
	LayerID     int

	parent    *Node
	children  []*Node
	destroyed bool
}

func NewGroup() *Node {
	return &Node{Kind: KindGroup, Scale: 1}
}

func NewImage(a *Asset, w, h float64) *Node {
	return &Node{Kind: KindImage, Scale: 1, Asset: a, W: w, H: h}
}

func NewCircle(radius float64, c color.Color) *Node {
	return &Node{Kind: KindCircle, Scale: 1, Radius: radius, Color: c}
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Children() []*Node { return n.children }

func (n *Node) Len() int { return len(n.children) }

func (n *Node) ChildAt(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

func (n *Node) Destroyed() bool { return n.destroyed }

// AddChild appends c, detaching it from any previous parent.
func (n *Node) AddChild(c *Node) {
	n.AddChildAt(c, len(n.children))
}

// AddChildAt inserts c at index i, clamped to the valid range.
func (n *Node) AddChildAt(c *Node, i int) {
	c.Detach()
	if i < 0 {
		i = 0
	}
	if i > len(n.children) {
		i = len(n.children)
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = c
	c.parent = n
}

func (n *Node) RemoveChild(c *Node) bool {
	for i, ch := range n.children {
		if ch == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return true
		}
	}
	return false
}

// RemoveChildAt removes and returns the child at index i.
func (n *Node) RemoveChildAt(i int) *Node {
	c := n.ChildAt(i)
	if c != nil {
		n.RemoveChild(c)
	}
	return c
}

func (n *Node) Detach() {
	if n.parent != nil {
		n.parent.RemoveChild(n)
	}
}

// Destroy detaches n and releases the whole subtree.
func (n *Node) Destroy() {
	n.Detach()
	n.destroy()
}

func (n *Node) destroy() {
	for _, c := range n.children {
		c.parent = nil
		c.destroy()
	}
	n.children = nil
	n.Asset = nil
	n.destroyed = true
}

// Clone copies n without its children or parent.
func (n *Node) Clone() *Node {
	c := *n
	c.parent = nil
	c.children = nil
	c.destroyed = false
	return &c
}

func (n *Node) scale() float64 {
	if n.Scale == 0 {
		return 1
	}
	return n.Scale
}

// worldTransform returns the global origin of n's local space and the
// accumulated scale including n's own.
func (n *Node) worldTransform() (ox, oy, s float64) {
	if n.parent == nil {
		return n.X, n.Y, n.scale()
	}
	px, py, ps := n.parent.worldTransform()
	return px + n.X*ps, py + n.Y*ps, ps * n.scale()
}

// ToGlobal converts a point in n's local space to global space.
func (n *Node) ToGlobal(x, y float64) (float64, float64) {
	ox, oy, s := n.worldTransform()
	return ox + x*s, oy + y*s
}

// ToLocal converts a global point into n's local space.
func (n *Node) ToLocal(x, y float64) (float64, float64) {
	ox, oy, s := n.worldTransform()
	return (x - ox) / s, (y - oy) / s
}

// GlobalPosition is the global location of n's origin.
func (n *Node) GlobalPosition() (float64, float64) {
	ox, oy, _ := n.worldTransform()
	return ox, oy
}

// HitTest returns the topmost interactive node under the global point.
func (n *Node) HitTest(x, y float64) *Node {
	ox, oy, ps := 0.0, 0.0, 1.0
	if n.parent != nil {
		ox, oy, ps = n.parent.worldTransform()
	}
	return n.hit(x, y, ox, oy, ps)
}

func (n *Node) hit(x, y, pox, poy, ps float64) *Node {
	if n.destroyed {
		return nil
	}
	ox, oy := pox+n.X*ps, poy+n.Y*ps
	s := ps * n.scale()
	for i := len(n.children) - 1; i >= 0; i-- {
		if h := n.children[i].hit(x, y, ox, oy, s); h != nil {
			return h
		}
	}
	if !n.Interactive {
		return nil
	}
	switch n.Kind {
	case KindImage:
		if x >= ox && y >= oy && x < ox+n.W*s && y < oy+n.H*s {
			return n
		}
	case KindCircle:
		dx, dy, r := x-ox, y-oy, n.Radius*s
		if dx*dx+dy*dy <= r*r {
			return n
		}
	}
	return nil
}

// Walk visits n and its subtree depth first, passing each node's global
// origin and accumulated scale. Returning false skips the node's children.
func (n *Node) Walk(fn func(node *Node, ox, oy, s float64) bool) {
	ox, oy, ps := 0.0, 0.0, 1.0
	if n.parent != nil {
		ox, oy, ps = n.parent.worldTransform()
	}
	n.walk(fn, ox, oy, ps)
}

func (n *Node) walk(fn func(*Node, float64, float64, float64) bool, pox, poy, ps float64) {
	if n.destroyed {
		return
	}
	ox, oy := pox+n.X*ps, poy+n.Y*ps
	s := ps * n.scale()
	if !fn(n, ox, oy, s) {
		return
	}
	for _, c := range n.children {
		c.walk(fn, ox, oy, s)
	}
}
