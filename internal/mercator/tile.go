package mercator

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

const (
	zShift = 1 << 42
	xShift = 1 << 21
)

// Key packs a tile coordinate as z*2^42 + x*2^21 + y.
type Key int64

// Tile is a raw tile coordinate. X and Y may lie outside [0, 2^Z) for
// horizontally repeated copies of the world.
type Tile struct {
	X, Y, Z int
}

func TileKey(x, y, z int) Key {
	return Key(int64(z)*zShift + int64(x)*xShift + int64(y))
}

// KeyToTile inverts TileKey for valid tiles up to zoom 20.
func KeyToTile(k Key) Tile {
	v := int64(k)
	z := v / zShift
	x := (v - z*zShift) / xShift
	y := v - z*zShift - x*xShift
	return Tile{X: int(x), Y: int(y), Z: int(z)}
}

// ParentKeys returns the keys of every ancestor of k, from z-1 down to 0.
func ParentKeys(k Key) []Key {
	t := KeyToTile(k)
	keys := make([]Key, 0, t.Z)
	for z := t.Z - 1; z >= 0; z-- {
		shift := uint(t.Z - z)
		keys = append(keys, TileKey(t.X>>shift, t.Y>>shift, z))
	}
	return keys
}

func (t Tile) Key() Key { return TileKey(t.X, t.Y, t.Z) }

func (t Tile) String() string { return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y) }

func (t Tile) IsXValid() bool { return t.X >= 0 && t.X < 1<<uint(t.Z) }

func (t Tile) IsYValid() bool { return t.Y >= 0 && t.Y < 1<<uint(t.Z) }

// Normalize wraps x and y into [0, 2^z).
func (t Tile) Normalize() Tile {
	n := 1 << uint(t.Z)
	return Tile{X: wrap(t.X, n), Y: wrap(t.Y, n), Z: t.Z}
}

func wrap(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Parent returns the tile one level up. The shift is arithmetic so a
// repeated world copy keeps its own parents.
func (t Tile) Parent() (Tile, bool) {
	if t.Z <= 0 {
		return Tile{}, false
	}
	return Tile{X: t.X >> 1, Y: t.Y >> 1, Z: t.Z - 1}, true
}

// Children returns the four tiles one level down, column-major:
// (0,0), (0,1), (1,0), (1,1).
func (t Tile) Children() [4]Tile {
	var out [4]Tile
	for i := 0; i <= 1; i++ {
		for j := 0; j <= 1; j++ {
			out[i*2+j] = Tile{X: t.X*2 + i, Y: t.Y*2 + j, Z: t.Z + 1}
		}
	}
	return out
}

// Maptile converts the normalized tile to an orb maptile.
func (t Tile) Maptile() maptile.Tile {
	n := t.Normalize()
	return maptile.New(uint32(n.X), uint32(n.Y), maptile.Zoom(n.Z))
}

func FromMaptile(mt maptile.Tile) Tile {
	return Tile{X: int(mt.X), Y: int(mt.Y), Z: int(mt.Z)}
}
