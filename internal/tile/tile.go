// Package tile holds the Web-Mercator tile grid math: conversions between
// geographic coordinates and tile indices, bounding-box tests and the
// enumeration of tiles that cover a region at one zoom level.
package tile

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/maptile"
)

// MaxZoom is the deepest zoom level accepted by the acquisition tool.
const MaxZoom = 22

// Coordinate identifies one cacheable tile.
type Coordinate struct {
	Provider string
	Zoom     uint32
	X        uint32
	Y        uint32
	Locale   string
}

func FromMapTile(provider, locale string, t maptile.Tile) Coordinate {
	return Coordinate{
		Provider: provider,
		Zoom:     uint32(t.Z),
		X:        t.X,
		Y:        t.Y,
		Locale:   locale,
	}
}

func (c Coordinate) MapTile() maptile.Tile {
	return maptile.New(c.X, c.Y, maptile.Zoom(c.Zoom))
}

// Valid reports whether x and y lie inside the grid of the zoom level.
func (c Coordinate) Valid() bool {
	if c.Zoom > MaxZoom {
		return false
	}
	n := uint32(1) << c.Zoom
	return c.X < n && c.Y < n
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", c.Provider, c.Zoom, c.X, c.Y)
}

// Key is the identity of the coordinate including its locale.
func (c Coordinate) Key() string {
	return c.String() + "@" + c.Locale
}

// QuadKey interleaves the bits of x and y from bit zoom-1 down to bit 0,
// one base-4 digit per level.
func QuadKey(x, y, zoom uint32) string {
	buf := make([]byte, 0, zoom)
	for i := int(zoom) - 1; i >= 0; i-- {
		digit := (x>>uint(i))&1 + 2*((y>>uint(i))&1)
		buf = strconv.AppendUint(buf, uint64(digit), 10)
	}
	return string(buf)
}
