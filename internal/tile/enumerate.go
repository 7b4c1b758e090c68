package tile

import (
	"iter"

	"github.com/paulmach/orb/maptile"
)

// Enumerate yields the tiles of zoom that touch box in row-major order
// (x outer, y inner). With a nil box every tile of the level is yielded.
func Enumerate(zoom uint32, box *BoundingBox) iter.Seq[maptile.Tile] {
	return func(yield func(maptile.Tile) bool) {
		last := uint32(1)<<zoom - 1
		minX, maxX, minY, maxY := uint32(0), last, uint32(0), last
		if box != nil {
			minX, maxX, minY, maxY = box.TileRange(zoom)
		}

		for x := minX; ; x++ {
			for y := minY; ; y++ {
				if IsTileInBounds(x, y, zoom, box) {
					if !yield(maptile.New(x, y, maptile.Zoom(zoom))) {
						return
					}
				}
				if y == maxY {
					break
				}
			}
			if x == maxX {
				break
			}
		}
	}
}

// Count returns the number of tiles Enumerate yields.
func Count(zoom uint32, box *BoundingBox) uint64 {
	if box == nil {
		n := uint64(1) << zoom
		return n * n
	}
	var total uint64
	for range Enumerate(zoom, box) {
		total++
	}
	return total
}
