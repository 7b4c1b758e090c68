package tile

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// BoundingBox is a geographic rectangle in degrees. West greater than east
// (crossing the antimeridian) is not supported.
type BoundingBox struct {
	North float64 `json:"north" validate:"gte=-90,lte=90,gtfield=South"`
	South float64 `json:"south" validate:"gte=-90,lte=90"`
	East  float64 `json:"east" validate:"gte=-180,lte=180,gtefield=West"`
	West  float64 `json:"west" validate:"gte=-180,lte=180"`
}

// ParseBoundingBox decodes the {north,south,east,west} JSON object.
func ParseBoundingBox(raw string) (*BoundingBox, error) {
	var fields map[string]*float64
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("invalid bounds json: %w", err)
	}
	for _, name := range []string{"north", "south", "east", "west"} {
		if v, ok := fields[name]; !ok || v == nil {
			return nil, fmt.Errorf("invalid bounds json: missing %q", name)
		}
	}
	return &BoundingBox{
		North: *fields["north"],
		South: *fields["south"],
		East:  *fields["east"],
		West:  *fields["west"],
	}, nil
}

func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

func (b BoundingBox) Center() (lat, lon float64) {
	c := b.Bound().Center()
	return c.Lat(), c.Lon()
}

// TileRange returns the inclusive x and y index range that can contain tiles
// touching the box at zoom. The range is widened by one tile on every side so
// that tiles sharing only an edge with the box are still candidates.
func (b BoundingBox) TileRange(zoom uint32) (minX, maxX, minY, maxY uint32) {
	north := clampLat(b.North)
	south := clampLat(b.South)

	minX, minY, _ = GeoToTile(north, b.West, zoom)
	maxX, maxY, _ = GeoToTile(south, b.East, zoom)

	last := uint32(1)<<zoom - 1
	if minX > 0 {
		minX--
	}
	if minY > 0 {
		minY--
	}
	if maxX < last {
		maxX++
	}
	if maxY < last {
		maxY++
	}
	return minX, maxX, minY, maxY
}

func clampLat(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(lat, MaxLatitude))
}
