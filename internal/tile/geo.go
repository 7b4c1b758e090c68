package tile

import (
	"math"

	"github.com/paulmach/orb"
)

// MaxLatitude is the latitude limit of the Web-Mercator projection.
const MaxLatitude = 85.05112878

// GeoToTile returns the tile containing lat/lon at zoom. ok is false for
// latitudes outside the Web-Mercator range and for longitudes outside
// [-180, 180]. Longitude 180 maps to the last column.
func GeoToTile(lat, lon float64, zoom uint32) (x, y uint32, ok bool) {
	if !(math.Abs(lat) <= MaxLatitude) || !(math.Abs(lon) <= 180) {
		return 0, 0, false
	}

	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180

	fx := math.Floor((lon + 180) / 360 * n)
	fy := math.Floor((1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n)
	if math.IsNaN(fx) || math.IsNaN(fy) || math.IsInf(fx, 0) || math.IsInf(fy, 0) {
		return 0, 0, false
	}

	return clampIndex(fx, n), clampIndex(fy, n), true
}

// TileToGeo returns the north-west corner of tile x/y.
func TileToGeo(x, y, zoom uint32) (lat, lon float64) {
	n := math.Exp2(float64(zoom))
	lon = float64(x)/n*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
	return lat, lon
}

// Extent returns the geographic bound covered by tile x/y.
func Extent(x, y, zoom uint32) orb.Bound {
	north, west := TileToGeo(x, y, zoom)
	south, east := TileToGeo(x+1, y+1, zoom)
	return orb.Bound{
		Min: orb.Point{west, south},
		Max: orb.Point{east, north},
	}
}

// IsTileInBounds reports whether tile x/y overlaps box with a positive area.
// Tiles sharing only an edge or a corner with the box are out. A box of zero
// width selects the column whose half-open range [west, east) holds it. A nil
// box covers the whole planet.
func IsTileInBounds(x, y, zoom uint32, box *BoundingBox) bool {
	if box == nil {
		return true
	}
	ext := Extent(x, y, zoom)

	if overlap(ext.Min.Lat(), ext.Max.Lat(), box.South, box.North) <= 0 {
		return false
	}
	if box.East == box.West {
		lon := box.West
		return ext.Min.Lon() <= lon && (lon < ext.Max.Lon() || (lon == 180 && ext.Max.Lon() == 180))
	}
	return overlap(ext.Min.Lon(), ext.Max.Lon(), box.West, box.East) > 0
}

func overlap(aMin, aMax, bMin, bMax float64) float64 {
	return math.Min(aMax, bMax) - math.Max(aMin, bMin)
}

func clampIndex(v, n float64) uint32 {
	if v < 0 {
		return 0
	}
	if v > n-1 {
		return uint32(n - 1)
	}
	return uint32(v)
}
