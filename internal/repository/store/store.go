package store

import (
	"errors"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
)

var (
	// ErrStoreWrite wraps every failure to persist a tile.
	ErrStoreWrite = errors.New("store write failed")

	ErrInvalidCoordinate = errors.New("invalid tile coordinate")
)

// TileStore is a cache of tile images keyed by provider, zoom, x and y.
// The locale of a coordinate is not part of the key.
type TileStore interface {
	Exists(tile.Coordinate) (bool, error)
	Get(tile.Coordinate) ([]byte, bool, error)
	Set(tile.Coordinate, []byte) error
}
