package store

import (
	"sync"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
)

type MapStore struct {
	m *TypedSyncMap
}

type mapKey struct {
	provider string
	z, x, y  uint32
}

type TypedSyncMap struct {
	m sync.Map
}

func (c *TypedSyncMap) Load(k mapKey) ([]byte, bool) {
	v, exists := c.m.Load(k)
	if !exists {
		return nil, false
	}
	return v.([]byte), exists
}

func (c *TypedSyncMap) Store(k mapKey, v []byte) {
	c.m.Store(k, v)
}

func NewMapStore() *MapStore {
	return &MapStore{
		m: &TypedSyncMap{},
	}
}

var _ TileStore = (*MapStore)(nil)

func keyOf(c tile.Coordinate) mapKey {
	return mapKey{provider: c.Provider, z: c.Zoom, x: c.X, y: c.Y}
}

func (c *MapStore) Exists(k tile.Coordinate) (bool, error) {
	_, exists := c.m.Load(keyOf(k))
	return exists, nil
}

func (c *MapStore) Get(k tile.Coordinate) ([]byte, bool, error) {
	v, exists := c.m.Load(keyOf(k))
	return v, exists, nil
}

func (c *MapStore) Set(k tile.Coordinate, v []byte) error {
	c.m.Store(keyOf(k), append([]byte(nil), v...))
	return nil
}
