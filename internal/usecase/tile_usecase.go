package usecase

import (
	"errors"

	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/store"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/metrics"
)

// TileUseCase serves tiles that were previously acquired. It never talks to
// an upstream provider.
type TileUseCase struct {
	store  store.TileStore
	hot    store.TileStore
	logger logger.Logger
}

// NewTileUseCase builds the read path. hot may be nil.
func NewTileUseCase(s store.TileStore, hot store.TileStore, l logger.Logger) *TileUseCase {
	return &TileUseCase{
		store:  s,
		hot:    hot,
		logger: l,
	}
}

func (uc *TileUseCase) GetTile(c tile.Coordinate) ([]byte, bool, error) {
	metrics.TilesRequests.Inc()

	if !c.Valid() {
		metrics.TilesNotFound.Inc()
		return nil, false, nil
	}

	if uc.hot != nil {
		data, ok, err := uc.hot.Get(c)
		if err != nil {
			uc.logger.Warn("hot cache lookup failed, reading from disk", "tile", c.String(), "error", err)
		} else if ok {
			metrics.CacheHits.Inc()
			return data, true, nil
		} else {
			metrics.CacheMisses.Inc()
		}
	}

	data, ok, err := uc.store.Get(c)
	if errors.Is(err, store.ErrInvalidCoordinate) {
		metrics.TilesNotFound.Inc()
		return nil, false, nil
	}
	if err != nil {
		uc.logger.Error("tile lookup failed", "tile", c.String(), "error", err)
		return nil, false, err
	}
	if !ok {
		metrics.TilesNotFound.Inc()
		return nil, false, nil
	}

	if uc.hot != nil {
		if err := uc.hot.Set(c, data); err != nil {
			uc.logger.Warn("failed to warm hot cache", "tile", c.String(), "error", err)
		}
	}
	return data, true, nil
}
