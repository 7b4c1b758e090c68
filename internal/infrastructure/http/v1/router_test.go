package v1

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/repository/store"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/usecase"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
)

func TestRouterServesMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := handler.NewHandler(usecase.NewTileUseCase(store.NewMapStore(), nil, logger.NewNoOp()))
	r := NewRouter(h, logger.NewNoOp(), false)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tiles/osm/0/0/0.png", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("tile status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "tiles_requests_total") {
		t.Fatalf("metrics endpoint missing tile counters")
	}
}
