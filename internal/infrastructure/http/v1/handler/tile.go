package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/tile"
)

// Tile serves GET /tiles/:provider/:z/:x/:y where y carries the ".png" suffix.
func (h *Handler) Tile(c *gin.Context) {
	l := loggerFrom(c)

	provider := c.Param("provider")
	strZ := c.Param("z")
	strX := c.Param("x")
	strY, ok := strings.CutSuffix(c.Param("y"), ".png")
	if !ok {
		c.String(http.StatusNotFound, notFoundText)
		return
	}

	z, err := strconv.ParseUint(strZ, 10, 32)
	if err != nil {
		l.Warn("invalid z parameter", "z", strZ, "error", err)
		c.String(http.StatusBadRequest, "z should be a non-negative integer")
		return
	}

	x, err := strconv.ParseUint(strX, 10, 32)
	if err != nil {
		l.Warn("invalid x parameter", "x", strX, "error", err)
		c.String(http.StatusBadRequest, "x should be a non-negative integer")
		return
	}

	y, err := strconv.ParseUint(strY, 10, 32)
	if err != nil {
		l.Warn("invalid y parameter", "y", strY, "error", err)
		c.String(http.StatusBadRequest, "y should be a non-negative integer")
		return
	}

	coord := tile.Coordinate{Provider: provider, Zoom: uint32(z), X: uint32(x), Y: uint32(y)}

	data, found, err := h.tileUseCase.GetTile(coord)
	if err != nil {
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "failed to read tile")
		return
	}
	if !found {
		c.String(http.StatusNotFound, notFoundText)
		return
	}

	c.Data(http.StatusOK, "image/png", data)
}
