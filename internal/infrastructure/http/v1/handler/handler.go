package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/jaennil/guide_helper/backend/prefetch/internal/usecase"
	"github.com/jaennil/guide_helper/backend/prefetch/pkg/logger"
)

const notFoundText = "tile not found"

type Handler struct {
	tileUseCase *usecase.TileUseCase
}

func NewHandler(uc *usecase.TileUseCase) *Handler {
	return &Handler{
		tileUseCase: uc,
	}
}

func loggerFrom(c *gin.Context) logger.Logger {
	return logger.FromContext(c.Request.Context())
}
