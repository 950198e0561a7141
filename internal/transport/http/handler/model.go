package handler

import (
	"github.com/gin-gonic/gin"

	"animalfaces-api/internal/transport/http/response"
	"animalfaces-api/internal/vision"
)

type ModelHandler struct {
	engine  *vision.Engine
	version string
}

func NewModelHandler(engine *vision.Engine, version string) *ModelHandler {
	return &ModelHandler{engine: engine, version: version}
}

func (h *ModelHandler) Info(c *gin.Context) {
	opts := h.engine.Options()
	response.OK(c, gin.H{
		"version":       h.version,
		"labels":        h.engine.Labels(),
		"input_shape":   h.engine.InputShape(),
		"image_size":    opts.ImageSize,
		"layout":        opts.Layout,
		"normalization": opts.Normalization,
		"max_pixels":    opts.MaxPixels,
		"fingerprint":   opts.Fingerprint(),
	})
}
