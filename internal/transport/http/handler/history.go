package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"animalfaces-api/internal/app"
	"animalfaces-api/internal/model"
	"animalfaces-api/internal/transport/http/middleware"
	"animalfaces-api/internal/transport/http/response"
)

type HistoryHandler struct {
	history *app.HistoryService
}

type predictionView struct {
	model.Prediction
	Details map[string]float64 `json:"details"`
}

func NewHistoryHandler(history *app.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func toView(p model.Prediction) predictionView {
	return predictionView{Prediction: p, Details: p.DetailScores()}
}

// audit records who read the history; subject is empty when auth is off.
func audit(c *gin.Context, action string) {
	log.Ctx(c.Request.Context()).Info().
		Str("subject", middleware.Subject(c)).
		Str("action", action).
		Msg("prediction history read")
}

func (h *HistoryHandler) List(c *gin.Context) {
	audit(c, "list")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	predictions, err := h.history.List(limit, c.Query("label"))
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("list predictions failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list predictions failed")
		return
	}
	views := make([]predictionView, 0, len(predictions))
	for _, p := range predictions {
		views = append(views, toView(p))
	}
	response.OK(c, gin.H{"predictions": views})
}

func (h *HistoryHandler) Get(c *gin.Context) {
	audit(c, "get")
	prediction, err := h.history.Get(c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrPredictionNotFound):
			response.Error(c, http.StatusNotFound, response.CodePredictionNotFound, err.Error())
		default:
			log.Ctx(c.Request.Context()).Error().Err(err).Msg("get prediction failed")
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get prediction failed")
		}
		return
	}
	response.OK(c, toView(*prediction))
}

func (h *HistoryHandler) Stats(c *gin.Context) {
	audit(c, "stats")
	stats, err := h.history.Stats()
	if err != nil {
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("prediction stats failed")
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "prediction stats failed")
		return
	}
	response.OK(c, gin.H{"labels": stats})
}
