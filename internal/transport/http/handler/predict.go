package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"animalfaces-api/internal/app"
	"animalfaces-api/internal/transport/http/response"
)

// multipart framing allowance on top of the file size limit
const multipartOverhead = 1 << 20

type Predictor interface {
	Predict(ctx context.Context, input app.PredictInput) (*app.PredictOutput, error)
}

// PredictHandler serves POST /predict.
type PredictHandler struct {
	predictor         Predictor
	formField         string
	maxBytes          int64
	legacyErrorStatus bool
}

type PredictResponse struct {
	Prediction string             `json:"prediction"`
	Confidence float64            `json:"confidence"`
	Details    map[string]float64 `json:"details"`
	Filename   string             `json:"filename"`
	ID         string             `json:"id"`
	SHA256     string             `json:"sha256"`
	Cached     bool               `json:"cached"`
}

func NewPredictHandler(predictor Predictor, formField string, maxBytes int64, legacyErrorStatus bool) *PredictHandler {
	return &PredictHandler{
		predictor:         predictor,
		formField:         formField,
		maxBytes:          maxBytes,
		legacyErrorStatus: legacyErrorStatus,
	}
}

// Predict accepts one multipart file, checks its declared type, and returns the classification.
func (h *PredictHandler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)

	file, err := c.FormFile(h.formField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeTooLarge, "uploaded file is too large")
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeMissingFile, "missing file (form field '"+h.formField+"')")
		return
	}

	if file.Size > h.maxBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodeTooLarge, "uploaded file is too large")
		return
	}

	contentType := file.Header.Get("Content-Type")
	if err := app.ValidateContentType(contentType); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFileType, "Invalid file type. Please upload an image (JPG or PNG).")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to open uploaded file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "failed to read uploaded file")
		return
	}

	out, err := h.predictor.Predict(c.Request.Context(), app.PredictInput{
		Filename:    file.Filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, PredictResponse{
		Prediction: out.Result.Prediction,
		Confidence: out.Result.Confidence,
		Details:    out.Result.Details,
		Filename:   out.Filename,
		ID:         out.ID,
		SHA256:     out.SHA256,
		Cached:     out.Cached,
	})
}

func (h *PredictHandler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := response.CodePredictionFailed
	message := "Internal Server Error: prediction failed"

	switch {
	case errors.Is(err, app.ErrInvalidFileType):
		response.Error(c, http.StatusBadRequest, response.CodeInvalidFileType, err.Error())
		return
	case errors.Is(err, app.ErrEmptyUpload):
		response.Error(c, http.StatusBadRequest, response.CodeEmptyUpload, err.Error())
		return
	case errors.Is(err, app.ErrImageTooLarge):
		status = http.StatusRequestEntityTooLarge
		code = response.CodeImageTooLarge
		message = app.ErrImageTooLarge.Error()
	case errors.Is(err, app.ErrInvalidImage):
		status = http.StatusUnprocessableEntity
		code = response.CodeInvalidImage
		message = err.Error()
	case errors.Is(err, app.ErrPredictionTimeout):
		status = http.StatusGatewayTimeout
		code = response.CodePredictionTimeout
		message = "prediction timed out"
	}

	if h.legacyErrorStatus {
		status = http.StatusOK
	}
	log.Ctx(c.Request.Context()).Debug().Err(err).Int("status", status).Msg("predict request failed")
	response.Error(c, status, code, message)
}
