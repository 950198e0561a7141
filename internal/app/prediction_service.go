package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"animalfaces-api/internal/metrics"
	"animalfaces-api/internal/model"
	"animalfaces-api/internal/vision"
)

// Client-input faults.
var (
	ErrInvalidFileType = errors.New("invalid file type, please upload an image (JPG or PNG)")
	ErrEmptyUpload     = errors.New("uploaded file is empty")
	ErrInvalidImage    = errors.New("uploaded file is not a decodable image")
	ErrImageTooLarge   = errors.New("image dimensions are too large")
)

// Internal faults.
var (
	ErrPredictionTimeout = errors.New("prediction timed out")
	ErrPredictionFailed  = errors.New("prediction failed")
)

const publishTimeout = 2 * time.Second

type Predictor interface {
	Predict(ctx context.Context, data []byte) (*vision.Result, error)
}

type ResultCache interface {
	Get(ctx context.Context, digest string) (*vision.Result, bool, error)
	Set(ctx context.Context, digest string, result *vision.Result) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.PredictionEvent) error
}

type PredictionService struct {
	engine       Predictor
	cache        ResultCache
	publisher    EventPublisher
	modelVersion string
	timeout      time.Duration
}

type PredictInput struct {
	Filename    string
	ContentType string
	Data        []byte
}

type PredictOutput struct {
	ID       string
	Result   *vision.Result
	Filename string
	SHA256   string
	Cached   bool
	Latency  time.Duration
}

// NewPredictionService wires the engine with optional cache and publisher; nil disables either.
func NewPredictionService(engine Predictor, cache ResultCache, publisher EventPublisher, modelVersion string, timeout time.Duration) *PredictionService {
	return &PredictionService{
		engine:       engine,
		cache:        cache,
		publisher:    publisher,
		modelVersion: modelVersion,
		timeout:      timeout,
	}
}

// ValidateContentType accepts any declared media type under image/.
func ValidateContentType(contentType string) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	if !strings.HasPrefix(strings.ToLower(mediaType), "image/") {
		return ErrInvalidFileType
	}
	return nil
}

func (s *PredictionService) Predict(ctx context.Context, input PredictInput) (*PredictOutput, error) {
	if err := ValidateContentType(input.ContentType); err != nil {
		metrics.ObservePrediction(metrics.OutcomeInvalidType, "")
		return nil, err
	}
	if len(input.Data) == 0 {
		metrics.ObservePrediction(metrics.OutcomeInvalidImage, "")
		return nil, ErrEmptyUpload
	}

	start := time.Now()
	sum := sha256.Sum256(input.Data)
	digest := hex.EncodeToString(sum[:])
	logger := log.Ctx(ctx).With().Str("filename", input.Filename).Str("sha256", digest).Logger()

	result, cached := s.lookup(ctx, digest)
	if !cached {
		var err error
		result, err = s.run(ctx, input.Data)
		if err != nil {
			return nil, s.classify(ctx, err)
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, digest, result); err != nil {
				logger.Warn().Err(err).Msg("cache prediction failed")
			}
		}
	}

	out := &PredictOutput{
		ID:       uuid.NewString(),
		Result:   result,
		Filename: input.Filename,
		SHA256:   digest,
		Cached:   cached,
		Latency:  time.Since(start),
	}
	metrics.ObservePrediction(metrics.OutcomeOK, result.Prediction)
	logger.Info().
		Str("prediction", result.Prediction).
		Float64("confidence", result.Confidence).
		Bool("cached", cached).
		Dur("latency", out.Latency).
		Msg("prediction served")

	s.publish(ctx, input, out)
	return out, nil
}

func (s *PredictionService) lookup(ctx context.Context, digest string) (*vision.Result, bool) {
	if s.cache == nil {
		return nil, false
	}
	result, ok, err := s.cache.Get(ctx, digest)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("prediction cache lookup failed")
		return nil, false
	}
	metrics.ObserveCache(ok)
	return result, ok
}

func (s *PredictionService) run(ctx context.Context, data []byte) (*vision.Result, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	start := time.Now()
	result, err := s.engine.Predict(ctx, data)
	metrics.ObserveInference(time.Since(start))
	return result, err
}

// classify maps engine errors onto client or internal faults.
func (s *PredictionService) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, vision.ErrImageTooLarge):
		metrics.ObservePrediction(metrics.OutcomeTooLarge, "")
		return fmt.Errorf("%w: %v", ErrImageTooLarge, err)
	case errors.Is(err, vision.ErrInvalidImage):
		metrics.ObservePrediction(metrics.OutcomeInvalidImage, "")
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	case errors.Is(err, vision.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		metrics.ObservePrediction(metrics.OutcomeTimeout, "")
		log.Ctx(ctx).Error().Err(err).Msg("prediction timed out")
		return fmt.Errorf("%w: %v", ErrPredictionTimeout, err)
	default:
		metrics.ObservePrediction(metrics.OutcomeError, "")
		log.Ctx(ctx).Error().Err(err).Msg("prediction failed")
		return fmt.Errorf("%w: %v", ErrPredictionFailed, err)
	}
}

func (s *PredictionService) publish(ctx context.Context, input PredictInput, out *PredictOutput) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := model.PredictionEvent{
		ID:           out.ID,
		SHA256:       out.SHA256,
		Filename:     input.Filename,
		ContentType:  input.ContentType,
		SizeBytes:    int64(len(input.Data)),
		Label:        out.Result.Prediction,
		Confidence:   out.Result.Confidence,
		Details:      out.Result.Details,
		Cached:       out.Cached,
		LatencyMS:    out.Latency.Milliseconds(),
		ModelVersion: s.modelVersion,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("id", event.ID).Msg("publish prediction event failed")
	}
}
