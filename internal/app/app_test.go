package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"animalfaces-api/internal/model"
	"animalfaces-api/internal/vision"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	os.Exit(m.Run())
}

type mockPredictor struct {
	mock.Mock
}

func (m *mockPredictor) Predict(ctx context.Context, data []byte) (*vision.Result, error) {
	args := m.Called(ctx, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*vision.Result), args.Error(1)
}

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Get(ctx context.Context, digest string) (*vision.Result, bool, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*vision.Result), args.Bool(1), args.Error(2)
}

func (m *mockCache) Set(ctx context.Context, digest string, result *vision.Result) error {
	args := m.Called(ctx, digest, result)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event model.PredictionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(prediction *model.Prediction) error {
	return m.Called(prediction).Error(0)
}

func (m *mockRepo) GetByID(id string) (*model.Prediction, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Prediction), args.Error(1)
}

func (m *mockRepo) ListRecent(limit int, label string) ([]model.Prediction, error) {
	args := m.Called(limit, label)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Prediction), args.Error(1)
}

func (m *mockRepo) StatsByLabel() ([]model.LabelStat, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.LabelStat), args.Error(1)
}

var catResult = &vision.Result{
	Prediction: "Cat",
	Confidence: 91.25,
	Details:    map[string]float64{"Cat": 0.9125, "Dog": 0.05, "Wild": 0.0375},
}

func TestValidateContentType(t *testing.T) {
	for _, ct := range []string{"image/png", "image/jpeg", "IMAGE/WEBP", "image/png; charset=binary"} {
		assert.NoError(t, ValidateContentType(ct), ct)
	}
	for _, ct := range []string{"", "text/plain", "application/octet-stream", "imagex/png", "video/mp4"} {
		assert.ErrorIs(t, ValidateContentType(ct), ErrInvalidFileType, ct)
	}
}

func TestPredict_RejectsContentTypeWithoutInference(t *testing.T) {
	engine := new(mockPredictor)
	svc := NewPredictionService(engine, nil, nil, "v1", time.Second)

	_, err := svc.Predict(context.Background(), PredictInput{Filename: "a.txt", ContentType: "text/plain", Data: []byte("hi")})
	assert.ErrorIs(t, err, ErrInvalidFileType)
	engine.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredict_RejectsEmptyUpload(t *testing.T) {
	engine := new(mockPredictor)
	svc := NewPredictionService(engine, nil, nil, "v1", time.Second)

	_, err := svc.Predict(context.Background(), PredictInput{Filename: "a.png", ContentType: "image/png"})
	assert.ErrorIs(t, err, ErrEmptyUpload)
	engine.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestPredict_Success(t *testing.T) {
	engine := new(mockPredictor)
	publisher := new(mockPublisher)
	svc := NewPredictionService(engine, nil, publisher, "v1", time.Second)

	engine.On("Predict", mock.Anything, []byte("img")).Return(catResult, nil).Once()
	publisher.On("Publish", mock.Anything, mock.MatchedBy(func(e model.PredictionEvent) bool {
		return e.Label == "Cat" && e.Filename == "cat.png" && e.SizeBytes == 3 && e.ModelVersion == "v1" && !e.Cached
	})).Return(nil).Once()

	out, err := svc.Predict(context.Background(), PredictInput{Filename: "cat.png", ContentType: "image/png", Data: []byte("img")})
	require.NoError(t, err)
	assert.Equal(t, catResult, out.Result)
	assert.Equal(t, "cat.png", out.Filename)
	assert.Len(t, out.SHA256, 64)
	assert.NotEmpty(t, out.ID)
	assert.False(t, out.Cached)

	engine.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestPredict_CacheHitSkipsEngine(t *testing.T) {
	engine := new(mockPredictor)
	cache := new(mockCache)
	svc := NewPredictionService(engine, cache, nil, "v1", time.Second)

	cache.On("Get", mock.Anything, mock.AnythingOfType("string")).Return(catResult, true, nil).Once()

	out, err := svc.Predict(context.Background(), PredictInput{Filename: "cat.png", ContentType: "image/png", Data: []byte("img")})
	require.NoError(t, err)
	assert.True(t, out.Cached)
	assert.Equal(t, "Cat", out.Result.Prediction)
	engine.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
	cache.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
}

func TestPredict_CacheMissStoresResult(t *testing.T) {
	engine := new(mockPredictor)
	cache := new(mockCache)
	svc := NewPredictionService(engine, cache, nil, "v1", time.Second)

	var digest string
	cache.On("Get", mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { digest = args.String(1) }).
		Return(nil, false, nil).Once()
	engine.On("Predict", mock.Anything, mock.Anything).Return(catResult, nil).Once()
	cache.On("Set", mock.Anything, mock.AnythingOfType("string"), catResult).Return(errors.New("redis down")).Once()

	out, err := svc.Predict(context.Background(), PredictInput{Filename: "cat.png", ContentType: "image/png", Data: []byte("img")})
	require.NoError(t, err, "cache failures must not fail the request")
	assert.Equal(t, digest, out.SHA256)
	cache.AssertExpectations(t)
}

func TestPredict_CacheErrorFallsBackToEngine(t *testing.T) {
	engine := new(mockPredictor)
	cache := new(mockCache)
	svc := NewPredictionService(engine, cache, nil, "v1", time.Second)

	cache.On("Get", mock.Anything, mock.Anything).Return(nil, false, errors.New("redis down"))
	cache.On("Set", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	engine.On("Predict", mock.Anything, mock.Anything).Return(catResult, nil).Once()

	_, err := svc.Predict(context.Background(), PredictInput{Filename: "cat.png", ContentType: "image/png", Data: []byte("img")})
	require.NoError(t, err)
	engine.AssertExpectations(t)
}

func TestPredict_ErrorClassification(t *testing.T) {
	cases := []struct {
		name     string
		engine   error
		expected error
	}{
		{"invalid image", fmt.Errorf("%w: png: invalid format", vision.ErrInvalidImage), ErrInvalidImage},
		{"too large", fmt.Errorf("%w: 100000x100000 exceeds 89478485 pixels", vision.ErrImageTooLarge), ErrImageTooLarge},
		{"timeout", fmt.Errorf("%w: %w", vision.ErrTimeout, context.DeadlineExceeded), ErrPredictionTimeout},
		{"internal", fmt.Errorf("%w: onnx run failed", vision.ErrInference), ErrPredictionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := new(mockPredictor)
			publisher := new(mockPublisher)
			svc := NewPredictionService(engine, nil, publisher, "v1", time.Second)
			engine.On("Predict", mock.Anything, mock.Anything).Return(nil, tc.engine)

			_, err := svc.Predict(context.Background(), PredictInput{Filename: "x.png", ContentType: "image/png", Data: []byte("junk")})
			assert.ErrorIs(t, err, tc.expected)
			publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestPredict_AppliesTimeout(t *testing.T) {
	engine := new(mockPredictor)
	svc := NewPredictionService(engine, nil, nil, "v1", 50*time.Millisecond)

	engine.On("Predict", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)
		}).
		Return(catResult, nil)

	_, err := svc.Predict(context.Background(), PredictInput{Filename: "x.png", ContentType: "image/png", Data: []byte("img")})
	require.NoError(t, err)
}

func TestPredict_PublishFailureIsNotFatal(t *testing.T) {
	engine := new(mockPredictor)
	publisher := new(mockPublisher)
	svc := NewPredictionService(engine, nil, publisher, "v1", time.Second)

	engine.On("Predict", mock.Anything, mock.Anything).Return(catResult, nil)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker gone"))

	_, err := svc.Predict(context.Background(), PredictInput{Filename: "x.png", ContentType: "image/png", Data: []byte("img")})
	assert.NoError(t, err)
}

func TestHistoryService(t *testing.T) {
	repo := new(mockRepo)
	svc := NewHistoryService(repo)

	repo.On("ListRecent", 10, "Cat").Return([]model.Prediction{{ID: "a", Label: "Cat"}}, nil)
	list, err := svc.List(10, " Cat ")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	repo.On("GetByID", "missing").Return(nil, nil)
	_, err = svc.Get("missing")
	assert.ErrorIs(t, err, ErrPredictionNotFound)

	_, err = svc.Get("  ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	repo.On("GetByID", "a").Return(&model.Prediction{ID: "a"}, nil)
	got, err := svc.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	repo.On("StatsByLabel").Return([]model.LabelStat{{Label: "Cat", Count: 2, AvgConfidence: 90}}, nil)
	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[0].Count)
}

func TestDirectRecorder(t *testing.T) {
	repo := new(mockRepo)
	recorder := NewDirectRecorder(repo)

	repo.On("Create", mock.MatchedBy(func(p *model.Prediction) bool {
		return p.ID == "id-1" && p.Label == "Dog" && p.DetailScores()["Dog"] == 1
	})).Return(nil)

	err := recorder.Publish(context.Background(), model.PredictionEvent{ID: "id-1", Label: "Dog", Details: map[string]float64{"Dog": 1}})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
