package app

import (
	"context"
	"errors"
	"strings"

	"animalfaces-api/internal/model"
)

var (
	ErrPredictionNotFound = errors.New("prediction not found")
	ErrInvalidInput       = errors.New("invalid input")
)

type PredictionRepository interface {
	Create(prediction *model.Prediction) error
	GetByID(id string) (*model.Prediction, error)
	ListRecent(limit int, label string) ([]model.Prediction, error)
	StatsByLabel() ([]model.LabelStat, error)
}

// HistoryService reads persisted predictions.
type HistoryService struct {
	repo PredictionRepository
}

func NewHistoryService(repo PredictionRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

func (s *HistoryService) List(limit int, label string) ([]model.Prediction, error) {
	return s.repo.ListRecent(limit, strings.TrimSpace(label))
}

func (s *HistoryService) Get(id string) (*model.Prediction, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}
	prediction, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if prediction == nil {
		return nil, ErrPredictionNotFound
	}
	return prediction, nil
}

func (s *HistoryService) Stats() ([]model.LabelStat, error) {
	return s.repo.StatsByLabel()
}

// DirectRecorder persists events synchronously when no broker is configured.
type DirectRecorder struct {
	repo PredictionRepository
}

func NewDirectRecorder(repo PredictionRepository) *DirectRecorder {
	return &DirectRecorder{repo: repo}
}

func (r *DirectRecorder) Publish(_ context.Context, event model.PredictionEvent) error {
	record, err := event.Record()
	if err != nil {
		return err
	}
	return r.repo.Create(record)
}
