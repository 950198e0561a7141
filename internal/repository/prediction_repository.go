package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"animalfaces-api/internal/model"
)

type PredictionRepository struct {
	db *gorm.DB
}

func NewPredictionRepository(db *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Create inserts the record; a redelivered record with the same id is ignored.
func (r *PredictionRepository) Create(prediction *model.Prediction) error {
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(prediction).Error; err != nil {
		return fmt.Errorf("create prediction failed: %w", err)
	}
	return nil
}

func (r *PredictionRepository) GetByID(id string) (*model.Prediction, error) {
	var prediction model.Prediction
	if err := r.db.Where("id = ?", id).First(&prediction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get prediction failed: %w", err)
	}
	return &prediction, nil
}

func (r *PredictionRepository) ListRecent(limit int, label string) ([]model.Prediction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := r.db.Order("created_at DESC").Limit(limit)
	if label != "" {
		query = query.Where("label = ?", label)
	}
	var predictions []model.Prediction
	if err := query.Find(&predictions).Error; err != nil {
		return nil, fmt.Errorf("list predictions failed: %w", err)
	}
	return predictions, nil
}

func (r *PredictionRepository) StatsByLabel() ([]model.LabelStat, error) {
	var stats []model.LabelStat
	err := r.db.Model(&model.Prediction{}).
		Select("label, COUNT(*) AS count, AVG(confidence) AS avg_confidence").
		Group("label").
		Order("count DESC").
		Scan(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("prediction stats failed: %w", err)
	}
	return stats, nil
}
