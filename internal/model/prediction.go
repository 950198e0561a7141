package model

import (
	"encoding/json"
	"time"
)

// Prediction is one persisted classification. Details holds the per-class
// scores as a JSON object.
type Prediction struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	SHA256       string    `gorm:"size:64;not null;index" json:"sha256"`
	Filename     string    `gorm:"size:255" json:"filename"`
	ContentType  string    `gorm:"size:128" json:"content_type"`
	SizeBytes    int64     `json:"size_bytes"`
	Label        string    `gorm:"size:128;not null;index" json:"label"`
	Confidence   float64   `json:"confidence"`
	Details      string    `gorm:"type:text" json:"-"`
	Cached       bool      `json:"cached"`
	LatencyMS    int64     `json:"latency_ms"`
	ModelVersion string    `gorm:"size:128;index" json:"model_version"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (Prediction) TableName() string {
	return "predictions"
}

// DetailScores returns the parsed per-class scores; nil on parse error.
func (p *Prediction) DetailScores() map[string]float64 {
	if p.Details == "" {
		return nil
	}
	var scores map[string]float64
	if err := json.Unmarshal([]byte(p.Details), &scores); err != nil {
		return nil
	}
	return scores
}

// PredictionEvent is published for every successful prediction and
// persisted by the prediction worker.
type PredictionEvent struct {
	ID           string             `json:"id"`
	SHA256       string             `json:"sha256"`
	Filename     string             `json:"filename"`
	ContentType  string             `json:"content_type"`
	SizeBytes    int64              `json:"size_bytes"`
	Label        string             `json:"label"`
	Confidence   float64            `json:"confidence"`
	Details      map[string]float64 `json:"details"`
	Cached       bool               `json:"cached"`
	LatencyMS    int64              `json:"latency_ms"`
	ModelVersion string             `json:"model_version"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Record converts the event into its storage row.
func (e PredictionEvent) Record() (*Prediction, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return nil, err
	}
	return &Prediction{
		ID:           e.ID,
		SHA256:       e.SHA256,
		Filename:     e.Filename,
		ContentType:  e.ContentType,
		SizeBytes:    e.SizeBytes,
		Label:        e.Label,
		Confidence:   e.Confidence,
		Details:      string(details),
		Cached:       e.Cached,
		LatencyMS:    e.LatencyMS,
		ModelVersion: e.ModelVersion,
		CreatedAt:    e.CreatedAt,
	}, nil
}

// LabelStat aggregates history for one label.
type LabelStat struct {
	Label         string  `json:"label"`
	Count         int64   `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}
