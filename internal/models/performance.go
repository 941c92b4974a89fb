package models

import "time"

// Score bounds for quality and expressivity.
const (
	MinScore = 0.0
	MaxScore = 5.0
)

// PerformanceRecord is one append-only measurement of an exchange.
type PerformanceRecord struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"ownerId"`
	Model             ModelName `json:"model"`
	Language          string    `json:"language"`
	LatencyMs         float64   `json:"latencyMs"`
	QualityScore      float64   `json:"qualityScore"`
	ExpressivityScore float64   `json:"expressivityScore"`
	CreatedAt         time.Time `json:"createdAt"`
}

// PerformanceInput holds the fields supplied when appending a record.
type PerformanceInput struct {
	Model             ModelName `json:"model"`
	Language          string    `json:"language"`
	LatencyMs         float64   `json:"latencyMs"`
	QualityScore      float64   `json:"qualityScore"`
	ExpressivityScore float64   `json:"expressivityScore"`
}

// ModelStats is derived from PerformanceRecords; it is never persisted.
type ModelStats struct {
	Model           ModelName `json:"model"`
	AvgLatencyMs    float64   `json:"avgLatency"`
	AvgQuality      float64   `json:"avgQuality"`
	AvgExpressivity float64   `json:"avgExpressivity"`
	UsageCount      int       `json:"usageCount"`
}

// ValidScore reports whether v lies within [MinScore, MaxScore].
func ValidScore(v float64) bool {
	return v >= MinScore && v <= MaxScore
}
