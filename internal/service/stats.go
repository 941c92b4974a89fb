package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/raphaelgruber/voxchat/internal/models"
)

// Aggregator appends performance records and folds them into per-model statistics.
type Aggregator struct {
	store  Store
	owner  string
	logger *slog.Logger
}

// NewAggregator creates an aggregator that records outcomes for owner.
func NewAggregator(store Store, owner string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, owner: owner, logger: logger}
}

// RecordOutcome validates and appends one performance record.
// Scores outside [0,5] fail with ErrInvalidScore; nothing is written.
func (a *Aggregator) RecordOutcome(ctx context.Context, model models.ModelName, language string, latencyMs, quality, expressivity float64) (*models.PerformanceRecord, error) {
	name, err := models.ParseModelName(string(model))
	if err != nil {
		return nil, err
	}
	if !models.ValidScore(quality) {
		return nil, fmt.Errorf("%w: quality %v", ErrInvalidScore, quality)
	}
	if !models.ValidScore(expressivity) {
		return nil, fmt.Errorf("%w: expressivity %v", ErrInvalidScore, expressivity)
	}
	if math.IsNaN(latencyMs) || latencyMs < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLatency, latencyMs)
	}

	rec, err := a.store.CreatePerformance(ctx, a.owner, models.PerformanceInput{
		Model:             name,
		Language:          language,
		LatencyMs:         latencyMs,
		QualityScore:      quality,
		ExpressivityScore: expressivity,
	})
	if err != nil {
		a.logger.Error("record outcome failed", "model", name, "error", err)
		return nil, persistenceError("create performance", err)
	}
	return rec, nil
}

// ComputeStats fetches every record of ownerID and folds them from scratch.
func (a *Aggregator) ComputeStats(ctx context.Context, ownerID string) ([]models.ModelStats, error) {
	recs, err := a.store.ListPerformance(ctx, ownerID)
	if err != nil {
		a.logger.Error("list performance failed", "error", err)
		return nil, persistenceError("list performance", err)
	}
	return FoldStats(recs), nil
}

type statsAcc struct {
	latency, quality, expressivity float64
	count                          int
}

// FoldStats groups records by model and averages them with sum/count
// accumulation. The result has one entry per model seen, sorted by name.
func FoldStats(records []models.PerformanceRecord) []models.ModelStats {
	accs := make(map[models.ModelName]*statsAcc)
	for _, r := range records {
		acc, ok := accs[r.Model]
		if !ok {
			acc = &statsAcc{}
			accs[r.Model] = acc
		}
		acc.latency += r.LatencyMs
		acc.quality += r.QualityScore
		acc.expressivity += r.ExpressivityScore
		acc.count++
	}

	out := make([]models.ModelStats, 0, len(accs))
	for name, acc := range accs {
		n := float64(acc.count)
		out = append(out, models.ModelStats{
			Model:           name,
			AvgLatencyMs:    acc.latency / n,
			AvgQuality:      acc.quality / n,
			AvgExpressivity: acc.expressivity / n,
			UsageCount:      acc.count,
		})
	}
	slices.SortFunc(out, func(a, b models.ModelStats) int {
		return cmp.Compare(a.Model, b.Model)
	})
	return out
}

// Scores are the quality and expressivity of one exchange.
type Scores struct {
	Quality      float64
	Expressivity float64
}

// Scorer rates an exchange.
type Scorer interface {
	Score(ctx context.Context, model models.ModelName, latencyMs float64) Scores
}

// PlaceholderScorer is NOT an evaluation. It draws both scores uniformly from
// [3,5] so the statistics have something to show until a real evaluator exists.
type PlaceholderScorer struct {
	// Float returns a value in [0,1). Defaults to math/rand/v2.
	Float func() float64
}

// Score returns two independent placeholder draws.
func (p PlaceholderScorer) Score(context.Context, models.ModelName, float64) Scores {
	f := p.Float
	if f == nil {
		f = rand.Float64
	}
	return Scores{
		Quality:      3 + 2*f(),
		Expressivity: 3 + 2*f(),
	}
}
