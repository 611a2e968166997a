// internal/nutrition/analyzer.go
package nutrition

import (
	"context"
	"encoding/json"
	"fmt"

	"mcp-nutrient-profile/internal/models"
	"mcp-nutrient-profile/internal/platform/logger"
)

// Analyzer produces the nutrient table and summary for a food list,
// memoizing results by CacheKey so unchanged lists do not hit the
// nutrient provider again.
type Analyzer struct {
	fetcher   NutrientFetcher
	foods     FoodLookup
	nutrients []models.Nutrient
	cache     Cache
	log       *logger.Logger
}

func NewAnalyzer(fetcher NutrientFetcher, foods FoodLookup, cache Cache, log *logger.Logger) *Analyzer {
	return &Analyzer{
		fetcher:   fetcher,
		foods:     foods,
		nutrients: NutrientsOfInterest,
		cache:     cache,
		log:       log.With("service", "NutritionAnalyzer"),
	}
}

func (a *Analyzer) Analyze(ctx context.Context, list models.FoodList) (*models.Analysis, error) {
	if !list.Timeframe.Valid() {
		return nil, ErrInvalidTimeframe
	}
	key := CacheKey(list)

	if a.cache != nil {
		raw, ok, err := a.cache.Get(ctx, key)
		if err != nil {
			a.log.Warn("Analysis cache read failed", "key", key, "error", err)
		} else if ok {
			var cached models.Analysis
			if err := json.Unmarshal(raw, &cached); err == nil {
				a.log.Debug("Analysis cache hit", "key", key)
				return &cached, nil
			}
			a.log.Warn("Discarding undecodable cache entry", "key", key)
		}
	}

	table, err := BuildNutrientTable(ctx, a.fetcher, a.foods, a.nutrients, list)
	if err != nil {
		return nil, err
	}
	result := &models.Analysis{Table: table, Summary: Summarize(table, list.Timeframe)}

	if a.cache != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode analysis: %w", err)
		}
		if err := a.cache.Set(ctx, key, raw); err != nil {
			a.log.Warn("Analysis cache write failed", "key", key, "error", err)
		}
	}
	a.log.Info("Analysis computed", "foods", len(list.Items), "timeframe", string(list.Timeframe))
	return result, nil
}
