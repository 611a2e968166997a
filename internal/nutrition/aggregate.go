// internal/nutrition/aggregate.go
package nutrition

import (
	"context"
	"fmt"

	"mcp-nutrient-profile/internal/models"
)

// NutrientFetcher returns per-100 g nutrient amounts for a catalog food.
type NutrientFetcher interface {
	FetchNutrients(ctx context.Context, foodID int, nutrients []models.Nutrient) (models.NutrientProfile, error)
}

// FoodLookup resolves a food description to its catalog id.
type FoodLookup interface {
	IDByName(name string) (int, bool)
}

// BuildNutrientTable fetches every listed food's nutrient profile and
// scales it to the listed amount. Foods are fetched one after another in
// list order. A food missing from the catalog aborts the whole table.
func BuildNutrientTable(ctx context.Context, fetcher NutrientFetcher, foods FoodLookup, nutrients []models.Nutrient, list models.FoodList) (*models.NutrientTable, error) {
	table := &models.NutrientTable{
		Timeframe: list.Timeframe,
		Nutrients: make([]string, len(nutrients)),
		Rows:      make([]models.NutrientRow, 0, len(list.Items)),
	}
	for i, n := range nutrients {
		table.Nutrients[i] = n.Name
	}

	for _, item := range list.Items {
		id, ok := foods.IDByName(item.Food)
		if !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrFoodNotFound, item.Food)
		}
		profile, err := fetcher.FetchNutrients(ctx, id, nutrients)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch nutrients for %q: %w", item.Food, err)
		}

		row := models.NutrientRow{Food: item.Food, Amounts: make([]models.Amount, len(nutrients))}
		for i, n := range nutrients {
			row.Amounts[i] = scale(profile[n.Name], item.Amount)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// scale converts a per-100 g amount to the amount in grams.
func scale(per100g models.Amount, grams float64) models.Amount {
	if !per100g.Valid {
		return per100g
	}
	return models.Present(per100g.Value * grams / 100)
}

// Summarize totals every nutrient column, counting absent cells as zero,
// and sets the totals against the recommended intake for tf.
func Summarize(table *models.NutrientTable, tf models.Timeframe) *models.NutritionSummary {
	summary := &models.NutritionSummary{
		Timeframe:        tf,
		TotalLabel:       "Total from food",
		RequirementLabel: fmt.Sprintf("Requirement (%s)", tf),
		Rows:             make([]models.SummaryRow, len(table.Nutrients)),
	}
	for i, name := range table.Nutrients {
		var total float64
		for _, row := range table.Rows {
			if a := row.Amounts[i]; a.Valid {
				total += a.Value
			}
		}
		rec, ok := DailyRecommendations[name]
		if !ok {
			rec = guidance("/")
		}
		summary.Rows[i] = models.SummaryRow{
			Nutrient:    name,
			Total:       fmt.Sprintf("%.2f", total),
			Requirement: rec.ForTimeframe(tf),
		}
	}
	return summary
}
