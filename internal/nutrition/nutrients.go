// internal/nutrition/nutrients.go
package nutrition

import (
	"fmt"

	"mcp-nutrient-profile/internal/models"
)

// NutrientsOfInterest are the tracked nutrients, in report order, with
// their FoodData Central nutrient ids.
var NutrientsOfInterest = []models.Nutrient{
	{Name: "Energy (kcal)", ID: 1008},
	{Name: "Total Fat", ID: 1004},
	{Name: "Saturated Fat", ID: 1258},
	{Name: "Monounsaturated Fat", ID: 1292},
	{Name: "Polyunsaturated Fat", ID: 1293},
	{Name: "Cholesterol", ID: 1253},
	{Name: "Carbohydrate", ID: 1005},
	{Name: "Fiber", ID: 1079},
	{Name: "Sugars", ID: 2000},
	{Name: "Protein", ID: 1003},
	{Name: "Calcium", ID: 1087},
	{Name: "Iron", ID: 1089},
	{Name: "Magnesium", ID: 1090},
	{Name: "Phosphorus", ID: 1091},
	{Name: "Potassium", ID: 1092},
	{Name: "Sodium", ID: 1093},
	{Name: "Zinc", ID: 1095},
	{Name: "Copper", ID: 1098},
	{Name: "Manganese", ID: 1101},
	{Name: "Selenium", ID: 1103},
	{Name: "Vitamin A", ID: 1106},
	{Name: "Thiamin (B1)", ID: 1165},
	{Name: "Riboflavin (B2)", ID: 1166},
	{Name: "Niacin (B3)", ID: 1167},
	{Name: "Pantothenic Acid (B5)", ID: 1170},
	{Name: "Vitamin B6", ID: 1175},
	{Name: "Folate (B9)", ID: 1177},
	{Name: "Vitamin B12", ID: 1178},
	{Name: "Vitamin C", ID: 1162},
	{Name: "Vitamin D", ID: 1110},
	{Name: "Vitamin E", ID: 1109},
	{Name: "Vitamin K", ID: 1185},
	{Name: "Choline", ID: 1180},
}

type RecommendationKind int

const (
	// Guidance is free text with no numeric target. It is never scaled by
	// timeframe: "~30g per day" stays as written in a weekly report.
	Guidance RecommendationKind = iota
	// Whole targets are shown without decimals.
	Whole
	// Fractional targets are shown with two decimals.
	Fractional
)

// Recommendation is a daily intake target.
type Recommendation struct {
	Kind  RecommendationKind
	Value float64
	Text  string
}

func whole(v float64) Recommendation      { return Recommendation{Kind: Whole, Value: v} }
func fractional(v float64) Recommendation { return Recommendation{Kind: Fractional, Value: v} }
func guidance(s string) Recommendation    { return Recommendation{Kind: Guidance, Text: s} }

// ForTimeframe renders the recommendation for a day or a week.
func (r Recommendation) ForTimeframe(tf models.Timeframe) string {
	if r.Kind == Guidance {
		return r.Text
	}
	v := r.Value
	if tf == models.Week {
		v *= 7
	}
	if r.Kind == Whole {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// DailyRecommendations holds the per-day target for every nutrient of interest.
var DailyRecommendations = map[string]Recommendation{
	"Energy (kcal)":         guidance("~2000 per day"),
	"Total Fat":             guidance("/"),
	"Saturated Fat":         guidance("/"),
	"Monounsaturated Fat":   guidance("/"),
	"Polyunsaturated Fat":   guidance("/"),
	"Cholesterol":           guidance("/"),
	"Carbohydrate":          guidance("/"),
	"Fiber":                 guidance("~30g per day"),
	"Sugars":                guidance("< 20g per day"),
	"Protein":               guidance(">0.8g per kg body weight, per day"),
	"Calcium":               whole(1000),
	"Iron":                  whole(8),
	"Magnesium":             whole(400),
	"Phosphorus":            whole(700),
	"Potassium":             whole(3000),
	"Sodium":                whole(1500),
	"Zinc":                  whole(11),
	"Copper":                fractional(0.9),
	"Manganese":             fractional(2.3),
	"Selenium":              whole(55),
	"Vitamin A":             whole(900),
	"Thiamin (B1)":          fractional(1.2),
	"Riboflavin (B2)":       fractional(1.3),
	"Niacin (B3)":           whole(16),
	"Pantothenic Acid (B5)": whole(5),
	"Vitamin B6":            fractional(1.3),
	"Folate (B9)":           whole(400),
	"Vitamin B12":           fractional(2.4),
	"Vitamin C":             whole(90),
	"Vitamin D":             whole(600),
	"Vitamin E":             whole(15),
	"Vitamin K":             whole(120),
	"Choline":               whole(550),
}
