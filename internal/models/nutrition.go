// internal/models/nutrition.go
package models

import (
	"encoding/json"
	"fmt"
)

type Timeframe string

const (
	Day  Timeframe = "Day"
	Week Timeframe = "Week"
)

func (t Timeframe) Valid() bool {
	return t == Day || t == Week
}

// AmountLabel is the column header used for amounts in this timeframe.
func (t Timeframe) AmountLabel() string {
	if t == Day {
		return "Daily Amount (g)"
	}
	return "Weekly Amount (g)"
}

type FoodAmount struct {
	Food   string  `json:"food"`
	Amount float64 `json:"amount_g"`
}

// FoodList is a user's foods with amounts expressed in grams per Timeframe.
type FoodList struct {
	Timeframe Timeframe    `json:"timeframe"`
	Items     []FoodAmount `json:"items"`
}

// Nutrient is a tracked nutrient and its FoodData Central nutrient id.
type Nutrient struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Amount is a nutrient quantity that may be absent. Absent means the
// provider has no measurement, which is different from a measured zero.
type Amount struct {
	Value float64
	Valid bool
}

func Present(v float64) Amount {
	return Amount{Value: v, Valid: true}
}

func Absent() Amount {
	return Amount{}
}

// Scale multiplies a present amount by f. Absent stays absent.
func (a Amount) Scale(f float64) Amount {
	if !a.Valid {
		return a
	}
	return Amount{Value: a.Value * f, Valid: true}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.Value)
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = Amount{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = Present(v)
	return nil
}

// NutrientProfile maps nutrient name to amount per 100 g.
type NutrientProfile map[string]Amount

type NutrientRow struct {
	Food    string   `json:"food"`
	Amounts []Amount `json:"amounts"`
}

// NutrientTable holds per-food nutrient amounts scaled to the listed quantity.
// Amounts[i] lines up with Nutrients[i].
type NutrientTable struct {
	Timeframe Timeframe     `json:"timeframe"`
	Nutrients []string      `json:"nutrients"`
	Rows      []NutrientRow `json:"rows"`
}

type SummaryRow struct {
	Nutrient    string `json:"nutrient"`
	Total       string `json:"total_from_food"`
	Requirement string `json:"requirement"`
}

type NutritionSummary struct {
	Timeframe        Timeframe    `json:"timeframe"`
	TotalLabel       string       `json:"total_label"`
	RequirementLabel string       `json:"requirement_label"`
	Rows             []SummaryRow `json:"rows"`
}

type Analysis struct {
	Table   *NutrientTable    `json:"nutrient_table"`
	Summary *NutritionSummary `json:"summary"`
}

// Match is a catalog food ranked against a search query.
type Match struct {
	FoodID int     `json:"fdc_id"`
	Name   string  `json:"description"`
	Score  float64 `json:"score"`
}

// FetchError reports a failed call to an external data provider.
type FetchError struct {
	Provider string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %v", e.Provider, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func NewFetchError(provider string, err error) *FetchError {
	return &FetchError{Provider: provider, Err: err}
}
