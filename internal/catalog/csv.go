// internal/catalog/csv.go
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"mcp-nutrient-profile/internal/models"
)

// ExcludedCategories are food_category_id values left out of the catalog.
// They cover non-food and branded-snack categories that only add noise to
// search results.
var ExcludedCategories = map[int]bool{3: true, 21: true, 22: true, 24: true, 25: true, 26: true, 27: true}

// LoadFoodCatalog reads an FDC food.csv export.
func LoadFoodCatalog(path string) (*models.FoodCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open food csv: %w", err)
	}
	defer f.Close()
	return ReadFoodCatalog(f)
}

func ReadFoodCatalog(r io.Reader) (*models.FoodCatalog, error) {
	var entries []models.FoodEntry
	err := readRows(r, []string{"fdc_id", "description"}, func(row map[string]string) error {
		if cat := strings.TrimSpace(row["food_category_id"]); cat != "" {
			id, err := parseID(cat)
			if err != nil {
				return fmt.Errorf("bad food_category_id %q: %w", cat, err)
			}
			if ExcludedCategories[id] {
				return nil
			}
		}
		id, err := parseID(row["fdc_id"])
		if err != nil {
			return fmt.Errorf("bad fdc_id %q: %w", row["fdc_id"], err)
		}
		entries = append(entries, models.FoodEntry{ID: id, Name: row["description"]})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models.NewFoodCatalog(entries), nil
}

// LoadNutrientCatalog reads an FDC nutrient.csv export.
func LoadNutrientCatalog(path string) (*models.NutrientCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open nutrient csv: %w", err)
	}
	defer f.Close()
	return ReadNutrientCatalog(f)
}

func ReadNutrientCatalog(r io.Reader) (*models.NutrientCatalog, error) {
	var entries []models.NutrientEntry
	err := readRows(r, []string{"id", "name"}, func(row map[string]string) error {
		id, err := parseID(row["id"])
		if err != nil {
			return fmt.Errorf("bad nutrient id %q: %w", row["id"], err)
		}
		entries = append(entries, models.NutrientEntry{ID: id, Name: row["name"]})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models.NewNutrientCatalog(entries), nil
}

func readRows(r io.Reader, required []string, fn func(map[string]string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("failed to read csv header: %w", err)
	}
	cols := make([]string, len(header))
	index := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[i] = h
		index[h] = true
	}
	for _, name := range required {
		if !index[name] {
			return fmt.Errorf("csv is missing column %q", name)
		}
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		row := make(map[string]string, len(cols))
		for i, v := range rec {
			if i < len(cols) {
				row[cols[i]] = v
			}
		}
		if err := fn(row); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}

// parseID accepts integer ids, including ones written as floats ("3.0")
// by spreadsheet exports.
func parseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer")
	}
	return int(f), nil
}
