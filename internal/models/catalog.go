// internal/models/catalog.go
package models

import (
	"errors"
)

// ErrFoodNotFound is returned when a food name or id has no catalog entry.
var ErrFoodNotFound = errors.New("food not found in catalog")

type FoodEntry struct {
	ID   int    `json:"fdc_id"`
	Name string `json:"description"`
}

// FoodCatalog maps FoodData Central ids to food descriptions. Iteration
// order is insertion order and is the order embeddings are stored in.
type FoodCatalog struct {
	entries []FoodEntry
	byID    map[int]int
	byName  map[string]int
}

// NewFoodCatalog builds a catalog from entries, keeping the first
// occurrence of every id.
func NewFoodCatalog(entries []FoodEntry) *FoodCatalog {
	c := &FoodCatalog{
		entries: make([]FoodEntry, 0, len(entries)),
		byID:    make(map[int]int, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, dup := c.byID[e.ID]; dup {
			continue
		}
		pos := len(c.entries)
		c.entries = append(c.entries, e)
		c.byID[e.ID] = pos
		if _, seen := c.byName[e.Name]; !seen {
			c.byName[e.Name] = pos
		}
	}
	return c
}

func (c *FoodCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

// Entries returns a copy of the catalog in iteration order.
func (c *FoodCatalog) Entries() []FoodEntry {
	out := make([]FoodEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *FoodCatalog) At(pos int) FoodEntry {
	return c.entries[pos]
}

func (c *FoodCatalog) Name(id int) (string, bool) {
	pos, ok := c.byID[id]
	if !ok {
		return "", false
	}
	return c.entries[pos].Name, true
}

// IDByName resolves a description to its id. Descriptions are not unique
// in the source data; the first entry in iteration order wins.
func (c *FoodCatalog) IDByName(name string) (int, bool) {
	pos, ok := c.byName[name]
	if !ok {
		return 0, false
	}
	return c.entries[pos].ID, true
}

type NutrientEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type NutrientCatalog struct {
	entries []NutrientEntry
	byID    map[int]int
}

func NewNutrientCatalog(entries []NutrientEntry) *NutrientCatalog {
	c := &NutrientCatalog{
		entries: make([]NutrientEntry, 0, len(entries)),
		byID:    make(map[int]int, len(entries)),
	}
	for _, e := range entries {
		if _, dup := c.byID[e.ID]; dup {
			continue
		}
		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

func (c *NutrientCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

func (c *NutrientCatalog) Entries() []NutrientEntry {
	out := make([]NutrientEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *NutrientCatalog) Name(id int) (string, bool) {
	pos, ok := c.byID[id]
	if !ok {
		return "", false
	}
	return c.entries[pos].Name, true
}
