// internal/embedding/index.go
package embedding

import (
	"errors"
	"fmt"
	"slices"

	"mcp-nutrient-profile/internal/models"
)

// ErrMisaligned means vectors and catalog entries do not pair up one to one.
var ErrMisaligned = errors.New("embedding index is misaligned with food catalog")

// Entry bundles a catalog food with its embedding so the pairing survives
// any reordering or filtering.
type Entry struct {
	FoodID int
	Name   string
	Vector []float32
}

type Index struct {
	entries []Entry
	dim     int
}

// NewIndex pairs vectors with catalog entries by position. vectors[i] must
// be the embedding of the i-th catalog entry.
func NewIndex(catalog *models.FoodCatalog, vectors [][]float32) (*Index, error) {
	if catalog.Len() != len(vectors) {
		return nil, fmt.Errorf("%w: %d catalog entries, %d vectors", ErrMisaligned, catalog.Len(), len(vectors))
	}
	entries := make([]Entry, len(vectors))
	for i, food := range catalog.Entries() {
		entries[i] = Entry{FoodID: food.ID, Name: food.Name, Vector: vectors[i]}
	}
	return FromEntries(entries)
}

func FromEntries(entries []Entry) (*Index, error) {
	ix := &Index{entries: entries}
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("%w: food %d has no embedding", ErrMisaligned, e.FoodID)
		}
		if i == 0 {
			ix.dim = len(e.Vector)
			continue
		}
		if len(e.Vector) != ix.dim {
			return nil, fmt.Errorf("%w: food %d has dimension %d, want %d", ErrMisaligned, e.FoodID, len(e.Vector), ix.dim)
		}
	}
	return ix, nil
}

// CheckCatalog verifies the index covers exactly the catalog, in order
// and under the same descriptions.
func (ix *Index) CheckCatalog(catalog *models.FoodCatalog) error {
	if catalog.Len() != len(ix.entries) {
		return fmt.Errorf("%w: %d catalog entries, %d vectors", ErrMisaligned, catalog.Len(), len(ix.entries))
	}
	for i, e := range ix.entries {
		if food := catalog.At(i); food.ID != e.FoodID {
			return fmt.Errorf("%w: position %d holds food %d, catalog has %d", ErrMisaligned, i, e.FoodID, food.ID)
		}
		if name, _ := catalog.Name(e.FoodID); name != e.Name {
			return fmt.Errorf("%w: food %d is %q in the index, %q in the catalog", ErrMisaligned, e.FoodID, e.Name, name)
		}
	}
	return nil
}

func (ix *Index) Len() int { return len(ix.entries) }
func (ix *Index) Dim() int { return ix.dim }

func (ix *Index) Entries() []Entry {
	return ix.entries
}

// Search scores every entry by dot product with query and returns the topN
// best, highest first. Equal scores keep catalog order.
func (ix *Index) Search(query []float32, topN int) ([]models.Match, error) {
	if len(ix.entries) > 0 && len(query) != ix.dim {
		return nil, fmt.Errorf("query has dimension %d, index has %d", len(query), ix.dim)
	}
	if topN <= 0 {
		return []models.Match{}, nil
	}

	scored := make([]models.Match, len(ix.entries))
	for i, e := range ix.entries {
		scored[i] = models.Match{FoodID: e.FoodID, Name: e.Name, Score: dot(e.Vector, query)}
	}
	slices.SortStableFunc(scored, func(a, b models.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if topN < len(scored) {
		scored = scored[:topN]
	}
	return scored, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
