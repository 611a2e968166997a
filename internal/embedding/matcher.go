// internal/embedding/matcher.go
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mcp-nutrient-profile/internal/models"
	"mcp-nutrient-profile/internal/platform/logger"
)

var ErrEmptyQuery = errors.New("search query is empty")

// Embedder turns text into embedding vectors, one per input.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Matcher maps free-text food queries to catalog foods.
type Matcher struct {
	embedder Embedder
	index    *Index
	log      *logger.Logger
}

func NewMatcher(embedder Embedder, index *Index, log *logger.Logger) *Matcher {
	return &Matcher{
		embedder: embedder,
		index:    index,
		log:      log.With("service", "FoodMatcher"),
	}
}

// Match embeds query and returns up to topN foods by descending score.
// Every call hits the embedding provider; query vectors are not cached.
func (m *Matcher) Match(ctx context.Context, query string, topN int) ([]models.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	vecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, models.NewFetchError("embedding provider", fmt.Errorf("expected 1 embedding, got %d", len(vecs)))
	}

	matches, err := m.index.Search(vecs[0], topN)
	if err != nil {
		return nil, models.NewFetchError("embedding provider", err)
	}
	m.log.Debug("Matched food query", "query", query, "top_n", topN, "results", Names(matches))
	return matches, nil
}

// Names returns just the food descriptions of matches, in order.
func Names(matches []models.Match) []string {
	out := make([]string, len(matches))
	for i, mt := range matches {
		out[i] = mt.Name
	}
	return out
}
