// internal/nutrition/session.go
package nutrition

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"mcp-nutrient-profile/internal/models"
)

var (
	ErrUnknownFood      = errors.New("food is not in the list")
	ErrInvalidAmount    = errors.New("amount must be a non-negative number")
	ErrInvalidTimeframe = errors.New("timeframe must be Day or Week")
	ErrEmptyFood        = errors.New("food name is required")
)

// Session is one user's working state: the food list and the timeframe its
// amounts are expressed in. It is safe for concurrent use.
type Session struct {
	ID       string
	Username string

	mu        sync.Mutex
	timeframe models.Timeframe
	items     []models.FoodAmount
	touched   time.Time
}

func NewSession(id, username string) *Session {
	return &Session{
		ID:        id,
		Username:  username,
		timeframe: models.Week,
		touched:   time.Now(),
	}
}

// AddFood appends food with amount 0. Adding a food already in the list is
// a no-op and reports false.
func (s *Session) AddFood(food string) (bool, error) {
	food = strings.TrimSpace(food)
	if food == "" {
		return false, ErrEmptyFood
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	if s.indexOf(food) >= 0 {
		return false, nil
	}
	s.items = append(s.items, models.FoodAmount{Food: food, Amount: 0})
	return true, nil
}

// SetAmount sets the grams per current timeframe for a listed food.
func (s *Session) SetAmount(food string, grams float64) error {
	if math.IsNaN(grams) || math.IsInf(grams, 0) || grams < 0 {
		return ErrInvalidAmount
	}
	food = strings.TrimSpace(food)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(food)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownFood, food)
	}
	s.items[i].Amount = grams
	s.touched = time.Now()
	return nil
}

func (s *Session) RemoveFood(food string) error {
	food = strings.TrimSpace(food)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(food)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrUnknownFood, food)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.touched = time.Now()
	return nil
}

// SetTimeframe switches the unit of every amount. Day to Week multiplies by
// 7, Week to Day divides by 7; the food eaten stays the same.
func (s *Session) SetTimeframe(tf models.Timeframe) error {
	if !tf.Valid() {
		return ErrInvalidTimeframe
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = time.Now()
	if tf == s.timeframe {
		return nil
	}
	for i := range s.items {
		if tf == models.Week {
			s.items[i].Amount *= 7
		} else {
			s.items[i].Amount /= 7
		}
	}
	s.timeframe = tf
	return nil
}

func (s *Session) Timeframe() models.Timeframe {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeframe
}

// Snapshot returns a copy of the list that later edits do not affect.
func (s *Session) Snapshot() models.FoodList {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.FoodAmount, len(s.items))
	copy(items, s.items)
	return models.FoodList{Timeframe: s.timeframe, Items: items}
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

func (s *Session) indexOf(food string) int {
	for i, it := range s.items {
		if it.Food == food {
			return i
		}
	}
	return -1
}
