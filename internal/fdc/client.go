// internal/fdc/client.go
package fdc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mcp-nutrient-profile/internal/models"
	"mcp-nutrient-profile/internal/platform/logger"
)

const (
	DefaultBaseURL   = "https://api.nal.usda.gov/fdc"
	DefaultRate      = 5.0 // requests per second
	DefaultTimeout   = 30 * time.Second
	providerName     = "nutrient provider"
	maxErrorBodySize = 512
)

type Options struct {
	BaseURL       string
	APIKey        string
	RatePerSecond float64
	Timeout       time.Duration
}

// Client reads per-food nutrient listings from USDA FoodData Central.
type Client struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	apiKey      string
	log         *logger.Logger
}

func NewClient(opts Options, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("missing fooddata api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	rps := opts.RatePerSecond
	if rps <= 0 {
		rps = DefaultRate
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		log:         log.With("service", "FoodDataCentral"),
	}, nil
}

type foodResponse struct {
	FdcID         int `json:"fdcId"`
	FoodNutrients []struct {
		Nutrient *struct {
			ID int `json:"id"`
		} `json:"nutrient"`
		Amount *float64 `json:"amount"`
	} `json:"foodNutrients"`
}

// FetchNutrients returns the per-100 g amount of each requested nutrient for
// foodID. Nutrients the provider has no measurement for are Absent.
func (c *Client) FetchNutrients(ctx context.Context, foodID int, nutrients []models.Nutrient) (models.NutrientProfile, error) {
	food, err := c.getFood(ctx, foodID)
	if err != nil {
		return nil, models.NewFetchError(providerName, err)
	}

	profile := make(models.NutrientProfile, len(nutrients))
	for _, n := range nutrients {
		profile[n.Name] = models.Absent()
		for _, item := range food.FoodNutrients {
			if item.Nutrient == nil || item.Nutrient.ID != n.ID {
				continue
			}
			if item.Amount != nil {
				profile[n.Name] = models.Present(*item.Amount)
			}
			break
		}
	}
	return profile, nil
}

func (c *Client) getFood(ctx context.Context, foodID int) (*foodResponse, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/food/%d?%s", c.baseURL, foodID, url.Values{"api_key": {c.apiKey}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the api key; report the food id instead.
		return nil, fmt.Errorf("request for food %d failed: %w", foodID, unwrapURLError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("food %d: status %d: %s", foodID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var food foodResponse
	if err := json.NewDecoder(resp.Body).Decode(&food); err != nil {
		return nil, fmt.Errorf("failed to decode food %d: %w", foodID, err)
	}
	c.log.Debug("Fetched food nutrients", "fdc_id", foodID, "nutrients", len(food.FoodNutrients), "elapsed", time.Since(start).String())
	return &food, nil
}

func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
