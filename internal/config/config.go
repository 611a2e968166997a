// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"mcp-nutrient-profile/internal/platform/envutil"
)

// Config mirrors the secrets file: API keys at the top level, the login
// cookie and credentials in their own tables.
type Config struct {
	OpenAIKey   string       `toml:"openai"`
	FoodDataKey string       `toml:"fooddata"`
	Cookie      CookieConfig `toml:"cookie"`
	Credentials Credentials  `toml:"credentials"`
	Embedding   Embedding    `toml:"embedding"`
	FoodData    FoodDataAPI  `toml:"fooddata_api"`
	Cache       Cache        `toml:"cache"`
	Log         Log          `toml:"log"`
}

type CookieConfig struct {
	Name       string `toml:"name"`
	Key        string `toml:"key"`
	ExpiryDays int    `toml:"expiry_days"`
}

type Credentials struct {
	Usernames map[string]User `toml:"usernames"`
}

type User struct {
	Name     string `toml:"name"`
	Email    string `toml:"email"`
	Password string `toml:"password"` // bcrypt hash
}

type Embedding struct {
	BaseURL    string `toml:"base_url"`
	Model      string `toml:"model"`
	Dimensions int    `toml:"dimensions"`
	TimeoutSec int    `toml:"timeout_seconds"`
}

type FoodDataAPI struct {
	BaseURL       string  `toml:"base_url"`
	RatePerSecond float64 `toml:"rate_per_second"`
	TimeoutSec    int     `toml:"timeout_seconds"`
}

type Cache struct {
	RedisAddr  string `toml:"redis_addr"`
	TTLMinutes int    `toml:"ttl_minutes"`
	MaxEntries int    `toml:"max_entries"`
}

type Log struct {
	Mode string `toml:"mode"`
}

func Default() *Config {
	return &Config{
		Cookie: CookieConfig{
			Name:       "nutrient_profile_auth",
			ExpiryDays: 30,
		},
		Embedding: Embedding{
			BaseURL:    "https://api.openai.com",
			Model:      "text-embedding-3-small",
			Dimensions: 500,
			TimeoutSec: 30,
		},
		FoodData: FoodDataAPI{
			BaseURL:       "https://api.nal.usda.gov/fdc",
			RatePerSecond: 5,
			TimeoutSec:    30,
		},
		Cache: Cache{
			TTLMinutes: 60,
			MaxEntries: 256,
		},
		Log: Log{Mode: "dev"},
	}
}

// Load reads a TOML config file on top of the defaults and applies
// environment overrides. A missing file is not an error; a .env file in
// the working directory is loaded when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.OpenAIKey = envutil.String("OPENAI_API_KEY", c.OpenAIKey)
	c.FoodDataKey = envutil.String("FDC_API_KEY", c.FoodDataKey)
	c.Embedding.BaseURL = envutil.String("OPENAI_BASE_URL", c.Embedding.BaseURL)
	c.Embedding.Model = envutil.String("OPENAI_EMBED_MODEL", c.Embedding.Model)
	c.Embedding.Dimensions = envutil.Int("EMBED_DIMENSIONS", c.Embedding.Dimensions)
	c.FoodData.BaseURL = envutil.String("FDC_BASE_URL", c.FoodData.BaseURL)
	c.FoodData.RatePerSecond = envutil.Float("FDC_RATE_PER_SECOND", c.FoodData.RatePerSecond)
	c.Cache.RedisAddr = envutil.String("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cookie.Key = envutil.String("COOKIE_KEY", c.Cookie.Key)
	c.Log.Mode = envutil.String("LOG_MODE", c.Log.Mode)
}

// Validate checks the settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIKey == "" {
		errs = append(errs, errors.New("missing openai api key"))
	}
	if c.FoodDataKey == "" {
		errs = append(errs, errors.New("missing fooddata api key"))
	}
	if c.Cookie.Key == "" {
		errs = append(errs, errors.New("missing cookie signing key"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("invalid embedding dimensions %d", c.Embedding.Dimensions))
	}
	return errors.Join(errs...)
}

func (c *Config) CookieExpiry() time.Duration {
	return time.Duration(c.Cookie.ExpiryDays) * 24 * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}
