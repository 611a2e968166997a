package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
openai = "sk-file"
fooddata = "fdc-file"

[cookie]
name = "nutri"
key = "signing-key"
expiry_days = 7

[credentials.usernames.jsmith]
name = "John Smith"
email = "jsmith@example.com"
password = "$2a$10$abcdefghijklmnopqrstuv"

[embedding]
dimensions = 256
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OPENAI_API_KEY", "FDC_API_KEY", "OPENAI_BASE_URL", "OPENAI_EMBED_MODEL",
		"EMBED_DIMENSIONS", "FDC_BASE_URL", "FDC_RATE_PER_SECOND", "REDIS_ADDR", "COOKIE_KEY", "LOG_MODE"} {
		t.Setenv(k, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIKey != "sk-file" || cfg.FoodDataKey != "fdc-file" {
		t.Fatalf("keys: got %q %q", cfg.OpenAIKey, cfg.FoodDataKey)
	}
	if cfg.Cookie.Name != "nutri" || cfg.CookieExpiry() != 7*24*time.Hour {
		t.Fatalf("cookie: got %+v", cfg.Cookie)
	}
	u, ok := cfg.Credentials.Usernames["jsmith"]
	if !ok || u.Name != "John Smith" {
		t.Fatalf("credentials: got %+v", cfg.Credentials)
	}
	if cfg.Embedding.Dimensions != 256 {
		t.Fatalf("dimensions: want=256 got=%d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Fatalf("model default lost: %q", cfg.Embedding.Model)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("EMBED_DIMENSIONS", "500")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAIKey != "sk-env" {
		t.Fatalf("OpenAIKey: want=sk-env got=%q", cfg.OpenAIKey)
	}
	if cfg.Embedding.Dimensions != 500 {
		t.Fatalf("Dimensions: want=500 got=%d", cfg.Embedding.Dimensions)
	}
	if cfg.Cache.RedisAddr != "localhost:6379" {
		t.Fatalf("RedisAddr: got %q", cfg.Cache.RedisAddr)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FoodData.BaseURL != "https://api.nal.usda.gov/fdc" {
		t.Fatalf("BaseURL: got %q", cfg.FoodData.BaseURL)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("Validate: expected error for missing keys")
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	clearEnv(t)
	if _, err := Load(writeConfig(t, "openai = ")); err == nil {
		t.Fatalf("expected parse error")
	}
}
