package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFrom_Valid(t *testing.T) {
	path := writeConfig(t, `{"api_key": "sk-test", "default_model": "some/model"}`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want %q", cfg.APIKey, "sk-test")
	}
	if cfg.DefaultModel != "some/model" {
		t.Errorf("DefaultModel = %q, want %q", cfg.DefaultModel, "some/model")
	}
	if cfg.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("BaseURL default = %q", cfg.BaseURL)
	}
	if cfg.SummaryModel == "" {
		t.Error("SummaryModel default not applied")
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.2 {
		t.Errorf("Temperature default = %v, want 0.2", cfg.Temperature)
	}
}

func TestLoadFrom_ExplicitValuesKept(t *testing.T) {
	path := writeConfig(t, `{"api_key": "k", "base_url": "http://localhost:9999/v1", "temperature": 0.7, "max_tokens": 2048}`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BaseURL != "http://localhost:9999/v1" {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Temperature)
	}
	if cfg.MaxTokens != 2048 {
		t.Errorf("MaxTokens = %d, want 2048", cfg.MaxTokens)
	}
}

func TestLoadFrom_Missing(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("err = %v, want ErrNoConfig", err)
	}
}

func TestLoadFrom_NoAPIKey(t *testing.T) {
	path := writeConfig(t, `{"base_url": "http://localhost"}`)
	_, err := LoadFrom(path)
	if !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestLoadFrom_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := LoadFrom(path)
	if !errors.Is(err, ErrInvalidJSON) {
		t.Fatalf("err = %v, want ErrInvalidJSON", err)
	}
}
