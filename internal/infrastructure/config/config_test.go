package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadMissingUsesDefaults(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvRequestTimeout, "")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.FetchAttempts != 1 || cfg.RequestTimeout != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvRequestTimeout, "")
	tempDir := t.TempDir()

	input := &Config{
		BaseURL:        "https://maps.example.com",
		RequestTimeout: 30 * time.Second,
		FetchAttempts:  3,
		LogLevel:       "debug",
		Webhooks: []Webhook{{
			Name:       "team",
			URL:        "https://hooks.example.com/edi",
			Events:     []string{"session.generated"},
			RetryDelay: 2 * time.Second,
		}},
	}
	if err := Save(tempDir, input); err != nil {
		t.Fatalf("save config: %v", err)
	}

	cfg, err := Load(tempDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !reflect.DeepEqual(cfg, input) {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvRequestTimeout, "")
	tempDir := t.TempDir()
	dir := filepath.Join(tempDir, ".edimap")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: warn\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tempDir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL || cfg.LogLevel != "warn" || cfg.FetchAttempts != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvBaseURL, "http://mapper:9000/")
	t.Setenv(EnvRequestTimeout, "45")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "http://mapper:9000" {
		t.Errorf("base url = %q", cfg.BaseURL)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("timeout = %v", cfg.RequestTimeout)
	}

	t.Setenv(EnvRequestTimeout, "1m30s")
	cfg, err = Load(t.TempDir())
	if err != nil || cfg.RequestTimeout != 90*time.Second {
		t.Errorf("duration form: %v %v", cfg, err)
	}

	t.Setenv(EnvRequestTimeout, "soon")
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv(EnvBaseURL, "")
	t.Setenv(EnvRequestTimeout, "")

	tests := []struct {
		name string
		body string
	}{
		{"bad yaml", "::bad"},
		{"bad url", "base_url: localhost"},
		{"bad level", "log_level: loud"},
		{"bad attempts", "fetch_attempts: -2"},
		{"webhook without name", "webhooks:\n  - url: https://hooks.example.com\n"},
		{"webhook bad url", "webhooks:\n  - name: team\n    url: hooks\n"},
		{"duplicate webhook", "webhooks:\n  - name: a\n    url: http://h\n  - name: a\n    url: http://h\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			dir := filepath.Join(tempDir, ".edimap")
			if err := os.MkdirAll(dir, 0700); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.body), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(tempDir); err == nil {
				t.Fatalf("expected error for %q", tt.body)
			}
		})
	}
}
