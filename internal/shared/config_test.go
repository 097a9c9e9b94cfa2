package shared

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		if !config.Auth.Required {
			t.Error("expected auth to be required by default")
		}

		if config.Quota.DailyLimit != 10 {
			t.Errorf("expected daily limit 10, got %d", config.Quota.DailyLimit)
		}

		if config.Quota.Backend != "memory" {
			t.Errorf("expected quota backend memory, got %s", config.Quota.Backend)
		}

		if config.Render.Concurrency != 2 {
			t.Errorf("expected render concurrency 2, got %d", config.Render.Concurrency)
		}

		if config.Render.AllowSync {
			t.Error("sync rendering should be disabled by default")
		}

		if config.Server.Port != 3000 {
			t.Errorf("expected server port 3000, got %d", config.Server.Port)
		}

		if len(config.Providers) == 0 {
			t.Fatal("expected at least one provider in default config")
		}

		if config.Providers[0].Kind != "local" || !config.Providers[0].Fallback {
			t.Errorf("expected local fallback provider first, got %+v", config.Providers[0])
		}
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.toml")

		if err := CreateConfigFile(configPath); err != nil {
			t.Fatalf("failed to create config file: %v", err)
		}

		if _, err := os.Stat(configPath); err != nil {
			t.Fatalf("config file should exist: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("failed to load created config: %v", err)
		}

		defaultConfig := DefaultConfig()
		if config.Quota.DailyLimit != defaultConfig.Quota.DailyLimit {
			t.Error("created config quota limit doesn't match default")
		}

		if err := CreateConfigFile(configPath); err == nil {
			t.Error("creating config file again should fail")
		}
	})

	t.Run("LoadConfig missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("LoadConfig invalid toml", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(configPath, []byte("not [valid toml"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(configPath); err == nil {
			t.Error("expected error for invalid toml")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name    string
			mutate  func(*Config)
			wantErr bool
		}{
			{"defaults are valid", func(c *Config) {}, false},
			{"zero concurrency", func(c *Config) { c.Render.Concurrency = 0 }, true},
			{"no providers", func(c *Config) { c.Providers = nil }, true},
			{"unknown provider kind", func(c *Config) { c.Providers[0].Kind = "mubert" }, true},
			{"unknown quota backend", func(c *Config) { c.Quota.Backend = "postgres" }, true},
			{"redis backend", func(c *Config) { c.Quota.Backend = "redis" }, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				config := DefaultConfig()
				tt.mutate(config)
				err := config.Validate()
				if (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("ActiveProvider prefers non-fallback", func(t *testing.T) {
		config := DefaultConfig()
		config.Providers = append(config.Providers, ProviderConfig{Name: "musicgen", Kind: "hf", Token: "hf_x"})

		if got := config.ActiveProvider(); got.Name != "musicgen" {
			t.Errorf("expected musicgen, got %s", got.Name)
		}

		config.Providers = config.Providers[:1]
		if got := config.ActiveProvider(); got.Kind != "local" {
			t.Errorf("expected local fallback, got %s", got.Kind)
		}
	})
}
