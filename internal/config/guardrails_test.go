package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadGuardrailsConfig_FromEnvPath(t *testing.T) {
	path := filepath.Join("..", "..", "configs", "guardrails.yaml")
	t.Setenv("GUARDRAILS_CONFIG_PATH", path)

	cfg, err := LoadGuardrailsConfig()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Enabled {
		t.Error("expected guardrails to be enabled")
	}
	if cfg.Classifier.Timeout != 5*time.Second {
		t.Errorf("expected classifier timeout 5s, got %v", cfg.Classifier.Timeout)
	}
	if cfg.Classifier.CacheSize != 100 {
		t.Errorf("expected cache size 100, got %d", cfg.Classifier.CacheSize)
	}
	if len(cfg.ProtectedEndpoints) != 3 {
		t.Errorf("expected 3 protected endpoints, got %d", len(cfg.ProtectedEndpoints))
	}
	if cfg.CustomMessages["pii"] == "" {
		t.Error("expected a custom pii message")
	}
}

func TestLoadGuardrailsConfigFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadGuardrailsConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Input.ToxicThreshold != 0.8 || cfg.Output.ToxicThreshold != 0.9 {
		t.Errorf("unexpected thresholds: input %.2f output %.2f", cfg.Input.ToxicThreshold, cfg.Output.ToxicThreshold)
	}
	if cfg.MaxOutputLength != 5000 {
		t.Errorf("expected max output length 5000, got %d", cfg.MaxOutputLength)
	}
}

func TestParseGuardrailsConfig(t *testing.T) {
	tests := []struct {
		name      string
		yaml      string
		expectErr bool
		check     func(t *testing.T, cfg *GuardrailsConfig)
	}{
		{
			name: "disabled guardrails",
			yaml: "enabled: false\n",
			check: func(t *testing.T, cfg *GuardrailsConfig) {
				if cfg.Enabled {
					t.Error("expected guardrails disabled")
				}
			},
		},
		{
			name: "custom chain keeps order",
			yaml: "input:\n  validators: [pii, injection]\n",
			check: func(t *testing.T, cfg *GuardrailsConfig) {
				if len(cfg.Input.Validators) != 2 || cfg.Input.Validators[0] != "pii" {
					t.Errorf("unexpected validators %v", cfg.Input.Validators)
				}
			},
		},
		{
			name: "rate limit without burst gets burst 1",
			yaml: "classifier:\n  rate_limit: 2\n",
			check: func(t *testing.T, cfg *GuardrailsConfig) {
				if cfg.Classifier.Burst != 1 {
					t.Errorf("expected burst 1, got %d", cfg.Classifier.Burst)
				}
			},
		},
		{
			name:      "unknown validator",
			yaml:      "input:\n  validators: [sentiment]\n",
			expectErr: true,
		},
		{
			name:      "threshold out of range",
			yaml:      "output:\n  toxic_threshold: 1.5\n",
			expectErr: true,
		},
		{
			name:      "relative endpoint path",
			yaml:      "protected_endpoints:\n  - path: query\n    input: true\n",
			expectErr: true,
		},
		{
			name:      "invalid yaml",
			yaml:      "input: [",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseGuardrailsConfig([]byte(tt.yaml))
			if tt.expectErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadGuardrailsConfigFile_Unreadable(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "config.yaml"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadGuardrailsConfigFile(filepath.Join(dir, "config.yaml")); err == nil {
		t.Error("expected error when the path is a directory")
	}
}
