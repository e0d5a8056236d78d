package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTestConfig(t, `
pipeline:
  data_dir: /tmp/aerial-test
  classifier:
    api_key: test-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Pipeline.Motion.Threshold != 25 {
		t.Errorf("Expected motion threshold 25, got %d", cfg.Pipeline.Motion.Threshold)
	}
	if cfg.Pipeline.Motion.MinChangePercent != 0.5 {
		t.Errorf("Expected min change percent 0.5, got %.2f", cfg.Pipeline.Motion.MinChangePercent)
	}
	if cfg.Pipeline.Dedup.SimilarityThreshold != 0.95 {
		t.Errorf("Expected similarity threshold 0.95, got %.2f", cfg.Pipeline.Dedup.SimilarityThreshold)
	}
	if cfg.Pipeline.Threat.AlertThreshold != 3 {
		t.Errorf("Expected alert threshold 3, got %d", cfg.Pipeline.Threat.AlertThreshold)
	}
	if cfg.Pipeline.Optimizer.MaxSizeKB != 150 {
		t.Errorf("Expected max size 150KB, got %d", cfg.Pipeline.Optimizer.MaxSizeKB)
	}
	if cfg.Pipeline.Processing.Concurrency != 2 {
		t.Errorf("Expected concurrency 2, got %d", cfg.Pipeline.Processing.Concurrency)
	}
	if cfg.Pipeline.Classifier.Task != "<DETAILED_CAPTION>" {
		t.Errorf("Unexpected default task: %s", cfg.Pipeline.Classifier.Task)
	}
}

func TestLoad_MissingAPIKeyFails(t *testing.T) {
	path := writeTestConfig(t, `
pipeline:
  data_dir: /tmp/aerial-test
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error for missing API key")
	}
}

func TestLoad_AlertsRequireCredentials(t *testing.T) {
	path := writeTestConfig(t, `
pipeline:
  data_dir: /tmp/aerial-test
  classifier:
    api_key: test-key
  alerts:
    enabled: true
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error for enabled alerts without credentials")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NVIDIA_API_KEY", "env-key")
	t.Setenv("THREAT_THRESHOLD", "4")
	t.Setenv("ALERT_COOLDOWN_SECONDS", "45")

	path := writeTestConfig(t, `
pipeline:
  data_dir: /tmp/aerial-test
  classifier:
    api_key: file-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Pipeline.Classifier.APIKey != "env-key" {
		t.Errorf("Expected env override for API key, got %s", cfg.Pipeline.Classifier.APIKey)
	}
	if cfg.Pipeline.Threat.AlertThreshold != 4 {
		t.Errorf("Expected threshold 4 from env, got %d", cfg.Pipeline.Threat.AlertThreshold)
	}
	if cfg.Pipeline.Alerts.CooldownOverride != 45*time.Second {
		t.Errorf("Expected 45s cooldown override, got %v", cfg.Pipeline.Alerts.CooldownOverride)
	}
}

func TestValidate_InvalidThreshold(t *testing.T) {
	path := writeTestConfig(t, `
pipeline:
  data_dir: /tmp/aerial-test
  classifier:
    api_key: test-key
  threat:
    alert_threshold: 9
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Expected validation error for out-of-range alert threshold")
	}
}

func TestFramesDir_RelativeToDataDir(t *testing.T) {
	path := writeTestConfig(t, `
pipeline:
  data_dir: /tmp/aerial-test
  classifier:
    api_key: test-key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	expected := filepath.Join("/tmp/aerial-test", "captured_frames")
	if cfg.FramesDir() != expected {
		t.Errorf("Expected frames dir %s, got %s", expected, cfg.FramesDir())
	}
}
