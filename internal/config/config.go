package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log,omitempty"`
}

// PipelineConfig contains frame pipeline specific configuration
type PipelineConfig struct {
	DataDir    string           `yaml:"data_dir"`
	Capture    CaptureConfig    `yaml:"capture"`
	Motion     MotionConfig     `yaml:"motion"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Threat     ThreatConfig     `yaml:"threat"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Processing ProcessingConfig `yaml:"processing"`
	Retention  RetentionConfig  `yaml:"retention"`
	Web        WebConfig        `yaml:"web"`
	Health     HealthConfig     `yaml:"health"`
}

// CaptureConfig describes where the capture collaborator drops frames
type CaptureConfig struct {
	FramesDir string        `yaml:"frames_dir"`
	Interval  time.Duration `yaml:"interval"`
}

// MotionConfig contains motion filter configuration
type MotionConfig struct {
	Threshold        int     `yaml:"threshold"`          // Pixel intensity delta (0-255)
	MinChangePercent float64 `yaml:"min_change_percent"` // Minimum % of frame that must change
}

// DedupConfig contains duplicate filter configuration
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // 0-1
}

// OptimizerConfig contains frame optimizer configuration
type OptimizerConfig struct {
	MaxSizeKB    int `yaml:"max_size_kb"`
	Quality      int `yaml:"quality"`       // JPEG quality (1-100)
	MaxDimension int `yaml:"max_dimension"` // Longest side after resize
}

// ClassifierConfig contains vision classification backend configuration
type ClassifierConfig struct {
	APIURL     string        `yaml:"api_url"`
	APIKey     string        `yaml:"api_key"` // Usually supplied via NVIDIA_API_KEY
	Task       string        `yaml:"task"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// ThreatConfig contains threat scoring configuration
type ThreatConfig struct {
	AlertThreshold int `yaml:"alert_threshold"` // Minimum score (1-5) that counts as detected
}

// AlertsConfig contains alert channel and debounce configuration
type AlertsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BotToken         string        `yaml:"bot_token"` // Usually supplied via TELEGRAM_BOT_TOKEN
	ChatID           string        `yaml:"chat_id"`   // Usually supplied via TELEGRAM_CHAT_ID
	CooldownOverride time.Duration `yaml:"cooldown_override"`
}

// ProcessingConfig contains orchestrator queue and worker configuration
type ProcessingConfig struct {
	QueueSize       int  `yaml:"queue_size"`
	Concurrency     int  `yaml:"concurrency"`
	DeleteProcessed bool `yaml:"delete_processed"`
}

// RetentionConfig contains frame and result retention configuration
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	MaxAge   time.Duration `yaml:"max_age"`
	Interval time.Duration `yaml:"interval"`
}

// WebConfig contains status API server configuration
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HealthConfig contains health check server configuration
type HealthConfig struct {
	Port int `yaml:"port"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = getDefaultConfigPath()
	}

	cfg := &Config{}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.setDefaults()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getDefaultConfigPath returns the default configuration file path
func getDefaultConfigPath() string {
	if path := os.Getenv("AERIAL_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(".", "config.yaml")
}

// setDefaults fills in default values for unset fields
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}

	if c.Pipeline.DataDir == "" {
		c.Pipeline.DataDir = "./data"
	}
	if c.Pipeline.Capture.FramesDir == "" {
		c.Pipeline.Capture.FramesDir = "captured_frames"
	}
	if c.Pipeline.Capture.Interval == 0 {
		c.Pipeline.Capture.Interval = 2 * time.Second
	}

	if c.Pipeline.Motion.Threshold == 0 {
		c.Pipeline.Motion.Threshold = 25
	}
	if c.Pipeline.Motion.MinChangePercent == 0 {
		c.Pipeline.Motion.MinChangePercent = 0.5
	}
	if c.Pipeline.Dedup.SimilarityThreshold == 0 {
		c.Pipeline.Dedup.SimilarityThreshold = 0.95
	}

	if c.Pipeline.Optimizer.MaxSizeKB == 0 {
		c.Pipeline.Optimizer.MaxSizeKB = 150
	}
	if c.Pipeline.Optimizer.Quality == 0 {
		c.Pipeline.Optimizer.Quality = 85
	}
	if c.Pipeline.Optimizer.MaxDimension == 0 {
		c.Pipeline.Optimizer.MaxDimension = 1280
	}

	if c.Pipeline.Classifier.APIURL == "" {
		c.Pipeline.Classifier.APIURL = "https://ai.api.nvidia.com/v1/vlm/microsoft/florence-2"
	}
	if c.Pipeline.Classifier.Task == "" {
		c.Pipeline.Classifier.Task = "<DETAILED_CAPTION>"
	}
	if c.Pipeline.Classifier.Timeout == 0 {
		c.Pipeline.Classifier.Timeout = 120 * time.Second
	}
	if c.Pipeline.Classifier.MaxRetries == 0 {
		c.Pipeline.Classifier.MaxRetries = 3
	}
	if c.Pipeline.Classifier.RetryDelay == 0 {
		c.Pipeline.Classifier.RetryDelay = 2 * time.Second
	}

	if c.Pipeline.Threat.AlertThreshold == 0 {
		c.Pipeline.Threat.AlertThreshold = 3
	}

	if c.Pipeline.Processing.QueueSize == 0 {
		c.Pipeline.Processing.QueueSize = 100
	}
	if c.Pipeline.Processing.Concurrency == 0 {
		c.Pipeline.Processing.Concurrency = 2
	}

	if c.Pipeline.Retention.MaxAge == 0 {
		c.Pipeline.Retention.MaxAge = 24 * time.Hour
	}
	if c.Pipeline.Retention.Interval == 0 {
		c.Pipeline.Retention.Interval = time.Hour
	}

	if c.Pipeline.Web.Host == "" {
		c.Pipeline.Web.Host = "0.0.0.0"
	}
	if c.Pipeline.Web.Port == 0 {
		c.Pipeline.Web.Port = 8081
	}
	if c.Pipeline.Health.Port == 0 {
		c.Pipeline.Health.Port = 8080
	}
}

// applyEnvOverrides pulls credentials and tuning knobs from the environment.
// Environment values take precedence over the YAML file so secrets can stay
// out of checked-in configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NVIDIA_API_KEY"); v != "" {
		c.Pipeline.Classifier.APIKey = v
	}
	if v := os.Getenv("NVIDIA_API_URL"); v != "" {
		c.Pipeline.Classifier.APIURL = v
	}
	if v := os.Getenv("CLASSIFICATION_TASK"); v != "" {
		c.Pipeline.Classifier.Task = v
	}
	if v := os.Getenv("TELEGRAM_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Pipeline.Alerts.Enabled = enabled
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Pipeline.Alerts.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Pipeline.Alerts.ChatID = v
	}
	if v := os.Getenv("THREAT_THRESHOLD"); v != "" {
		if threshold, err := strconv.Atoi(v); err == nil {
			c.Pipeline.Threat.AlertThreshold = threshold
		}
	}
	if v := os.Getenv("ALERT_COOLDOWN_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			c.Pipeline.Alerts.CooldownOverride = time.Duration(seconds) * time.Second
		}
	}
	if v := os.Getenv("CAPTURED_FRAMES_DIR"); v != "" {
		c.Pipeline.Capture.FramesDir = v
	}
}

// FramesDir returns the absolute captured-frames directory
func (c *Config) FramesDir() string {
	return c.resolveDir(c.Pipeline.Capture.FramesDir)
}

// resolveDir makes a relative path relative to data_dir
func (c *Config) resolveDir(dir string) string {
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(c.Pipeline.DataDir, dir)
}
