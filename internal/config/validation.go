package config

import (
	"fmt"
	"strings"
)

// Validate validates the configuration with detailed error messages.
// Validation failures are fatal at startup: security-relevant settings are
// never silently defaulted.
func (c *Config) Validate() error {
	var errors []string

	if c.Pipeline.DataDir == "" {
		errors = append(errors, "pipeline.data_dir is required")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errors = append(errors, fmt.Sprintf("invalid log level: %s (must be: debug, info, warn, error, fatal)", c.Log.Level))
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format: %s (must be: text or json)", c.Log.Format))
	}

	if c.Pipeline.Motion.Threshold < 0 || c.Pipeline.Motion.Threshold > 255 {
		errors = append(errors, fmt.Sprintf("motion.threshold must be between 0 and 255, got: %d", c.Pipeline.Motion.Threshold))
	}

	if c.Pipeline.Motion.MinChangePercent < 0 || c.Pipeline.Motion.MinChangePercent > 100 {
		errors = append(errors, fmt.Sprintf("motion.min_change_percent must be between 0 and 100, got: %.2f", c.Pipeline.Motion.MinChangePercent))
	}

	if c.Pipeline.Dedup.SimilarityThreshold < 0 || c.Pipeline.Dedup.SimilarityThreshold > 1 {
		errors = append(errors, fmt.Sprintf("dedup.similarity_threshold must be between 0 and 1, got: %.2f", c.Pipeline.Dedup.SimilarityThreshold))
	}

	if c.Pipeline.Optimizer.Quality < 1 || c.Pipeline.Optimizer.Quality > 100 {
		errors = append(errors, fmt.Sprintf("optimizer.quality must be between 1 and 100, got: %d", c.Pipeline.Optimizer.Quality))
	}

	if c.Pipeline.Optimizer.MaxSizeKB <= 0 {
		errors = append(errors, fmt.Sprintf("optimizer.max_size_kb must be > 0, got: %d", c.Pipeline.Optimizer.MaxSizeKB))
	}

	if c.Pipeline.Optimizer.MaxDimension <= 0 {
		errors = append(errors, fmt.Sprintf("optimizer.max_dimension must be > 0, got: %d", c.Pipeline.Optimizer.MaxDimension))
	}

	if c.Pipeline.Classifier.APIURL == "" {
		errors = append(errors, "classifier.api_url is required")
	}

	if c.Pipeline.Classifier.APIKey == "" {
		errors = append(errors, "classifier.api_key is required (set NVIDIA_API_KEY)")
	}

	if c.Pipeline.Classifier.MaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("classifier.max_retries must be >= 1, got: %d", c.Pipeline.Classifier.MaxRetries))
	}

	if c.Pipeline.Classifier.Timeout <= 0 {
		errors = append(errors, fmt.Sprintf("classifier.timeout must be > 0, got: %v", c.Pipeline.Classifier.Timeout))
	}

	if c.Pipeline.Threat.AlertThreshold < 1 || c.Pipeline.Threat.AlertThreshold > 5 {
		errors = append(errors, fmt.Sprintf("threat.alert_threshold must be between 1 and 5, got: %d", c.Pipeline.Threat.AlertThreshold))
	}

	if c.Pipeline.Alerts.Enabled {
		if c.Pipeline.Alerts.BotToken == "" {
			errors = append(errors, "alerts.bot_token is required when alerts are enabled (set TELEGRAM_BOT_TOKEN)")
		}
		if c.Pipeline.Alerts.ChatID == "" {
			errors = append(errors, "alerts.chat_id is required when alerts are enabled (set TELEGRAM_CHAT_ID)")
		}
	}

	if c.Pipeline.Alerts.CooldownOverride < 0 {
		errors = append(errors, fmt.Sprintf("alerts.cooldown_override must be >= 0, got: %v", c.Pipeline.Alerts.CooldownOverride))
	}

	if c.Pipeline.Processing.QueueSize <= 0 {
		errors = append(errors, fmt.Sprintf("processing.queue_size must be > 0, got: %d", c.Pipeline.Processing.QueueSize))
	}

	if c.Pipeline.Processing.Concurrency < 1 {
		errors = append(errors, fmt.Sprintf("processing.concurrency must be >= 1, got: %d", c.Pipeline.Processing.Concurrency))
	}

	if c.Pipeline.Capture.Interval <= 0 {
		errors = append(errors, fmt.Sprintf("capture.interval must be > 0, got: %v", c.Pipeline.Capture.Interval))
	}

	if c.Pipeline.Retention.Enabled {
		if c.Pipeline.Retention.MaxAge <= 0 {
			errors = append(errors, fmt.Sprintf("retention.max_age must be > 0, got: %v", c.Pipeline.Retention.MaxAge))
		}
		if c.Pipeline.Retention.Interval <= 0 {
			errors = append(errors, fmt.Sprintf("retention.interval must be > 0, got: %v", c.Pipeline.Retention.Interval))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
