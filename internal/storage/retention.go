// Package storage enforces frame and result retention.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/service"
)

// ResultPruner deletes aged frame result rows
type ResultPruner interface {
	DeleteFrameResultsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionPolicy periodically removes captured frames and result rows
// older than the configured age.
type RetentionPolicy struct {
	*service.ServiceBase

	framesDir string
	maxAge    time.Duration
	interval  time.Duration
	pruner    ResultPruner
	logger    *logger.Logger

	mu        sync.Mutex
	enforcing bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Config contains retention configuration
type Config struct {
	FramesDir string
	MaxAge    time.Duration
	Interval  time.Duration
}

// NewRetentionPolicy creates a retention service
func NewRetentionPolicy(cfg Config, pruner ResultPruner, log *logger.Logger) *RetentionPolicy {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	return &RetentionPolicy{
		ServiceBase: service.NewServiceBase("retention", log),
		framesDir:   cfg.FramesDir,
		maxAge:      maxAge,
		interval:    interval,
		pruner:      pruner,
		logger:      log,
	}
}

// Start begins periodic enforcement
func (r *RetentionPolicy) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(runCtx)

	r.LogInfo("Retention started", "max_age", r.maxAge, "interval", r.interval)
	return nil
}

// Stop halts enforcement
func (r *RetentionPolicy) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return nil
	}

	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.done = nil
	return nil
}

func (r *RetentionPolicy) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Enforce(ctx); err != nil {
				r.LogError("Retention sweep failed", err)
			}
		}
	}
}

// Enforce runs one retention sweep: expired frame files first, then the
// matching result rows. Concurrent sweeps are rejected.
func (r *RetentionPolicy) Enforce(ctx context.Context) error {
	r.mu.Lock()
	if r.enforcing {
		r.mu.Unlock()
		return fmt.Errorf("retention sweep already running")
	}
	r.enforcing = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.enforcing = false
		r.mu.Unlock()
	}()

	cutoff := time.Now().Add(-r.maxAge)

	filesDeleted, err := r.deleteExpiredFrames(cutoff)
	if err != nil {
		r.logger.Warn("Failed to delete expired frames", "error", err)
	}

	var rowsDeleted int64
	if r.pruner != nil {
		rowsDeleted, err = r.pruner.DeleteFrameResultsBefore(ctx, cutoff)
		if err != nil {
			r.logger.Warn("Failed to prune frame results", "error", err)
		}
	}

	if filesDeleted > 0 || rowsDeleted > 0 {
		r.LogInfo("Retention sweep complete",
			"frames_deleted", filesDeleted,
			"results_deleted", rowsDeleted)
	}

	r.PublishEvent(service.EventTypeRetentionSweep, map[string]interface{}{
		"frames_deleted":  filesDeleted,
		"results_deleted": rowsDeleted,
	})

	return nil
}

// deleteExpiredFrames removes frame files modified before cutoff
func (r *RetentionPolicy) deleteExpiredFrames(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(r.framesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read frames directory: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(r.framesDir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Failed to delete expired frame", "path", path, "error", err)
			continue
		}
		deleted++
	}

	return deleted, nil
}
