// Package watcher polls the captured-frames directory and feeds new frames
// to the pipeline in capture order.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parth2411/aerialintelligence/internal/frame"
	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/pipeline"
	"github.com/parth2411/aerialintelligence/internal/service"
)

// imageExtensions lists the frame file types the watcher picks up
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Submitter accepts frames for processing
type Submitter interface {
	Submit(f *frame.Frame) error
}

// Watcher is the capture intake service. The capture collaborator drops
// image files into a directory; the watcher discovers them at the capture
// interval and submits each exactly once, ordered by file name, with a
// monotonic sequence number.
type Watcher struct {
	*service.ServiceBase

	dir      string
	interval time.Duration
	pipe     Submitter
	logger   *logger.Logger

	seen     map[string]bool
	sequence uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Config contains watcher configuration
type Config struct {
	FramesDir string
	Interval  time.Duration
}

// New creates a frame watcher
func New(cfg Config, pipe Submitter, log *logger.Logger) *Watcher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Watcher{
		ServiceBase: service.NewServiceBase("frame-watcher", log),
		dir:         cfg.FramesDir,
		interval:    interval,
		pipe:        pipe,
		logger:      log,
		seen:        make(map[string]bool),
	}
}

// Start begins polling the frames directory
func (w *Watcher) Start(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.done != nil {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create frames directory: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(runCtx)

	w.LogInfo("Watcher started", "dir", w.dir, "interval", w.interval)
	return nil
}

// Stop halts polling
func (w *Watcher) Stop(ctx context.Context) error {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.done == nil {
		return nil
	}

	w.cancel()
	select {
	case <-w.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	w.done = nil

	w.LogInfo("Watcher stopped", "frames_submitted", w.sequence)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Initial sweep picks up frames captured before startup
	w.sweep()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep submits every unseen frame file in name order
func (w *Watcher) sweep() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.LogError("Failed to read frames directory", err, "dir", w.dir)
		return
	}

	var names []string
	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		// Optimized copies written next to the source are not captures
		if strings.HasPrefix(name, "opt_") {
			continue
		}
		present[name] = true
		if !w.seen[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	// Frames removed by delete_processed or retention no longer need a
	// seen entry, and dropping them keeps the map bounded over long runs.
	for name := range w.seen {
		if !present[name] {
			delete(w.seen, name)
		}
	}

	for _, name := range names {
		path := filepath.Join(w.dir, name)

		f, err := frame.New(path, w.sequence+1)
		if err != nil {
			// Empty files are usually still being written, retry next sweep
			var dataErr *frame.DataError
			if errors.As(err, &dataErr) {
				w.LogDebug("Frame not ready", "file", name, "error", err)
				continue
			}
			w.LogError("Failed to open frame", err, "file", name)
			w.seen[name] = true
			continue
		}

		if err := w.pipe.Submit(f); err != nil {
			if errors.Is(err, pipeline.ErrQueueFull) {
				// Backpressure: leave the file for the next sweep
				w.LogDebug("Pipeline queue full, retrying later", "file", name)
				return
			}
			w.LogError("Failed to submit frame", err, "file", name)
			return
		}

		w.seen[name] = true
		w.sequence++
	}
}
