package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parth2411/aerialintelligence/internal/alert"
	"github.com/parth2411/aerialintelligence/internal/classify"
	"github.com/parth2411/aerialintelligence/internal/config"
	"github.com/parth2411/aerialintelligence/internal/dedup"
	"github.com/parth2411/aerialintelligence/internal/frame"
	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/motion"
	"github.com/parth2411/aerialintelligence/internal/optimize"
	"github.com/parth2411/aerialintelligence/internal/service"
	"github.com/parth2411/aerialintelligence/internal/state"
	"github.com/parth2411/aerialintelligence/internal/threat"
)

// ErrQueueFull is returned by Submit when the intake queue has no room
var ErrQueueFull = errors.New("pipeline: intake queue full")

// ErrNotRunning is returned by Submit before Start or after Stop
var ErrNotRunning = errors.New("pipeline: not running")

// Classifier describes the classification backend the pipeline calls
type Classifier interface {
	Classify(ctx context.Context, frameID, imagePath string) (*classify.Result, error)
}

// Notifier delivers alerts for scored threats
type Notifier interface {
	Enabled() bool
	SendAlert(ctx context.Context, assessment *threat.Assessment, imagePath string) error
}

// ResultStore persists per-frame results and dispatched alerts
type ResultStore interface {
	SaveFrameResult(ctx context.Context, record state.FrameResultRecord) error
	SaveAlert(ctx context.Context, record state.AlertRecord) error
}

// job carries an admitted frame and its decoded image to a worker
type job struct {
	frame  *frame.Frame
	img    image.Image
	result *FrameResult
	start  time.Time
}

// Orchestrator is the frame processing service. A single intake goroutine
// runs the motion and duplicate filters in capture order; admitted frames
// fan out to a bounded worker pool for the expensive stages.
type Orchestrator struct {
	*service.ServiceBase

	cfg config.ProcessingConfig

	detector   *motion.Detector
	dedup      *dedup.Deduplicator
	optimizer  *optimize.Optimizer
	classifier Classifier
	scorer     *threat.Scorer
	debouncer  *alert.Debouncer
	notifier   Notifier
	store      ResultStore
	logger     *logger.Logger

	stats Stats

	intake   chan *frame.Frame
	admitted chan job

	sinksMu sync.RWMutex
	sinks   []func(FrameResult)

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Deps bundles the collaborators the orchestrator wires together
type Deps struct {
	Detector     *motion.Detector
	Deduplicator *dedup.Deduplicator
	Optimizer    *optimize.Optimizer
	Classifier   Classifier
	Scorer       *threat.Scorer
	Debouncer    *alert.Debouncer
	Notifier     Notifier
	Store        ResultStore
}

// NewOrchestrator creates the pipeline service
func NewOrchestrator(cfg config.ProcessingConfig, deps Deps, log *logger.Logger) *Orchestrator {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	cfg.QueueSize = queueSize
	cfg.Concurrency = concurrency

	return &Orchestrator{
		ServiceBase: service.NewServiceBase("pipeline", log),
		cfg:         cfg,
		detector:    deps.Detector,
		dedup:       deps.Deduplicator,
		optimizer:   deps.Optimizer,
		classifier:  deps.Classifier,
		scorer:      deps.Scorer,
		debouncer:   deps.Debouncer,
		notifier:    deps.Notifier,
		store:       deps.Store,
		logger:      log,
	}
}

// Start launches the intake loop and worker pool
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.running {
		return nil
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.intake = make(chan *frame.Frame, o.cfg.QueueSize)
	o.admitted = make(chan job, o.cfg.Concurrency)

	o.wg.Add(1)
	go o.intakeLoop()

	for i := 0; i < o.cfg.Concurrency; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}

	o.running = true
	o.LogInfo("Pipeline started",
		"queue_size", o.cfg.QueueSize,
		"concurrency", o.cfg.Concurrency)
	return nil
}

// Stop drains the queue and waits for in-flight frames
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.runMu.Lock()
	if !o.running {
		o.runMu.Unlock()
		return nil
	}
	o.running = false
	close(o.intake)
	o.runMu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.cancel()
		<-done
	}
	o.cancel()

	o.LogInfo("Pipeline stopped", "stats", o.stats.Snapshot())
	return nil
}

// Submit queues a captured frame for processing without blocking
func (o *Orchestrator) Submit(f *frame.Frame) error {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if !o.running {
		return ErrNotRunning
	}

	select {
	case o.intake <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

// GetStats returns a snapshot of the session counters
func (o *Orchestrator) GetStats() StatsSnapshot {
	return o.stats.Snapshot()
}

// AddResultSink registers a callback invoked with every finished FrameResult.
// Sinks run on pipeline goroutines and must not block.
func (o *Orchestrator) AddResultSink(sink func(FrameResult)) {
	o.sinksMu.Lock()
	defer o.sinksMu.Unlock()
	o.sinks = append(o.sinks, sink)
}

// intakeLoop is the single writer for the motion and dedup filter state.
// Frames are filtered strictly in submission order.
func (o *Orchestrator) intakeLoop() {
	defer o.wg.Done()
	defer close(o.admitted)

	for f := range o.intake {
		select {
		case <-o.ctx.Done():
			return
		default:
		}
		o.admitFrame(f)
	}
}

// admitFrame runs the cheap filters and hands admitted frames to the pool
func (o *Orchestrator) admitFrame(f *frame.Frame) {
	start := time.Now()
	o.stats.total.Add(1)

	result := newFrameResult(f.ID, f.Sequence, f.Path)

	img, err := f.Load()
	if err != nil {
		o.failFrame(result, start, fmt.Errorf("load frame: %w", err))
		return
	}

	hasMotion, changePercent := o.detector.DetectMotion(img)
	result.ChangePercent = changePercent
	if err := result.advance(StageMotionCheck); err != nil {
		o.failFrame(result, start, err)
		return
	}
	if !hasMotion {
		o.stats.skippedNoMotion.Add(1)
		o.finishSkipped(result, start, SkipReasonNoMotion)
		return
	}

	isDup, similarity := o.dedup.IsDuplicate(img)
	result.Similarity = similarity
	if err := result.advance(StageDedupCheck); err != nil {
		o.failFrame(result, start, err)
		return
	}
	if isDup {
		o.stats.skippedDuplicate.Add(1)
		o.finishSkipped(result, start, SkipReasonDuplicate)
		return
	}

	o.PublishEvent(service.EventTypeFrameCaptured, map[string]interface{}{
		"frame_id": f.ID,
		"sequence": f.Sequence,
	})

	// Blocking send bounds admission to the pool's capacity
	select {
	case o.admitted <- job{frame: f, img: img, result: result, start: start}:
	case <-o.ctx.Done():
	}
}

// worker runs the expensive stages for admitted frames
func (o *Orchestrator) worker(id int) {
	defer o.wg.Done()

	for j := range o.admitted {
		o.processFrame(j)
	}
	o.LogDebug("Worker exiting", "worker", id)
}

// processFrame takes one admitted frame from optimization through alerting
func (o *Orchestrator) processFrame(j job) {
	result := j.result

	optPath, err := o.optimizer.Optimize(j.img, j.frame.Path)
	if err != nil {
		o.failFrame(result, j.start, fmt.Errorf("optimize: %w", err))
		return
	}
	// The optimized copy exists only for the classification upload
	defer func() {
		if optPath != j.frame.Path {
			os.Remove(optPath)
		}
	}()
	if err := result.advance(StageOptimized); err != nil {
		o.failFrame(result, j.start, err)
		return
	}

	classification, err := o.classifier.Classify(o.ctx, j.frame.ID, optPath)
	if err != nil {
		o.failFrame(result, j.start, fmt.Errorf("classify: %w", err))
		return
	}
	result.Classification = classification.Description
	if err := result.advance(StageClassified); err != nil {
		o.failFrame(result, j.start, err)
		return
	}

	assessment := o.scorer.AnalyzeThreat(classification.Description, j.frame.ID)
	result.ThreatAnalysis = assessment
	if err := result.advance(StageScored); err != nil {
		o.failFrame(result, j.start, err)
		return
	}

	if assessment.Detected {
		o.stats.threatsDetected.Add(1)
		o.PublishEvent(service.EventTypeThreatDetected, map[string]interface{}{
			"frame_id":     j.frame.ID,
			"threat_level": string(assessment.Level),
			"threat_score": assessment.Score,
		})
		o.dispatchAlert(result, assessment, j.frame.Path)
	} else {
		if err := result.advance(StageDone); err != nil {
			o.failFrame(result, j.start, err)
			return
		}
	}

	o.stats.processed.Add(1)
	o.finish(result, j.start)

	if o.cfg.DeleteProcessed {
		if err := os.Remove(j.frame.Path); err != nil && !os.IsNotExist(err) {
			o.LogError("Failed to delete processed frame", err, "path", j.frame.Path)
		}
	}
}

// dispatchAlert sends one alert through the debouncer. A failed delivery
// cancels the acquired permit so the cooldown window is not consumed.
func (o *Orchestrator) dispatchAlert(result *FrameResult, assessment *threat.Assessment, imagePath string) {
	// With alerting disabled the threat is only recorded, no window is
	// consumed and the result must not claim a delivery.
	if o.notifier == nil || !o.notifier.Enabled() {
		if err := result.advance(StageDone); err != nil {
			result.fail(err)
		}
		return
	}

	permit, ok := o.debouncer.Acquire(assessment.Level)
	if !ok {
		o.stats.alertsDebounced.Add(1)
		result.AlertDebounced = true
		if err := result.advance(StageSuppressed); err != nil {
			result.fail(err)
		}
		o.PublishEvent(service.EventTypeAlertDebounced, map[string]interface{}{
			"frame_id":     result.FrameID,
			"threat_level": string(assessment.Level),
		})
		return
	}

	if err := o.notifier.SendAlert(o.ctx, assessment, imagePath); err != nil {
		permit.Cancel()
		o.LogError("Alert delivery failed", err,
			"frame_id", result.FrameID,
			"threat_level", assessment.Level)
		result.Error = err.Error()
		if err := result.advance(StageSuppressed); err != nil {
			result.fail(err)
		}
		return
	}

	o.stats.alertsSent.Add(1)
	result.AlertSent = true
	if err := result.advance(StageAlerted); err != nil {
		result.fail(err)
		return
	}

	o.PublishEvent(service.EventTypeAlertSent, map[string]interface{}{
		"frame_id":     result.FrameID,
		"threat_level": string(assessment.Level),
	})

	if o.store != nil {
		record := state.AlertRecord{
			ID:         uuid.New().String(),
			FrameID:    result.FrameID,
			Level:      string(assessment.Level),
			Score:      assessment.Score,
			Confidence: assessment.Confidence,
			Message:    alert.FormatAlertMessage(assessment),
		}
		if err := o.store.SaveAlert(o.ctx, record); err != nil {
			o.LogError("Failed to persist alert", err, "frame_id", result.FrameID)
		}
	}
}

func (o *Orchestrator) finishSkipped(result *FrameResult, start time.Time, reason string) {
	if err := result.skip(reason); err != nil {
		o.failFrame(result, start, err)
		return
	}
	o.PublishEvent(service.EventTypeFrameSkipped, map[string]interface{}{
		"frame_id": result.FrameID,
		"reason":   reason,
	})

	if o.cfg.DeleteProcessed {
		if err := os.Remove(result.FramePath); err != nil && !os.IsNotExist(err) {
			o.LogError("Failed to delete skipped frame", err, "path", result.FramePath)
		}
	}

	o.finish(result, start)
}

func (o *Orchestrator) failFrame(result *FrameResult, start time.Time, err error) {
	o.stats.failed.Add(1)
	result.fail(err)
	o.LogError("Frame processing failed", err,
		"frame_id", result.FrameID,
		"stage", result.Stage)
	o.PublishEvent(service.EventTypeFrameFailed, map[string]interface{}{
		"frame_id": result.FrameID,
		"error":    err.Error(),
	})
	o.finish(result, start)
}

// finish stamps timing, persists the record and fans it out to all sinks
func (o *Orchestrator) finish(result *FrameResult, start time.Time) {
	result.ProcessingMs = time.Since(start).Milliseconds()

	o.LogDebug("Frame finished",
		"frame_id", result.FrameID,
		"stage", result.Stage,
		"skipped", result.Skipped,
		"processing_ms", result.ProcessingMs)

	if o.store != nil {
		o.persistResult(result)
	}

	o.PublishEvent(service.EventTypeFrameProcessed, map[string]interface{}{
		"frame_id": result.FrameID,
		"stage":    string(result.Stage),
	})

	o.sinksMu.RLock()
	sinks := o.sinks
	o.sinksMu.RUnlock()
	for _, sink := range sinks {
		sink(*result)
	}
}

func (o *Orchestrator) persistResult(result *FrameResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		o.LogError("Failed to encode frame result", err, "frame_id", result.FrameID)
		payload = nil
	}

	record := state.FrameResultRecord{
		ID:             uuid.New().String(),
		FrameID:        result.FrameID,
		Sequence:       result.Sequence,
		FramePath:      result.FramePath,
		Skipped:        result.Skipped,
		SkipReason:     result.SkipReason,
		Stage:          string(result.Stage),
		AlertSent:      result.AlertSent,
		AlertDebounced: result.AlertDebounced,
		Error:          result.Error,
		ProcessingMs:   result.ProcessingMs,
		Payload:        string(payload),
	}
	if result.ThreatAnalysis != nil {
		record.ThreatLevel = string(result.ThreatAnalysis.Level)
		record.ThreatScore = result.ThreatAnalysis.Score
	}

	if err := o.store.SaveFrameResult(o.ctx, record); err != nil {
		o.LogError("Failed to persist frame result", err, "frame_id", result.FrameID)
	}
}
