// Package pipeline drives captured frames through admission filtering,
// optimization, classification, threat scoring and alerting.
package pipeline

import (
	"fmt"
	"time"

	"github.com/parth2411/aerialintelligence/internal/threat"
)

// Stage identifies how far a frame has progressed through the pipeline
type Stage string

const (
	StageCaptured     Stage = "CAPTURED"
	StageMotionCheck  Stage = "MOTION_CHECKED"
	StageDedupCheck   Stage = "DEDUP_CHECKED"
	StageOptimized    Stage = "OPTIMIZED"
	StageClassified   Stage = "CLASSIFIED"
	StageScored       Stage = "SCORED"
	StageAlerted      Stage = "ALERTED"
	StageSuppressed   Stage = "SUPPRESSED"
	StageDone         Stage = "DONE"
	StageFailed       Stage = "FAILED"
)

// Skip reasons recorded for frames rejected by the admission filters
const (
	SkipReasonNoMotion  = "no_motion"
	SkipReasonDuplicate = "duplicate"
)

// validTransitions encodes the per-frame state machine. A frame leaves the
// flow early only through DONE (filtered out or no threat) or FAILED.
var validTransitions = map[Stage][]Stage{
	StageCaptured:    {StageMotionCheck, StageFailed},
	StageMotionCheck: {StageDedupCheck, StageDone, StageFailed},
	StageDedupCheck:  {StageOptimized, StageDone, StageFailed},
	StageOptimized:   {StageClassified, StageFailed},
	StageClassified:  {StageScored, StageFailed},
	StageScored:      {StageAlerted, StageSuppressed, StageDone, StageFailed},
}

// Terminal reports whether no further transitions are possible from s
func (s Stage) Terminal() bool {
	_, ok := validTransitions[s]
	return !ok
}

// FrameResult is the per-frame processing record the pipeline emits
type FrameResult struct {
	FrameID         string             `json:"frame_id"`
	Sequence        uint64             `json:"sequence"`
	FramePath       string             `json:"frame_path"`
	Stage           Stage              `json:"stage"`
	Skipped         bool               `json:"skipped"`
	SkipReason      string             `json:"skip_reason,omitempty"`
	ChangePercent   float64            `json:"change_percent,omitempty"`
	Similarity      float64            `json:"similarity,omitempty"`
	Classification  string             `json:"classification,omitempty"`
	ThreatAnalysis  *threat.Assessment `json:"threat_analysis,omitempty"`
	AlertSent       bool               `json:"alert_sent"`
	AlertDebounced  bool               `json:"alert_debounced"`
	Error           string             `json:"error,omitempty"`
	ProcessingMs    int64              `json:"processing_time_ms"`
	Timestamp       time.Time          `json:"timestamp"`
}

// newFrameResult starts a result record at the CAPTURED stage
func newFrameResult(frameID string, sequence uint64, framePath string) *FrameResult {
	return &FrameResult{
		FrameID:   frameID,
		Sequence:  sequence,
		FramePath: framePath,
		Stage:     StageCaptured,
		Timestamp: time.Now().UTC(),
	}
}

// advance moves the record to the next stage, enforcing the state machine
func (r *FrameResult) advance(to Stage) error {
	for _, next := range validTransitions[r.Stage] {
		if next == to {
			r.Stage = to
			return nil
		}
	}
	return fmt.Errorf("invalid stage transition %s -> %s", r.Stage, to)
}

// fail marks the record FAILED with the given error. FAILED is reachable
// from every non-terminal stage.
func (r *FrameResult) fail(err error) {
	if !r.Stage.Terminal() {
		r.Stage = StageFailed
	}
	r.Error = err.Error()
}

// skip finishes the record as filtered out at the current stage
func (r *FrameResult) skip(reason string) error {
	r.Skipped = true
	r.SkipReason = reason
	return r.advance(StageDone)
}
