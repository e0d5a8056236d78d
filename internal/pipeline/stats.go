package pipeline

import "sync/atomic"

// Stats aggregates pipeline counters across the session. All counters are
// updated with atomics so workers never contend on a lock for bookkeeping.
type Stats struct {
	total            atomic.Uint64
	skippedNoMotion  atomic.Uint64
	skippedDuplicate atomic.Uint64
	processed        atomic.Uint64
	threatsDetected  atomic.Uint64
	alertsSent       atomic.Uint64
	alertsDebounced  atomic.Uint64
	failed           atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters
type StatsSnapshot struct {
	Total              uint64  `json:"total_frames"`
	SkippedNoMotion    uint64  `json:"skipped_no_motion"`
	SkippedDuplicate   uint64  `json:"skipped_duplicate"`
	Processed          uint64  `json:"processed"`
	ThreatsDetected    uint64  `json:"threats_detected"`
	AlertsSent         uint64  `json:"alerts_sent"`
	AlertsDebounced    uint64  `json:"alerts_debounced"`
	Failed             uint64  `json:"failed"`
	CostSavingsPercent float64 `json:"cost_savings_percent"`
}

// Snapshot returns a consistent-enough copy for reporting. Counters are
// read individually, exact cross-counter consistency is not required.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Total:            s.total.Load(),
		SkippedNoMotion:  s.skippedNoMotion.Load(),
		SkippedDuplicate: s.skippedDuplicate.Load(),
		Processed:        s.processed.Load(),
		ThreatsDetected:  s.threatsDetected.Load(),
		AlertsSent:       s.alertsSent.Load(),
		AlertsDebounced:  s.alertsDebounced.Load(),
		Failed:           s.failed.Load(),
	}

	// Every skipped frame is a classification call avoided
	if snap.Total > 0 {
		skipped := snap.SkippedNoMotion + snap.SkippedDuplicate
		snap.CostSavingsPercent = float64(skipped) / float64(snap.Total) * 100
	}
	return snap
}
