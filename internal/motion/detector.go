// Package motion gates frames on pixel-level change against the last
// accepted frame, so static scenes never reach the classification backend.
package motion

import (
	"image"
	"sync"

	"github.com/parth2411/aerialintelligence/internal/frame"
)

// Working grid width for frame comparison. Full-resolution diffing buys no
// accuracy at these thresholds and costs an order of magnitude more CPU.
const compareWidth = 320

// Detector detects significant motion between consecutive frames of a single
// stream. The reference frame advances only when a frame passes, so the
// filter always gates against the last moving frame rather than the last
// frame seen.
type Detector struct {
	threshold        int     // Per-pixel intensity delta (0-255)
	minChangePercent float64 // Minimum % of pixels that must change
	reference        *frame.Gray
	mu               sync.Mutex
}

// Config contains motion detector configuration
type Config struct {
	Threshold        int
	MinChangePercent float64
}

// NewDetector creates a motion detector for one stream
func NewDetector(cfg Config) *Detector {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 25
	}
	minChange := cfg.MinChangePercent
	if minChange <= 0 {
		minChange = 0.5
	}

	return &Detector{
		threshold:        threshold,
		minChangePercent: minChange,
	}
}

// DetectMotion reports whether img differs enough from the reference frame,
// along with the percentage of the frame that changed. The first frame of a
// stream always reports motion and becomes the reference.
func (d *Detector) DetectMotion(img image.Image) (bool, float64) {
	gray := frame.Grayscale(img, compareWidth)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reference == nil {
		d.reference = gray
		return true, 100.0
	}

	if len(gray.Pix) != len(d.reference.Pix) {
		// Resolution changed mid-stream; rebase on the new geometry.
		d.reference = gray
		return true, 100.0
	}

	changed := 0
	for i, p := range gray.Pix {
		diff := int(p) - int(d.reference.Pix[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > d.threshold {
			changed++
		}
	}

	changePercent := float64(changed) / float64(len(gray.Pix)) * 100
	hasMotion := changePercent >= d.minChangePercent

	if hasMotion {
		d.reference = gray
	}

	return hasMotion, changePercent
}

// Reset clears the reference frame. Call when the stream restarts.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reference = nil
}
