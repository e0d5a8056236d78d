// Package dedup filters frames that are perceptually identical to the last
// unique frame. Motion filtering and deduplication catch different
// regressions: the perceptual hash tolerates compression noise that a raw
// pixel diff counts as change.
package dedup

import (
	"image"
	"sync"

	"github.com/parth2411/aerialintelligence/internal/frame"
)

// hashSize is the fingerprint grid edge; the hash is hashSize² bits.
const hashSize = 64

// Deduplicator detects frames that duplicate the previous unique frame of a
// single stream using an average-hash fingerprint.
type Deduplicator struct {
	similarityThreshold float64
	reference           []bool
	mu                  sync.Mutex
}

// Config contains deduplicator configuration
type Config struct {
	SimilarityThreshold float64 // 0-1, default 0.95
}

// NewDeduplicator creates a deduplicator for one stream
func NewDeduplicator(cfg Config) *Deduplicator {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.95
	}

	return &Deduplicator{
		similarityThreshold: threshold,
	}
}

// IsDuplicate reports whether img is perceptually identical to the last
// unique frame, along with the similarity in [0,1]. The first frame is never
// a duplicate. The reference hash advances only when a frame is judged
// unique, mirroring the motion filter's last-accepted semantics.
func (d *Deduplicator) IsDuplicate(img image.Image) (bool, float64) {
	hash := computeHash(img)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reference == nil {
		d.reference = hash
		return false, 0
	}

	similarity := compareHashes(d.reference, hash)
	isDup := similarity >= d.similarityThreshold

	if !isDup {
		d.reference = hash
	}

	return isDup, similarity
}

// Reset clears the reference hash. Call when the stream restarts.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reference = nil
}

// computeHash builds an average hash: each bit records whether the pixel is
// brighter than the mean of the downsampled grayscale grid.
func computeHash(img image.Image) []bool {
	gray := frame.GrayscaleSquare(img, hashSize)

	var sum uint64
	for _, p := range gray.Pix {
		sum += uint64(p)
	}
	avg := uint8(sum / uint64(len(gray.Pix)))

	hash := make([]bool, len(gray.Pix))
	for i, p := range gray.Pix {
		hash[i] = p > avg
	}
	return hash
}

// compareHashes returns the fraction of matching bits
func compareHashes(a, b []bool) float64 {
	if len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}
