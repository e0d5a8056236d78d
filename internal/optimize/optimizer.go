// Package optimize normalizes frames before they are shipped to the
// classification backend: bounded dimensions, bounded encoded size.
package optimize

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/parth2411/aerialintelligence/internal/logger"
)

// minQuality is the floor for the quality step-down loop
const minQuality = 40

// Optimizer resizes and re-encodes frames to fit the backend's size budget
type Optimizer struct {
	maxSizeKB    int
	quality      int
	maxDimension int
	logger       *logger.Logger
}

// Config contains optimizer configuration
type Config struct {
	MaxSizeKB    int // Target maximum encoded size
	Quality      int // Starting JPEG quality (1-100)
	MaxDimension int // Longest side after resize
}

// NewOptimizer creates a frame optimizer
func NewOptimizer(cfg Config, log *logger.Logger) *Optimizer {
	maxSizeKB := cfg.MaxSizeKB
	if maxSizeKB <= 0 {
		maxSizeKB = 150
	}
	quality := cfg.Quality
	if quality < 1 || quality > 100 {
		quality = 85
	}
	maxDimension := cfg.MaxDimension
	if maxDimension <= 0 {
		maxDimension = 1280
	}

	return &Optimizer{
		maxSizeKB:    maxSizeKB,
		quality:      quality,
		maxDimension: maxDimension,
		logger:       log,
	}
}

// Optimize resizes img preserving aspect ratio and re-encodes it at
// decreasing quality steps until the result fits maxSizeKB or the quality
// floor is hit. It always writes a new file next to srcPath with an "opt_"
// prefix; the caller owns cleanup of both files.
func (o *Optimizer) Optimize(img image.Image, srcPath string) (string, error) {
	resized := resizeToFit(img, o.maxDimension)

	var buf bytes.Buffer
	quality := o.quality
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
			return "", fmt.Errorf("failed to encode frame: %w", err)
		}
		if buf.Len() <= o.maxSizeKB*1024 || quality <= minQuality {
			break
		}
		quality -= 10
		if quality < minQuality {
			quality = minQuality
		}
	}

	optimizedPath := filepath.Join(filepath.Dir(srcPath), "opt_"+filepath.Base(srcPath))
	if err := os.WriteFile(optimizedPath, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write optimized frame: %w", err)
	}

	o.logger.Debug("Frame optimized",
		"path", optimizedPath,
		"size_kb", buf.Len()/1024,
		"quality", quality,
	)

	return optimizedPath, nil
}

// resizeToFit scales img so its longest side is at most maxDimension,
// preserving aspect ratio. Images already within bounds are returned as is.
func resizeToFit(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxDimension && height <= maxDimension {
		return img
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxDimension
		newHeight = (height * maxDimension) / width
	} else {
		newHeight = maxDimension
		newWidth = (width * maxDimension) / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	for y := 0; y < newHeight; y++ {
		srcY := bounds.Min.Y + (y*height)/newHeight
		for x := 0; x < newWidth; x++ {
			srcX := bounds.Min.X + (x*width)/newWidth
			resized.Set(x, y, img.At(srcX, srcY))
		}
	}

	return resized
}
