package frame

import (
	"fmt"
	"image"
	"os"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/google/uuid"
)

// Frame is an immutable reference to captured image bytes at a point in time
type Frame struct {
	ID        string    // UUID
	Sequence  uint64    // Monotonic capture sequence number
	Timestamp time.Time // Capture timestamp
	Path      string    // Path to the image file
	Size      int64     // File size in bytes
}

// DataError indicates a corrupt, empty or unreadable image file. Frames that
// fail with a DataError are dropped with the reason recorded; the pipeline
// continues.
type DataError struct {
	Path string
	Err  error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("bad frame data %s: %v", e.Path, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// New creates a frame reference for a captured file
func New(path string, sequence uint64) (*Frame, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &DataError{Path: path, Err: err}
	}
	if info.Size() == 0 {
		return nil, &DataError{Path: path, Err: fmt.Errorf("empty file")}
	}

	return &Frame{
		ID:        uuid.New().String(),
		Sequence:  sequence,
		Timestamp: info.ModTime(),
		Path:      path,
		Size:      info.Size(),
	}, nil
}

// Load decodes the frame's image file
func (f *Frame) Load() (image.Image, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, &DataError{Path: f.Path, Err: err}
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, &DataError{Path: f.Path, Err: err}
	}

	return img, nil
}
