package classify

import "fmt"

// Result holds the text produced by the vision backend for one frame
type Result struct {
	Description string // Cleaned description text
	Task        string // Task selector the backend ran
	Raw         string // Raw message content before task-prefix stripping
	LatencyMs   int64  // Round-trip latency of the successful attempt
}

// Error indicates a classification failure after all retry attempts.
// One frame's classification failure never corrupts state for later frames.
type Error struct {
	StatusCode int // HTTP status of the last attempt, 0 for transport errors
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("classification failed after %d attempts (status %d): %v", e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("classification failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// chatRequest is the VLM request envelope
type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the VLM response envelope
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
