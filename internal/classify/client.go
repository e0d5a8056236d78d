// Package classify is the HTTP client for the vision-language classification
// backend. The backend exposes a chat-style endpoint that accepts an inline
// base64 image and answers with a caption or description; some deployments
// return the payload wrapped in a ZIP archive, which is handled transparently.
package classify

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/state"
)

// maxImageBytes caps the request image payload (backend hard limit)
const maxImageBytes = 5 * 1024 * 1024

// ResultStore persists successful classifications keyed by frame identity
type ResultStore interface {
	SaveClassification(ctx context.Context, record state.ClassificationRecord) error
}

// Client calls the vision classification backend with bounded retries
type Client struct {
	apiURL     string
	apiKey     string
	task       string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	store      ResultStore
	logger     *logger.Logger
}

// ClientConfig contains configuration for the classification client
type ClientConfig struct {
	APIURL     string
	APIKey     string
	Task       string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// NewClient creates a classification client. store may be nil, in which case
// results are not persisted.
func NewClient(cfg ClientConfig, store ResultStore, log *logger.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Task == "" {
		cfg.Task = "<DETAILED_CAPTION>"
	}

	return &Client{
		apiURL:     cfg.APIURL,
		apiKey:     cfg.APIKey,
		task:       cfg.Task,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		store:      store,
		logger:     log,
	}
}

// Classify submits the image at imagePath and returns the backend's
// description. Retries transient failures up to the configured attempt count
// with a linear backoff before surfacing a *Error. On success the result is
// persisted to the result store keyed by frameID.
func (c *Client) Classify(ctx context.Context, frameID, imagePath string) (*Result, error) {
	imageData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, &Error{Attempts: 0, Err: fmt.Errorf("failed to read image: %w", err)}
	}
	if len(imageData) > maxImageBytes {
		return nil, &Error{Attempts: 0, Err: fmt.Errorf("image too large: %dKB (max %dKB)", len(imageData)/1024, maxImageBytes/1024)}
	}

	payload, err := c.buildPayload(imagePath, imageData)
	if err != nil {
		return nil, &Error{Attempts: 0, Err: err}
	}

	var lastErr error
	lastStatus := 0

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			c.logger.Debug("Retrying classification",
				"frame_id", frameID,
				"attempt", attempt,
				"max_retries", c.maxRetries,
			)
			select {
			case <-ctx.Done():
				return nil, &Error{Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(c.retryDelay * time.Duration(attempt-1)):
			}
		}

		result, status, err := c.doRequest(ctx, payload)
		if err == nil {
			c.persist(ctx, frameID, imagePath, result)
			return result, nil
		}

		lastErr = err
		lastStatus = status
		c.logger.Warn("Classification attempt failed",
			"frame_id", frameID,
			"attempt", attempt,
			"status", status,
			"error", err,
		)
	}

	return nil, &Error{StatusCode: lastStatus, Attempts: c.maxRetries, Err: lastErr}
}

// buildPayload creates the chat request with an inline data-URI image
func (c *Client) buildPayload(imagePath string, imageData []byte) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(imageData)
	content := fmt.Sprintf(`%s<img src="data:%s;base64,%s" />`, c.task, contentTypeFor(imagePath), encoded)

	payload, err := json.Marshal(chatRequest{
		Messages: []chatMessage{{Role: "user", Content: content}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return payload, nil
}

// doRequest performs a single classification attempt
func (c *Client) doRequest(ctx context.Context, payload []byte) (*Result, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, statusError(resp.StatusCode, body)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	var raw string
	switch {
	case strings.Contains(contentType, "application/json"):
		raw, err = extractFromJSON(body)
	case strings.Contains(contentType, "application/zip"), strings.Contains(contentType, "application/octet-stream"):
		raw, err = extractFromZip(body)
	default:
		return nil, resp.StatusCode, fmt.Errorf("unexpected content type: %s", contentType)
	}
	if err != nil {
		return nil, resp.StatusCode, err
	}

	description := strings.TrimSpace(strings.TrimPrefix(raw, c.task))

	return &Result{
		Description: description,
		Task:        c.task,
		Raw:         raw,
		LatencyMs:   time.Since(startTime).Milliseconds(),
	}, resp.StatusCode, nil
}

// persist stores the successful result; failures here are logged, not
// surfaced, since the caller already has a valid classification.
func (c *Client) persist(ctx context.Context, frameID, imagePath string, result *Result) {
	if c.store == nil {
		return
	}
	err := c.store.SaveClassification(ctx, state.ClassificationRecord{
		FrameID:     frameID,
		FramePath:   imagePath,
		Task:        result.Task,
		Description: result.Description,
		LatencyMs:   result.LatencyMs,
	})
	if err != nil {
		c.logger.Warn("Failed to persist classification", "frame_id", frameID, "error", err)
	}
}

// extractFromJSON pulls the message content out of a chat response body
func extractFromJSON(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("response contains no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// extractFromZip handles backends that wrap the JSON response in a ZIP
// archive containing a .response file.
func extractFromZip(body []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("response is not a valid zip archive: %w", err)
	}

	for _, file := range reader.File {
		if !strings.HasSuffix(file.Name, ".response") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file.Name, err)
		}
		return extractFromJSON(content)
	}

	return "", fmt.Errorf("no .response file found in zip archive")
}

// statusError maps backend status codes to actionable messages
func statusError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("authentication failed: check the API key")
	case http.StatusForbidden:
		return fmt.Errorf("access forbidden: API key may lack permission")
	case http.StatusRequestEntityTooLarge:
		return fmt.Errorf("image too large: reduce optimizer quality or size")
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limit exceeded")
	default:
		msg := string(body)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("backend returned status %d: %s", status, msg)
	}
}

// contentTypeFor determines the image MIME type from the file extension
func contentTypeFor(imagePath string) string {
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".bmp":
		return "image/bmp"
	default:
		return "image/jpeg"
	}
}
