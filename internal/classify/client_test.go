package classify

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/state"
)

type memoryStore struct {
	mu      sync.Mutex
	records []state.ClassificationRecord
}

func (s *memoryStore) SaveClassification(_ context.Context, record state.ClassificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame_001.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff, 0xe0, 0x00}, 0644); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}
	return path
}

func jsonResponse(task, content string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": task + content}},
		},
	})
	return body
}

func newTestClient(url string, store ResultStore) *Client {
	return NewClient(ClientConfig{
		APIURL:     url,
		APIKey:     "test-key",
		Task:       "<DETAILED_CAPTION>",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: 10 * time.Millisecond,
	}, store, logger.NewNopLogger())
}

func TestClassify_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Unexpected auth header: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonResponse("<DETAILED_CAPTION>", "A person standing near a gate"))
	}))
	defer server.Close()

	store := &memoryStore{}
	client := newTestClient(server.URL, store)

	result, err := client.Classify(context.Background(), "frame-1", writeTestImage(t))
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if result.Description != "A person standing near a gate" {
		t.Errorf("Expected task prefix stripped, got %q", result.Description)
	}
	if len(store.records) != 1 {
		t.Fatalf("Expected 1 persisted record, got %d", len(store.records))
	}
	if store.records[0].FrameID != "frame-1" {
		t.Errorf("Unexpected persisted frame id: %s", store.records[0].FrameID)
	}
}

func TestClassify_RetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()

		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(jsonResponse("<DETAILED_CAPTION>", "empty driveway"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	result, err := client.Classify(context.Background(), "frame-1", writeTestImage(t))
	if err != nil {
		t.Fatalf("Expected success on third attempt, got %v", err)
	}
	if result.Description != "empty driveway" {
		t.Errorf("Unexpected description: %s", result.Description)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestClassify_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	_, err := client.Classify(context.Background(), "frame-1", writeTestImage(t))
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}

	var classifyErr *Error
	if !errors.As(err, &classifyErr) {
		t.Fatalf("Expected *Error, got %T", err)
	}
	if classifyErr.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %d", classifyErr.Attempts)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 requests, got %d", attempts)
	}
}

func TestClassify_ZipResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		zw := zip.NewWriter(&buf)
		f, _ := zw.Create("result.response")
		f.Write(jsonResponse("<DETAILED_CAPTION>", "a cat on a fence"))
		zw.Close()

		w.Header().Set("Content-Type", "application/zip")
		w.Write(buf.Bytes())
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	result, err := client.Classify(context.Background(), "frame-1", writeTestImage(t))
	if err != nil {
		t.Fatalf("Classify failed on zip response: %v", err)
	}
	if result.Description != "a cat on a fence" {
		t.Errorf("Unexpected description: %s", result.Description)
	}
}

func TestClassify_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, nil)

	_, err := client.Classify(context.Background(), "frame-1", writeTestImage(t))
	var classifyErr *Error
	if !errors.As(err, &classifyErr) {
		t.Fatalf("Expected *Error for malformed payload, got %v", err)
	}
}

func TestClassify_MissingImage(t *testing.T) {
	client := newTestClient("http://localhost:0", nil)

	_, err := client.Classify(context.Background(), "frame-1", "/nonexistent/frame.jpg")
	var classifyErr *Error
	if !errors.As(err, &classifyErr) {
		t.Fatalf("Expected *Error for missing image, got %v", err)
	}
	if classifyErr.Attempts != 0 {
		t.Errorf("Expected no attempts for missing image, got %d", classifyErr.Attempts)
	}
}

func TestClassify_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		APIURL:     server.URL,
		APIKey:     "test-key",
		MaxRetries: 5,
		RetryDelay: time.Second,
	}, nil, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Classify(ctx, "frame-1", writeTestImage(t))
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}
