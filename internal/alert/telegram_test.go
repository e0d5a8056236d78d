package alert

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/threat"
)

func testAssessment() *threat.Assessment {
	return &threat.Assessment{
		Timestamp:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		FrameID:           "frame-1",
		Classification:    "a person climbing over a fence at night",
		Detected:          true,
		Level:             threat.LevelHigh,
		Score:             4,
		Reasons:           []string{"HIGH: climbing fence", "HIGH: at night"},
		Confidence:        65,
		RecommendedAction: "investigate_immediately",
	}
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.jpg")
	if err := os.WriteFile(path, []byte("jpegdata"), 0644); err != nil {
		t.Fatalf("write test image: %v", err)
	}
	return path
}

func TestSendAlertWithPhoto(t *testing.T) {
	var gotPath string
	var gotCaption string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotCaption = r.FormValue("caption")
		if r.FormValue("chat_id") != "12345" {
			t.Errorf("chat_id = %q, want 12345", r.FormValue("chat_id"))
		}
		if _, _, err := r.FormFile("photo"); err != nil {
			t.Errorf("photo part missing: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(NotifierConfig{
		Enabled:  true,
		BotToken: "token",
		ChatID:   "12345",
		BaseURL:  server.URL,
	}, logger.NewNopLogger())

	if err := n.SendAlert(context.Background(), testAssessment(), writeTestImage(t)); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if gotPath != "/bottoken/sendPhoto" {
		t.Errorf("path = %q, want /bottoken/sendPhoto", gotPath)
	}
	if !strings.Contains(gotCaption, "HIGH PRIORITY") {
		t.Errorf("caption missing priority line: %q", gotCaption)
	}
}

func TestSendAlertFallsBackToText(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/sendPhoto") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(NotifierConfig{
		Enabled:  true,
		BotToken: "token",
		ChatID:   "12345",
		BaseURL:  server.URL,
	}, logger.NewNopLogger())

	if err := n.SendAlert(context.Background(), testAssessment(), writeTestImage(t)); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if len(calls) != 2 || !strings.HasSuffix(calls[1], "/sendMessage") {
		t.Errorf("calls = %v, want sendPhoto then sendMessage", calls)
	}
}

func TestSendAlertWithoutImage(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(NotifierConfig{
		Enabled:  true,
		BotToken: "token",
		ChatID:   "12345",
		BaseURL:  server.URL,
	}, logger.NewNopLogger())

	if err := n.SendAlert(context.Background(), testAssessment(), ""); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Errorf("path = %q, want /bottoken/sendMessage", gotPath)
	}
}

func TestSendAlertDeliveryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	n := NewNotifier(NotifierConfig{
		Enabled:  true,
		BotToken: "bad",
		ChatID:   "12345",
		BaseURL:  server.URL,
	}, logger.NewNopLogger())

	err := n.SendAlert(context.Background(), testAssessment(), "")
	var deliveryErr *DeliveryError
	if !errors.As(err, &deliveryErr) {
		t.Fatalf("error = %v, want *DeliveryError", err)
	}
	if deliveryErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", deliveryErr.StatusCode)
	}
}

func TestSendAlertDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("disabled notifier must not call the API")
	}))
	defer server.Close()

	n := NewNotifier(NotifierConfig{
		Enabled: false,
		BaseURL: server.URL,
	}, logger.NewNopLogger())

	if err := n.SendAlert(context.Background(), testAssessment(), ""); err != nil {
		t.Fatalf("SendAlert on disabled notifier: %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/getMe") {
			t.Errorf("path = %q, want getMe", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"username":"sentry_bot"}}`))
	}))
	defer server.Close()

	n := NewNotifier(NotifierConfig{
		Enabled:  true,
		BotToken: "token",
		BaseURL:  server.URL,
	}, logger.NewNopLogger())

	if err := n.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
}

func TestFormatAlertMessage(t *testing.T) {
	msg := FormatAlertMessage(testAssessment())

	for _, want := range []string{
		"SAFETY ALERT - HIGH PRIORITY",
		"a person climbing over a fence at night",
		"THREAT INDICATORS:",
		"climbing fence",
		"Confidence: 65%",
		"Recommended action: investigate_immediately",
		"IMMEDIATE ATTENTION REQUIRED",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	// Keyword lines strip the tier prefix
	if strings.Contains(msg, "HIGH: climbing fence") {
		t.Error("indicator lines should show only the keyword")
	}
}

func TestFormatAlertMessageLowLevel(t *testing.T) {
	a := testAssessment()
	a.Level = threat.LevelLow
	a.Score = 2
	a.Reasons = nil

	msg := FormatAlertMessage(a)
	if strings.Contains(msg, "IMMEDIATE ATTENTION REQUIRED") {
		t.Error("low level alerts should not demand immediate attention")
	}
	if strings.Contains(msg, "THREAT INDICATORS") {
		t.Error("message should omit indicator section when there are no reasons")
	}
}

func TestTruncateCaptionKeepsRunesIntact(t *testing.T) {
	// Emoji straddling the limit must not be cut mid-rune.
	caption := strings.Repeat("x", maxCaptionLen-2) + "\U0001F6A8\U0001F6A8"

	got := truncateCaption(caption)
	if len(got) > maxCaptionLen {
		t.Errorf("truncated caption is %d bytes, want <= %d", len(got), maxCaptionLen)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated caption is not valid UTF-8: %q", got)
	}
	if short := "short caption"; truncateCaption(short) != short {
		t.Error("captions under the limit must pass through unchanged")
	}
}

func TestFormatAlertMessageCapsIndicators(t *testing.T) {
	a := testAssessment()
	a.Reasons = []string{
		"HIGH: one", "HIGH: two", "HIGH: three",
		"HIGH: four", "HIGH: five", "HIGH: six",
	}

	msg := FormatAlertMessage(a)
	if strings.Contains(msg, "six") {
		t.Error("message should cap indicators at five")
	}
	if !strings.Contains(msg, "five") {
		t.Error("message should include the fifth indicator")
	}
}
