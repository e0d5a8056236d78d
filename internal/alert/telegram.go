package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parth2411/aerialintelligence/internal/logger"
	"github.com/parth2411/aerialintelligence/internal/threat"
)

const (
	telegramAPIBase = "https://api.telegram.org"

	messageTimeout = 10 * time.Second
	photoTimeout   = 30 * time.Second

	// Telegram caps photo captions at 1024 characters
	maxCaptionLen = 1024
)

var levelEmoji = map[threat.Level]string{
	threat.LevelCritical: "\U0001F6A8",
	threat.LevelHigh:     "⚠️",
	threat.LevelMedium:   "⚡",
	threat.LevelLow:      "\U0001F514",
	threat.LevelNone:     "✅",
}

// DeliveryError indicates the alert could not be handed to Telegram. The
// pipeline uses it to return the debounce window for a retried send.
type DeliveryError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("telegram %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Notifier delivers alerts through the Telegram Bot API
type Notifier struct {
	apiURL  string
	chatID  string
	client  *http.Client
	logger  *logger.Logger
	enabled bool
}

// NotifierConfig contains notifier configuration
type NotifierConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string

	// BaseURL overrides the Telegram API endpoint, used in tests
	BaseURL string
}

// NewNotifier creates a Telegram notifier
func NewNotifier(cfg NotifierConfig, log *logger.Logger) *Notifier {
	base := cfg.BaseURL
	if base == "" {
		base = telegramAPIBase
	}

	return &Notifier{
		apiURL:  fmt.Sprintf("%s/bot%s", base, cfg.BotToken),
		chatID:  cfg.ChatID,
		client:  &http.Client{Timeout: photoTimeout},
		logger:  log,
		enabled: cfg.Enabled,
	}
}

// Enabled reports whether alert delivery is configured
func (n *Notifier) Enabled() bool {
	return n.enabled
}

// SendAlert delivers a threat assessment to the configured chat. When
// imagePath names an existing file the alert goes out as a photo with the
// formatted message as caption; a failed photo send falls back to text.
func (n *Notifier) SendAlert(ctx context.Context, assessment *threat.Assessment, imagePath string) error {
	if !n.enabled {
		n.logger.Debug("Telegram notifications disabled, dropping alert",
			"threat_level", assessment.Level)
		return nil
	}

	n.logger.Info("Sending alert to Telegram",
		"threat_level", assessment.Level,
		"threat_score", assessment.Score)

	message := FormatAlertMessage(assessment)

	if imagePath != "" {
		if _, err := os.Stat(imagePath); err == nil {
			err := n.sendPhoto(ctx, imagePath, message)
			if err == nil {
				return nil
			}
			n.logger.Warn("Photo alert failed, falling back to text",
				"image", imagePath,
				"error", err)
		}
	}

	return n.sendMessage(ctx, message)
}

// TestConnection verifies the bot token against the getMe endpoint
func (n *Notifier) TestConnection(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, n.apiURL+"/getMe", nil)
	if err != nil {
		return &DeliveryError{Op: "getMe", Err: err}
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Op: "getMe", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{Op: "getMe", StatusCode: resp.StatusCode}
	}

	var result struct {
		Result struct {
			Username string `json:"username"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &DeliveryError{Op: "getMe", Err: err}
	}

	n.logger.Info("Telegram bot connected", "username", result.Result.Username)
	return nil
}

func (n *Notifier) sendMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    n.chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return &DeliveryError{Op: "sendMessage", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		n.apiURL+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return &DeliveryError{Op: "sendMessage", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Op: "sendMessage", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{Op: "sendMessage", StatusCode: resp.StatusCode}
	}

	n.logger.Info("Alert sent")
	return nil
}

func (n *Notifier) sendPhoto(ctx context.Context, imagePath, caption string) error {
	photo, err := os.Open(imagePath)
	if err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	defer photo.Close()

	caption = truncateCaption(caption)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("chat_id", n.chatID); err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(imagePath))
	if err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	if _, err := io.Copy(part, photo); err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	if err := writer.Close(); err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, photoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		n.apiURL+"/sendPhoto", &body)
	if err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Op: "sendPhoto", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &DeliveryError{Op: "sendPhoto", StatusCode: resp.StatusCode}
	}

	n.logger.Info("Alert with image sent")
	return nil
}

// truncateCaption limits a caption to maxCaptionLen bytes without cutting
// through a multi-byte rune.
func truncateCaption(caption string) string {
	if len(caption) <= maxCaptionLen {
		return caption
	}
	cut := maxCaptionLen
	for cut > 0 && !utf8.RuneStart(caption[cut]) {
		cut--
	}
	return caption[:cut]
}

// FormatAlertMessage renders a threat assessment as a Telegram message
func FormatAlertMessage(a *threat.Assessment) string {
	emoji, ok := levelEmoji[a.Level]
	if !ok {
		emoji = "\U0001F4E2"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s SAFETY ALERT - %s PRIORITY %s\n\n", emoji, a.Level, emoji)
	fmt.Fprintf(&b, "⏰ Time: %s\n\n", a.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "\U0001F50D DETECTED SITUATION:\n%s\n\n", a.Classification)

	if len(a.Reasons) > 0 {
		b.WriteString("⚠️ THREAT INDICATORS:\n")
		reasons := a.Reasons
		if len(reasons) > 5 {
			reasons = reasons[:5]
		}
		for _, reason := range reasons {
			// Reasons are "TIER: keyword", show just the keyword
			keyword := reason
			if idx := strings.LastIndex(reason, ":"); idx >= 0 {
				keyword = strings.TrimSpace(reason[idx+1:])
			}
			fmt.Fprintf(&b, "• %s\n", keyword)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\U0001F4CA Confidence: %d%%\n", a.Confidence)
	if a.RecommendedAction != "" {
		fmt.Fprintf(&b, "\U0001F449 Recommended action: %s\n", a.RecommendedAction)
	}
	b.WriteString("\n")

	b.WriteString("\U0001F4F1 This is an automated safety monitoring alert.\n")

	if a.Level == threat.LevelHigh || a.Level == threat.LevelCritical {
		fmt.Fprintf(&b, "%s IMMEDIATE ATTENTION REQUIRED %s", emoji, emoji)
	}

	return b.String()
}
