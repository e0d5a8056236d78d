package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseChecker checks result store connectivity
type DatabaseChecker struct {
	dbPath string
}

func NewDatabaseChecker(dbPath string) *DatabaseChecker {
	return &DatabaseChecker{dbPath: dbPath}
}

func (c *DatabaseChecker) Name() string {
	return "database"
}

func (c *DatabaseChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if c.dbPath == "" {
		check.Status = StatusDegraded
		check.Message = "Database path not configured"
		return check
	}

	if _, err := os.Stat(c.dbPath); os.IsNotExist(err) {
		// Database file doesn't exist yet - this is OK for first run
		check.Status = StatusHealthy
		check.Message = "Database file will be created on first use"
		check.Details["file_exists"] = false
		return check
	}

	db, err := sql.Open("sqlite3", c.dbPath)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Failed to open database: %v", err)
		return check
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Database ping failed: %v", err)
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Database connection OK"
	check.Details["file_exists"] = true

	return check
}

// ClassifierChecker checks classification backend reachability
type ClassifierChecker struct {
	apiURL string
	client *http.Client
}

func NewClassifierChecker(apiURL string) *ClassifierChecker {
	return &ClassifierChecker{
		apiURL: apiURL,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *ClassifierChecker) Name() string {
	return "classifier"
}

func (c *ClassifierChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	if c.apiURL == "" {
		check.Status = StatusDegraded
		check.Message = "Classifier URL not configured"
		return check
	}

	parsed, err := url.Parse(c.apiURL)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Invalid classifier URL: %v", err)
		return check
	}
	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Failed to create request: %v", err)
		return check
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Reachability only. The actual calls carry auth and retries.
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Classifier backend unreachable: %v", err)
		return check
	}
	defer resp.Body.Close()

	check.Status = StatusHealthy
	check.Message = "Classifier backend reachable"
	check.Details["status_code"] = resp.StatusCode

	return check
}

// FramesDirChecker checks the captured-frames directory is writable
type FramesDirChecker struct {
	dir string
}

func NewFramesDirChecker(dir string) *FramesDirChecker {
	return &FramesDirChecker{dir: dir}
}

func (c *FramesDirChecker) Name() string {
	return "frames_dir"
}

func (c *FramesDirChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"dir": c.dir},
	}

	if c.dir == "" {
		check.Status = StatusDegraded
		check.Message = "Frames directory not configured"
		return check
	}

	info, err := os.Stat(c.dir)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Frames directory missing: %v", err)
		return check
	}
	if !info.IsDir() {
		check.Status = StatusUnhealthy
		check.Message = "Frames path is not a directory"
		return check
	}

	probe := filepath.Join(c.dir, ".health_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Frames directory not writable: %v", err)
		return check
	}
	os.Remove(probe)

	check.Status = StatusHealthy
	check.Message = "Frames directory writable"

	return check
}
