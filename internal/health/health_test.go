package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parth2411/aerialintelligence/internal/logger"
)

type staticChecker struct {
	name   string
	status Status
}

func (c *staticChecker) Name() string { return c.name }

func (c *staticChecker) Check(ctx context.Context) Check {
	return Check{Name: c.name, Status: c.status, Timestamp: time.Now()}
}

func TestCheckAggregatesWorstStatus(t *testing.T) {
	mgr := NewManager(0, logger.NewNopLogger(), nil)
	mgr.RegisterChecker(&staticChecker{name: "a", status: StatusHealthy})
	mgr.RegisterChecker(&staticChecker{name: "b", status: StatusDegraded})

	report := mgr.Check(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("status = %s, want %s", report.Status, StatusDegraded)
	}

	mgr.RegisterChecker(&staticChecker{name: "c", status: StatusUnhealthy})
	report = mgr.Check(context.Background())
	if report.Status != StatusUnhealthy {
		t.Errorf("status = %s, want %s", report.Status, StatusUnhealthy)
	}
	if len(report.Checks) != 3 {
		t.Errorf("checks = %d, want 3", len(report.Checks))
	}
}

func TestHealthEndpointStatusCodes(t *testing.T) {
	mgr := NewManager(0, logger.NewNopLogger(), nil)
	mgr.RegisterChecker(&staticChecker{name: "a", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	mgr.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 503 {
		t.Errorf("unhealthy /health code = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	mgr.handleLiveness(rec, httptest.NewRequest("GET", "/health/live", nil))
	if rec.Code != 200 {
		t.Errorf("/health/live code = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	mgr.handleReadiness(rec, httptest.NewRequest("GET", "/health/ready", nil))
	if rec.Code != 503 {
		t.Errorf("unhealthy /health/ready code = %d, want 503", rec.Code)
	}
}

func TestDatabaseCheckerMissingFile(t *testing.T) {
	checker := NewDatabaseChecker(filepath.Join(t.TempDir(), "state.db"))
	check := checker.Check(context.Background())

	// First run: the file appears when the store opens
	if check.Status != StatusHealthy {
		t.Errorf("status = %s, want %s", check.Status, StatusHealthy)
	}
}

func TestDatabaseCheckerUnconfigured(t *testing.T) {
	check := NewDatabaseChecker("").Check(context.Background())
	if check.Status != StatusDegraded {
		t.Errorf("status = %s, want %s", check.Status, StatusDegraded)
	}
}

func TestFramesDirChecker(t *testing.T) {
	dir := t.TempDir()
	check := NewFramesDirChecker(dir).Check(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("writable dir status = %s, want %s", check.Status, StatusHealthy)
	}

	check = NewFramesDirChecker(filepath.Join(dir, "missing")).Check(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("missing dir status = %s, want %s", check.Status, StatusUnhealthy)
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	check = NewFramesDirChecker(file).Check(context.Background())
	if check.Status != StatusUnhealthy {
		t.Errorf("non-dir status = %s, want %s", check.Status, StatusUnhealthy)
	}
}

func TestClassifierCheckerUnconfigured(t *testing.T) {
	check := NewClassifierChecker("").Check(context.Background())
	if check.Status != StatusDegraded {
		t.Errorf("status = %s, want %s", check.Status, StatusDegraded)
	}
}

func TestClassifierCheckerReachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	check := NewClassifierChecker(server.URL + "/v1/chat/completions").Check(context.Background())
	if check.Status != StatusHealthy {
		t.Errorf("status = %s, want %s: %s", check.Status, StatusHealthy, check.Message)
	}

	server.Close()
	check = NewClassifierChecker(server.URL + "/v1/chat/completions").Check(context.Background())
	if check.Status != StatusDegraded {
		t.Errorf("unreachable status = %s, want %s", check.Status, StatusDegraded)
	}
}
