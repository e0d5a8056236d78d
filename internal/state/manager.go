package state

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/parth2411/aerialintelligence/internal/logger"
)

// Manager persists frame results, classifications and alert history
type Manager struct {
	db     *Database
	logger *logger.Logger
	mu     sync.RWMutex
}

// FrameResultRecord is the stored form of a per-frame result record
type FrameResultRecord struct {
	ID             string
	FrameID        string
	Sequence       uint64
	FramePath      string
	Skipped        bool
	SkipReason     string
	Stage          string
	ThreatLevel    string
	ThreatScore    int
	AlertSent      bool
	AlertDebounced bool
	Error          string
	ProcessingMs   int64
	Payload        string // Full result record as JSON
	CreatedAt      time.Time
}

// ClassificationRecord is a stored classification keyed by frame identity
type ClassificationRecord struct {
	FrameID     string
	FramePath   string
	Task        string
	Description string
	LatencyMs   int64
	CreatedAt   time.Time
}

// AlertRecord is a stored dispatched alert
type AlertRecord struct {
	ID         string
	FrameID    string
	Level      string
	Score      int
	Confidence int
	Message    string
	CreatedAt  time.Time
}

// NewManager creates a new state manager backed by SQLite at dbPath
func NewManager(dbPath string, log *logger.Logger) (*Manager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return &Manager{
		db:     db,
		logger: log,
	}, nil
}

// Close closes the state manager and database
func (m *Manager) Close() error {
	return m.db.Close()
}

// GetDB returns the database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db.GetDB()
}

// SaveSystemState saves a system state value
func (m *Manager) SaveSystemState(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `
		INSERT INTO system_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := m.db.GetDB().ExecContext(ctx, query, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to save system state: %w", err)
	}

	return nil
}

// GetSystemState retrieves a system state value
func (m *Manager) GetSystemState(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var value string
	query := `SELECT value FROM system_state WHERE key = ?`
	err := m.db.GetDB().QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get system state: %w", err)
	}

	return value, nil
}

// SaveFrameResult persists a frame result record
func (m *Manager) SaveFrameResult(ctx context.Context, record FrameResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `
		INSERT INTO frame_results (
			id, frame_id, sequence, frame_path, skipped, skip_reason, stage,
			threat_level, threat_score, alert_sent, alert_debounced, error,
			processing_ms, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := m.db.GetDB().ExecContext(ctx, query,
		record.ID, record.FrameID, record.Sequence, record.FramePath,
		record.Skipped, record.SkipReason, record.Stage,
		record.ThreatLevel, record.ThreatScore,
		record.AlertSent, record.AlertDebounced, record.Error,
		record.ProcessingMs, record.Payload, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save frame result: %w", err)
	}

	return nil
}

// GetRecentFrameResults retrieves the most recent frame results
func (m *Manager) GetRecentFrameResults(ctx context.Context, limit int) ([]FrameResultRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, frame_id, sequence, frame_path, skipped,
		       COALESCE(skip_reason, ''), stage,
		       COALESCE(threat_level, ''), COALESCE(threat_score, 0),
		       alert_sent, alert_debounced, COALESCE(error, ''),
		       COALESCE(processing_ms, 0), COALESCE(payload, ''), created_at
		FROM frame_results
		ORDER BY created_at DESC, sequence DESC
		LIMIT ?
	`

	rows, err := m.db.GetDB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame results: %w", err)
	}
	defer rows.Close()

	var records []FrameResultRecord
	for rows.Next() {
		var r FrameResultRecord
		err := rows.Scan(
			&r.ID, &r.FrameID, &r.Sequence, &r.FramePath, &r.Skipped,
			&r.SkipReason, &r.Stage, &r.ThreatLevel, &r.ThreatScore,
			&r.AlertSent, &r.AlertDebounced, &r.Error,
			&r.ProcessingMs, &r.Payload, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan frame result: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// SaveClassification persists a classification result keyed by frame identity
func (m *Manager) SaveClassification(ctx context.Context, record ClassificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `
		INSERT INTO classifications (frame_id, frame_path, task, description, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(frame_id) DO UPDATE SET
			description = excluded.description,
			task = excluded.task,
			latency_ms = excluded.latency_ms,
			created_at = excluded.created_at
	`

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := m.db.GetDB().ExecContext(ctx, query,
		record.FrameID, record.FramePath, record.Task,
		record.Description, record.LatencyMs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification: %w", err)
	}

	return nil
}

// GetClassification retrieves the classification stored for a frame
func (m *Manager) GetClassification(ctx context.Context, frameID string) (*ClassificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := `
		SELECT frame_id, frame_path, task, description, COALESCE(latency_ms, 0), created_at
		FROM classifications
		WHERE frame_id = ?
	`

	var r ClassificationRecord
	err := m.db.GetDB().QueryRowContext(ctx, query, frameID).Scan(
		&r.FrameID, &r.FramePath, &r.Task, &r.Description, &r.LatencyMs, &r.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get classification: %w", err)
	}

	return &r, nil
}

// SaveAlert persists a dispatched alert
func (m *Manager) SaveAlert(ctx context.Context, record AlertRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	query := `
		INSERT INTO alerts (id, frame_id, level, score, confidence, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := m.db.GetDB().ExecContext(ctx, query,
		record.ID, record.FrameID, record.Level, record.Score,
		record.Confidence, record.Message, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}

	return nil
}

// GetRecentAlerts retrieves the most recent dispatched alerts
func (m *Manager) GetRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, frame_id, level, score, confidence, message, created_at
		FROM alerts
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := m.db.GetDB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var records []AlertRecord
	for rows.Next() {
		var r AlertRecord
		err := rows.Scan(&r.ID, &r.FrameID, &r.Level, &r.Score, &r.Confidence, &r.Message, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// DeleteFrameResultsBefore removes frame result and classification rows older
// than cutoff. Used by the retention service.
func (m *Manager) DeleteFrameResultsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.GetDB().ExecContext(ctx, `DELETE FROM frame_results WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete frame results: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := m.db.GetDB().ExecContext(ctx, `DELETE FROM classifications WHERE created_at < ?`, cutoff); err != nil {
		return deleted, fmt.Errorf("failed to delete classifications: %w", err)
	}

	return deleted, nil
}
