// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/pkg/utils"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes the database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err.Error())
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version),
				err.Error())
		}
	}

	return nil
}

// SaveEvent persists one detection event
func (s *SQLiteStorage) SaveEvent(ctx context.Context, event *models.DetectionEvent) error {
	objects, err := json.Marshal(event.DetectedObjects)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal detected objects", err.Error())
	}
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to marshal metadata", err.Error())
	}

	query := `
		INSERT INTO detection_events
			(id, event_type, timestamp, priority, detected_objects, motion_percentage,
			 threat_level, zone_name, image_path, video_path, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		event.ID, event.EventType, event.Timestamp, event.Priority.String(),
		string(objects), event.MotionPercentage, nullable(event.ThreatLevel),
		nullable(event.ZoneName), nullable(event.ImagePath), nullable(event.VideoPath),
		string(metadata))
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event", err.Error())
	}

	return nil
}

// GetEvent retrieves one event by ID
func (s *SQLiteStorage) GetEvent(ctx context.Context, id string) (*models.DetectionEvent, error) {
	query := `
		SELECT id, event_type, timestamp, priority, detected_objects, motion_percentage,
		       threat_level, zone_name, image_path, video_path, metadata
		FROM detection_events WHERE id = ?`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Event not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event", err.Error())
	}
	return event, nil
}

// GetEvents retrieves events matching the filter, newest first
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.DetectionEvent, error) {
	query := `
		SELECT id, event_type, timestamp, priority, detected_objects, motion_percentage,
		       threat_level, zone_name, image_path, video_path, metadata
		FROM detection_events`

	where, args := buildEventFilter(filter, "?")
	query += where + " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query events", err.Error())
	}
	defer rows.Close()

	var events []*models.DetectionEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// GetEventCount counts events matching the filter
func (s *SQLiteStorage) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM detection_events"
	where, args := buildEventFilter(filter, "?")
	query += where

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}
	return count, nil
}

// DeleteEvent removes one event and its delivery records
func (s *SQLiteStorage) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM deliveries WHERE event_id = ?", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete deliveries", err.Error())
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM detection_events WHERE id = ?", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete event", err.Error())
	}
	return nil
}

// SaveDeliveryRecord persists one delivery attempt
func (s *SQLiteStorage) SaveDeliveryRecord(ctx context.Context, record *models.DeliveryRecord) error {
	query := `
		INSERT INTO deliveries (id, event_id, channel, status, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.EventID, record.Channel, string(record.Status),
		record.Error, record.LatencyMS, record.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save delivery record", err.Error())
	}
	return nil
}

// GetDeliveryRecords retrieves delivery attempts for an event
func (s *SQLiteStorage) GetDeliveryRecords(ctx context.Context, eventID string, limit int) ([]*models.DeliveryRecord, error) {
	query := `
		SELECT id, event_id, channel, status, error, latency_ms, created_at
		FROM deliveries WHERE event_id = ? ORDER BY created_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query deliveries", err.Error())
	}
	defer rows.Close()

	var records []*models.DeliveryRecord
	for rows.Next() {
		var record models.DeliveryRecord
		var status string
		if err := rows.Scan(&record.ID, &record.EventID, &record.Channel, &status,
			&record.Error, &record.LatencyMS, &record.CreatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan delivery record", err.Error())
		}
		record.Status = models.DeliveryStatus(status)
		records = append(records, &record)
	}
	return records, rows.Err()
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM detection_events").Scan(&stats.TotalEvents); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM deliveries").Scan(&stats.TotalDeliveries); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count deliveries", err.Error())
	}

	var oldest, latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MIN(timestamp), MAX(timestamp) FROM detection_events").Scan(&oldest, &latest)
	if err == nil {
		if oldest.Valid {
			stats.OldestEvent = &oldest.Time
		}
		if latest.Valid {
			stats.LatestEvent = &latest.Time
		}
	}

	return stats, nil
}

// Cleanup deletes events and deliveries older than the retention window
func (s *SQLiteStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM deliveries WHERE created_at < ?", cutoff)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up deliveries", err.Error())
	}
	deliveries, _ := result.RowsAffected()

	result, err = s.db.ExecContext(ctx,
		"DELETE FROM detection_events WHERE timestamp < ?", cutoff)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up events", err.Error())
	}
	events, _ := result.RowsAffected()

	s.logger.WithFields(logrus.Fields{
		"events":     events,
		"deliveries": deliveries,
		"cutoff":     cutoff,
	}).Info("Storage cleanup complete")
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEvent reads one detection event row
func scanEvent(row rowScanner) (*models.DetectionEvent, error) {
	var event models.DetectionEvent
	var priority, objects, metadata string
	var threatLevel, zoneName, imagePath, videoPath sql.NullString

	err := row.Scan(&event.ID, &event.EventType, &event.Timestamp, &priority,
		&objects, &event.MotionPercentage, &threatLevel, &zoneName,
		&imagePath, &videoPath, &metadata)
	if err != nil {
		return nil, err
	}

	parsed, err := models.ParsePriority(priority)
	if err != nil {
		return nil, err
	}
	event.Priority = parsed

	if objects != "" {
		if err := json.Unmarshal([]byte(objects), &event.DetectedObjects); err != nil {
			return nil, err
		}
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
			return nil, err
		}
	}

	event.ThreatLevel = threatLevel.String
	event.ZoneName = zoneName.String
	event.ImagePath = imagePath.String
	event.VideoPath = videoPath.String
	return &event, nil
}

// buildEventFilter builds a WHERE clause from the filter. The
// placeholder argument selects the driver's parameter style.
func buildEventFilter(filter models.EventFilter, placeholder string) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	next := func() string {
		if placeholder == "?" {
			return "?"
		}
		return fmt.Sprintf("$%d", len(args)+1)
	}

	if filter.EventType != nil {
		clauses = append(clauses, "event_type = "+next())
		args = append(args, *filter.EventType)
	}
	if filter.Priority != nil {
		clauses = append(clauses, "priority = "+next())
		args = append(args, filter.Priority.String())
	}
	if filter.ZoneName != nil {
		clauses = append(clauses, "zone_name = "+next())
		args = append(args, *filter.ZoneName)
	}
	if filter.FromTime != nil {
		clauses = append(clauses, "timestamp >= "+next())
		args = append(args, *filter.FromTime)
	}
	if filter.ToTime != nil {
		clauses = append(clauses, "timestamp <= "+next())
		args = append(args, *filter.ToTime)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// nullable converts an empty string to a SQL NULL
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
