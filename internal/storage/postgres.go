// File: internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/pkg/utils"
)

// PostgreSQLStorage implements Storage using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgreSQLMigrations(),
	}
}

// Connect establishes the database connection
func (s *PostgreSQLStorage) Connect() error {
	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL connection", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetMaxIdleConns(s.config.MaxConnections / 2)
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL", err.Error())
	}

	s.db = db
	s.logger.Info("PostgreSQL database connected")
	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Info("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *PostgreSQLStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected", "")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *PostgreSQLStorage) Migrate() error {
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
func (s *PostgreSQLStorage) SaveEvent(ctx context.Context, event *models.DetectionEvent) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

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
func (s *PostgreSQLStorage) GetEvent(ctx context.Context, id string) (*models.DetectionEvent, error) {
	query := `
		SELECT id, event_type, timestamp, priority, detected_objects, motion_percentage,
		       threat_level, zone_name, image_path, video_path, metadata
		FROM detection_events WHERE id = $1`

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
func (s *PostgreSQLStorage) GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.DetectionEvent, error) {
	query := `
		SELECT id, event_type, timestamp, priority, detected_objects, motion_percentage,
		       threat_level, zone_name, image_path, video_path, metadata
		FROM detection_events`

	where, args := buildEventFilter(filter, "$")
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
func (s *PostgreSQLStorage) GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error) {
	query := "SELECT COUNT(*) FROM detection_events"
	where, args := buildEventFilter(filter, "$")
	query += where

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count events", err.Error())
	}
	return count, nil
}

// DeleteEvent removes one event and its delivery records
func (s *PostgreSQLStorage) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM deliveries WHERE event_id = $1", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete deliveries", err.Error())
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM detection_events WHERE id = $1", id); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete event", err.Error())
	}
	return nil
}

// SaveDeliveryRecord persists one delivery attempt
func (s *PostgreSQLStorage) SaveDeliveryRecord(ctx context.Context, record *models.DeliveryRecord) error {
	query := `
		INSERT INTO deliveries (id, event_id, channel, status, error, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.EventID, record.Channel, string(record.Status),
		record.Error, record.LatencyMS, record.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save delivery record", err.Error())
	}
	return nil
}

// GetDeliveryRecords retrieves delivery attempts for an event
func (s *PostgreSQLStorage) GetDeliveryRecords(ctx context.Context, eventID string, limit int) ([]*models.DeliveryRecord, error) {
	query := `
		SELECT id, event_id, channel, status, error, latency_ms, created_at
		FROM deliveries WHERE event_id = $1 ORDER BY created_at DESC`
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
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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
func (s *PostgreSQLStorage) Cleanup(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	if _, err := s.db.ExecContext(ctx, "DELETE FROM deliveries WHERE created_at < $1", cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up deliveries", err.Error())
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM detection_events WHERE timestamp < $1", cutoff); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to clean up events", err.Error())
	}

	s.logger.WithField("cutoff", cutoff).Info("Storage cleanup complete")
	return nil
}
