// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/homesentry/notifier/internal/models"
)

// Storage defines the interface for event and delivery persistence
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Detection event operations
	SaveEvent(ctx context.Context, event *models.DetectionEvent) error
	GetEvent(ctx context.Context, id string) (*models.DetectionEvent, error)
	GetEvents(ctx context.Context, filter models.EventFilter) ([]*models.DetectionEvent, error)
	GetEventCount(ctx context.Context, filter models.EventFilter) (int64, error)
	DeleteEvent(ctx context.Context, id string) error

	// Delivery record operations
	SaveDeliveryRecord(ctx context.Context, record *models.DeliveryRecord) error
	GetDeliveryRecords(ctx context.Context, eventID string, limit int) ([]*models.DeliveryRecord, error)

	// Statistics and maintenance
	GetStorageStats(ctx context.Context) (*StorageStats, error)
	Cleanup(ctx context.Context, retentionDays int) error
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	Type             string
	ConnectionString string
	MaxConnections   int
	MaxIdleTime      time.Duration
	RetentionDays    int
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalEvents     int64      `json:"total_events"`
	TotalDeliveries int64      `json:"total_deliveries"`
	OldestEvent     *time.Time `json:"oldest_event,omitempty"`
	LatestEvent     *time.Time `json:"latest_event,omitempty"`
	LastCleanup     *time.Time `json:"last_cleanup,omitempty"`
}
