package storage

// Migration represents a database migration
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create detection_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS detection_events (
					id TEXT PRIMARY KEY,
					event_type TEXT NOT NULL,
					timestamp DATETIME NOT NULL,
					priority TEXT NOT NULL,
					detected_objects TEXT, -- JSON
					motion_percentage REAL,
					threat_level TEXT,
					zone_name TEXT,
					image_path TEXT,
					video_path TEXT,
					metadata TEXT, -- JSON
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_events_event_type ON detection_events(event_type);
				CREATE INDEX IF NOT EXISTS idx_events_priority ON detection_events(priority);
				CREATE INDEX IF NOT EXISTS idx_events_zone_name ON detection_events(zone_name);
				CREATE INDEX IF NOT EXISTS idx_events_timestamp ON detection_events(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create deliveries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS deliveries (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					channel TEXT NOT NULL,
					status TEXT NOT NULL,
					error TEXT,
					latency_ms INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_deliveries_event_id ON deliveries(event_id);
				CREATE INDEX IF NOT EXISTS idx_deliveries_channel ON deliveries(channel);
				CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create detection_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS detection_events (
					id TEXT PRIMARY KEY,
					event_type TEXT NOT NULL,
					timestamp TIMESTAMPTZ NOT NULL,
					priority TEXT NOT NULL,
					detected_objects JSONB,
					motion_percentage DOUBLE PRECISION,
					threat_level TEXT,
					zone_name TEXT,
					image_path TEXT,
					video_path TEXT,
					metadata JSONB,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_events_event_type ON detection_events(event_type);
				CREATE INDEX IF NOT EXISTS idx_events_priority ON detection_events(priority);
				CREATE INDEX IF NOT EXISTS idx_events_zone_name ON detection_events(zone_name);
				CREATE INDEX IF NOT EXISTS idx_events_timestamp ON detection_events(timestamp);
			`,
		},
		{
			Version:     "002",
			Description: "Create deliveries table",
			SQL: `
				CREATE TABLE IF NOT EXISTS deliveries (
					id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL,
					channel TEXT NOT NULL,
					status TEXT NOT NULL,
					error TEXT,
					latency_ms BIGINT NOT NULL DEFAULT 0,
					created_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_deliveries_event_id ON deliveries(event_id);
				CREATE INDEX IF NOT EXISTS idx_deliveries_channel ON deliveries(channel);
				CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);
			`,
		},
	}
}
