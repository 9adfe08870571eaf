// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Server        ServerConfig       `mapstructure:"server"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// NotificationConfig contains notification pipeline configuration
type NotificationConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	CooldownPeriod      time.Duration `mapstructure:"cooldown_period"`
	MaxPerHour          int           `mapstructure:"max_notifications_per_hour"`
	QueueSize           int           `mapstructure:"queue_size"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
	Email               EmailConfig   `mapstructure:"email"`
	SMS                 SMSConfig     `mapstructure:"sms"`
	Push                PushConfig    `mapstructure:"push"`
	Voice               VoiceConfig   `mapstructure:"voice"`
}

// EmailConfig contains SMTP channel configuration
type EmailConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	SMTPHost        string   `mapstructure:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	FromAddress     string   `mapstructure:"from_address"`
	FromName        string   `mapstructure:"from_name"`
	ToAddresses     []string `mapstructure:"to_addresses"`
	UseTLS          bool     `mapstructure:"use_tls"`
	SubjectTemplate string   `mapstructure:"subject_template"`
}

// SMSConfig contains Twilio channel configuration
type SMSConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	AccountSID string   `mapstructure:"account_sid"`
	AuthToken  string   `mapstructure:"auth_token"`
	FromNumber string   `mapstructure:"from_number"`
	ToNumbers  []string `mapstructure:"to_numbers"`
	APIBaseURL string   `mapstructure:"api_base_url"`
}

// PushConfig contains Firebase Cloud Messaging channel configuration
type PushConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	ProjectID    string   `mapstructure:"project_id"`
	AccessToken  string   `mapstructure:"access_token"`
	DeviceTokens []string `mapstructure:"device_tokens"`
	APIBaseURL   string   `mapstructure:"api_base_url"`
}

// VoiceConfig contains local text-to-speech channel configuration
type VoiceConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Engines []string `mapstructure:"engines"` // preferred order, e.g. espeak, festival, say
	Rate    int      `mapstructure:"rate"`    // words per minute
	Volume  float64  `mapstructure:"volume"`  // 0.0 to 1.0
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
	RetentionDays    int           `mapstructure:"retention_days"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./internal/config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("HOMESENTRY")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if token := os.Getenv("TWILIO_AUTH_TOKEN"); token != "" {
		config.Notifications.SMS.AuthToken = token
	}
	if password := os.Getenv("SMTP_PASSWORD"); password != "" {
		config.Notifications.Email.Password = password
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "homesentry-notifier")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Notification defaults
	viper.SetDefault("notifications.enabled", true)
	viper.SetDefault("notifications.cooldown_period", "300s")
	viper.SetDefault("notifications.max_notifications_per_hour", 10)
	viper.SetDefault("notifications.queue_size", 100)
	viper.SetDefault("notifications.notification_timeout", "30s")

	// Email channel defaults
	viper.SetDefault("notifications.email.enabled", false)
	viper.SetDefault("notifications.email.smtp_host", "smtp.gmail.com")
	viper.SetDefault("notifications.email.smtp_port", 587)
	viper.SetDefault("notifications.email.use_tls", true)
	viper.SetDefault("notifications.email.from_name", "Home Security")
	viper.SetDefault("notifications.email.subject_template", "Security Alert: {event_type}")

	// SMS channel defaults
	viper.SetDefault("notifications.sms.enabled", false)
	viper.SetDefault("notifications.sms.api_base_url", "https://api.twilio.com")

	// Push channel defaults
	viper.SetDefault("notifications.push.enabled", false)
	viper.SetDefault("notifications.push.api_base_url", "https://fcm.googleapis.com")

	// Voice channel defaults
	viper.SetDefault("notifications.voice.enabled", false)
	viper.SetDefault("notifications.voice.engines", []string{"espeak", "festival", "say"})
	viper.SetDefault("notifications.voice.rate", 150)
	viper.SetDefault("notifications.voice.volume", 0.8)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/notifier.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")
	viper.SetDefault("storage.retention_days", 30)

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate performs basic validation of the configuration
func (c *Config) Validate() error {
	if c.Notifications.CooldownPeriod < 0 {
		return fmt.Errorf("notifications.cooldown_period must not be negative")
	}
	if c.Notifications.MaxPerHour < 0 {
		return fmt.Errorf("notifications.max_notifications_per_hour must not be negative")
	}
	if c.Notifications.QueueSize <= 0 {
		return fmt.Errorf("notifications.queue_size must be positive")
	}
	if c.Storage.Type != "sqlite" && c.Storage.Type != "postgres" && c.Storage.Type != "postgresql" {
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}
