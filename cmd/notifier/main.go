// File: cmd/notifier/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/metrics"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/internal/notification"
	"github.com/homesentry/notifier/internal/server"
	"github.com/homesentry/notifier/internal/storage"
	"github.com/homesentry/notifier/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config       *config.Config
	metrics      *metrics.Manager
	storage      storage.Storage
	notification *notification.Manager
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
	metricsStop  chan struct{}
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:      cfg,
		ctx:         ctx,
		cancel:      cancel,
		metricsStop: make(chan struct{}),
	}

	// Initialize logger
	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize components
	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	utils.GetLogger().WithField("level", logCfg.Level).Info("Logger initialized")
	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	logger := utils.GetLogger()
	logger.Info("Initializing application components")

	// Initialize metrics
	app.metrics = metrics.NewManager()

	// Initialize storage
	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize notification manager
	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}

	// Initialize HTTP server
	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	logger.Info("All components initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	logger := utils.GetLogger()
	logger.WithField("type", app.config.Storage.Type).Info("Initializing storage layer")

	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.storage = store
	logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeNotification initializes the notification manager
func (app *Application) initializeNotification() error {
	logger := utils.GetLogger()
	logger.Info("Initializing notification manager")

	app.notification = notification.NewManager(&app.config.Notifications, app.metrics, app.storage)

	if err := app.notification.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start notification manager: %w", err)
	}

	logger.WithField("channels", app.notification.EnabledChannels()).
		Info("Notification manager initialized successfully")
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	logger := utils.GetLogger()
	logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	httpServer, err := server.NewHTTPServer(serverCfg, app.storage, app.notification, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	app.server = httpServer
	logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	logger := utils.GetLogger()
	logger.WithField("version", AppVersion).Info("Starting home security notifier")

	if err := app.server.Start(app.ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.metrics.StartSystemMetricsLoop(30*time.Second, app.metricsStop)

	logger.WithField("server_address",
		fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port)).
		Info("Home security notifier started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	logger := utils.GetLogger()
	logger.Info("Stopping home security notifier")

	close(app.metricsStop)
	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}

	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			logger.WithField("error", err).Error("Failed to stop notification manager")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			logger.WithField("error", err).Error("Failed to close storage")
		}
	}

	logger.Info("Home security notifier stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "notifier",
	Short:   "Home security notification service",
	Long:    `A notification dispatch service for home security systems with throttling, queuing, and multi-channel delivery over email, SMS, push, and voice.`,
	Version: AppVersion,
	RunE:    runNotifier,
}

// runNotifier is the main command to run the notification service
func runNotifier(cmd *cobra.Command, args []string) error {
	// Load configuration
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create application
	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	// Stop application
	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Home Security Notifier %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Cooldown: %s\n", cfg.Notifications.CooldownPeriod)
		fmt.Printf("Max per hour: %d\n", cfg.Notifications.MaxPerHour)

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test [channel]",
	Short: "Send a test notification through configured channels",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		channel := ""
		if len(args) > 0 {
			channel = args[0]
		}

		manager := notification.NewManager(&cfg.Notifications, nil, nil)
		if err := manager.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start notification manager: %w", err)
		}
		defer manager.Stop()

		fmt.Println("Sending test notification...")
		results := manager.SendTestNotification(context.Background(), channel)

		failures := 0
		for name, result := range results {
			if result.Success {
				fmt.Printf("✓ %s: %s\n", name, result.Message)
			} else {
				fmt.Printf("✗ %s: %s\n", name, result.ErrorMessage)
				failures++
			}
		}

		if failures > 0 {
			return fmt.Errorf("%d channel(s) failed", failures)
		}
		fmt.Println("\nAll channels delivered successfully! ✓")
		return nil
	},
}

// sendCmd dispatches a one-off detection event from the command line
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Dispatch a notification for a detection event",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		eventType, _ := cmd.Flags().GetString("type")
		zone, _ := cmd.Flags().GetString("zone")
		priorityStr, _ := cmd.Flags().GetString("priority")
		objects, _ := cmd.Flags().GetStringSlice("objects")
		force, _ := cmd.Flags().GetBool("force")

		priority, err := models.ParsePriority(priorityStr)
		if err != nil {
			return fmt.Errorf("invalid priority: %w", err)
		}

		event := &models.DetectionEvent{
			EventType:       eventType,
			Timestamp:       time.Now(),
			Priority:        priority,
			ZoneName:        zone,
			DetectedObjects: objects,
		}

		manager := notification.NewManager(&cfg.Notifications, nil, nil)
		if err := manager.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start notification manager: %w", err)
		}
		defer manager.Stop()

		results, err := manager.Notify(context.Background(), event, &notification.NotifyOptions{
			Force: force,
			Sync:  true,
		})
		if err != nil {
			return fmt.Errorf("notification rejected: %w", err)
		}

		for name, result := range results {
			if result.Success {
				fmt.Printf("✓ %s: %s\n", name, result.Message)
			} else {
				fmt.Printf("✗ %s [%s]: %s\n", name, result.Status, result.ErrorMessage)
			}
		}

		return nil
	},
}

// init initializes the CLI commands
func init() {
	// Add persistent flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	// Flags for the send command
	sendCmd.Flags().String("type", "motion_detected", "detection event type")
	sendCmd.Flags().String("zone", "", "zone where the event occurred")
	sendCmd.Flags().String("priority", "medium", "event priority (low, medium, high, critical)")
	sendCmd.Flags().StringSlice("objects", nil, "detected objects")
	sendCmd.Flags().Bool("force", false, "bypass throttling")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(sendCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
