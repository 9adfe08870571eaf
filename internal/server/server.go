// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/homesentry/notifier/internal/metrics"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/internal/notification"
	"github.com/homesentry/notifier/internal/storage"
	"github.com/homesentry/notifier/pkg/utils"
)

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
}

// HTTPServer exposes the notification pipeline over HTTP
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	storage        storage.Storage
	notification   *notification.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewHTTPServer creates a new HTTP server
func NewHTTPServer(
	config *ServerConfig,
	store storage.Storage,
	notificationManager *notification.Manager,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {

	server := &HTTPServer{
		config:         config,
		storage:        store,
		notification:   notificationManager,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	// Middleware
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	// API routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health check endpoints
	if s.config.EnableHealth {
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	// Metrics endpoint
	if s.config.EnableMetrics {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	// Notification endpoints
	api.HandleFunc("/notify", s.notifyHandler).Methods("POST")
	api.HandleFunc("/notify/test", s.testNotifyHandler).Methods("POST")
	api.HandleFunc("/notifications/stats", s.statsHandler).Methods("GET")
	api.HandleFunc("/notifications/history", s.historyHandler).Methods("GET")
	api.HandleFunc("/notifications/settings", s.updateSettingsHandler).Methods("PUT")
	api.HandleFunc("/notifications/throttle/reset", s.resetThrottleHandler).Methods("POST")

	// Event endpoints (storage-backed)
	api.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	api.HandleFunc("/events/{id}", s.getEventHandler).Methods("GET")
	api.HandleFunc("/events/{id}/deliveries", s.getDeliveriesHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.metricsManager.Prometheus().UpdateComponentHealth("server", true)
	}

	errChan := make(chan error, 1)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithField("error", err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to surface immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop() error {
	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Handler returns the underlying router, used by tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Health handlers

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
	})
}

func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now(),
		"components": map[string]interface{}{
			"notification": s.notification.IsHealthy(),
		},
	}

	if s.storage != nil {
		storageHealthy := s.storage.Ping() == nil
		health["components"].(map[string]interface{})["storage"] = storageHealthy
		if !storageHealthy {
			health["status"] = "degraded"
		}
	}

	if !s.notification.IsHealthy() {
		health["status"] = "degraded"
	}

	s.writeJSON(w, http.StatusOK, health)
}

// Notification handlers

// notifyRequest is the POST /notify payload
type notifyRequest struct {
	Event    models.DetectionEvent `json:"event"`
	Channels []string              `json:"channels,omitempty"`
	Force    bool                  `json:"force,omitempty"`
	Sync     bool                  `json:"sync,omitempty"`
}

func (s *HTTPServer) notifyHandler(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Event.Timestamp.IsZero() {
		req.Event.Timestamp = time.Now()
	}

	if err := req.Event.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid detection event", err)
		return
	}

	if s.storage != nil {
		if req.Event.ID == "" {
			req.Event.ID = utils.GenerateUUID()
		}
		if err := s.storage.SaveEvent(r.Context(), &req.Event); err != nil {
			s.logger.WithField("error", err).Warn("Failed to persist detection event")
		}
	}

	results, err := s.notification.Notify(r.Context(), &req.Event, &notification.NotifyOptions{
		Channels: req.Channels,
		Force:    req.Force,
		Sync:     req.Sync,
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Notification rejected", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"event_id": req.Event.ID,
		"results":  results,
	})
}

func (s *HTTPServer) testNotifyHandler(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	results := s.notification.SendTestNotification(r.Context(), channel)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.notification.Statistics())
}

func (s *HTTPServer) historyHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"history": s.notification.History(),
	})
}

// settingsRequest is the PUT /notifications/settings payload
type settingsRequest struct {
	CooldownPeriodSeconds *int `json:"cooldown_period_seconds,omitempty"`
	MaxPerHour            *int `json:"max_per_hour,omitempty"`
}

func (s *HTTPServer) updateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var cooldown *time.Duration
	if req.CooldownPeriodSeconds != nil {
		if *req.CooldownPeriodSeconds < 0 {
			s.writeError(w, http.StatusBadRequest, "cooldown_period_seconds must not be negative", nil)
			return
		}
		d := time.Duration(*req.CooldownPeriodSeconds) * time.Second
		cooldown = &d
	}
	if req.MaxPerHour != nil && *req.MaxPerHour < 0 {
		s.writeError(w, http.StatusBadRequest, "max_per_hour must not be negative", nil)
		return
	}

	s.notification.UpdateSettings(cooldown, req.MaxPerHour)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"updated": true})
}

func (s *HTTPServer) resetThrottleHandler(w http.ResponseWriter, r *http.Request) {
	s.notification.ResetThrottling()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"reset": true})
}

// Event handlers

func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage not configured", nil)
		return
	}

	filter := models.EventFilter{Limit: 50}

	if eventType := r.URL.Query().Get("event_type"); eventType != "" {
		filter.EventType = &eventType
	}
	if zone := r.URL.Query().Get("zone"); zone != "" {
		filter.ZoneName = &zone
	}
	if priorityStr := r.URL.Query().Get("priority"); priorityStr != "" {
		priority, err := models.ParsePriority(priorityStr)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid priority", err)
			return
		}
		filter.Priority = &priority
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		filter.Limit = limit
	}

	events, err := s.storage.GetEvents(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to query events", err)
		return
	}

	count, err := s.storage.GetEventCount(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to count events", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  count,
	})
}

func (s *HTTPServer) getEventHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage not configured", nil)
		return
	}

	id := mux.Vars(r)["id"]
	event, err := s.storage.GetEvent(r.Context(), id)
	if err != nil {
		if appErr, ok := err.(*utils.AppError); ok && appErr.Code == utils.ErrCodeNotFound {
			s.writeError(w, http.StatusNotFound, "Event not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "Failed to get event", err)
		return
	}

	s.writeJSON(w, http.StatusOK, event)
}

func (s *HTTPServer) getDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if s.storage == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Storage not configured", nil)
		return
	}

	id := mux.Vars(r)["id"]
	records, err := s.storage.GetDeliveryRecords(r.Context(), id, 100)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to query deliveries", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"deliveries": records})
}

// Response helpers

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("error", err).Error("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string, err error) {
	errorResponse := map[string]interface{}{
		"error":     message,
		"status":    status,
		"timestamp": time.Now(),
	}

	if err != nil {
		errorResponse["details"] = err.Error()
		s.logger.WithFields(logrus.Fields{
			"status":  status,
			"message": message,
			"error":   err,
		}).Error("HTTP error")
	}

	s.writeJSON(w, status, errorResponse)
}
