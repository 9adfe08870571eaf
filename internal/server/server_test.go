// File: internal/server/server_test.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homesentry/notifier/internal/config"
	"github.com/homesentry/notifier/internal/models"
	"github.com/homesentry/notifier/internal/notification"
	"github.com/homesentry/notifier/internal/storage"
	"github.com/homesentry/notifier/pkg/utils"
)

func setupServer(t *testing.T) (*HTTPServer, *notification.Manager, storage.Storage) {
	t.Helper()

	store, err := storage.NewStorage(&config.StorageConfig{
		Type:             "sqlite",
		ConnectionString: filepath.Join(t.TempDir(), "test.db"),
		MaxConnections:   5,
		MaxIdleTime:      time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, store.Connect())
	require.NoError(t, store.Migrate())
	t.Cleanup(func() { store.Close() })

	// All channels unconfigured; delivery fans out to zero senders
	manager := notification.NewManager(&config.NotificationConfig{
		Enabled:             true,
		CooldownPeriod:      0,
		MaxPerHour:          100,
		QueueSize:           10,
		NotificationTimeout: time.Second,
	}, nil, store)
	require.NoError(t, manager.Start(context.Background()))
	t.Cleanup(func() { manager.Stop() })

	server, err := NewHTTPServer(&ServerConfig{
		Port:         8081,
		Host:         "127.0.0.1",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		EnableHealth: true,
	}, store, manager, nil)
	require.NoError(t, err)

	return server, manager, store
}

func doRequest(t *testing.T, server *HTTPServer, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoints(t *testing.T) {
	server, _, _ := setupServer(t)

	resp := doRequest(t, server, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])

	resp = doRequest(t, server, http.MethodGet, "/api/v1/health/detailed", "")
	require.Equal(t, http.StatusOK, resp.Code)

	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &health))
	components := health["components"].(map[string]interface{})
	assert.Equal(t, true, components["notification"])
	assert.Equal(t, true, components["storage"])

	t.Logf("✓ Health endpoints verified")
}

func TestNotifyEndpoint(t *testing.T) {
	server, _, store := setupServer(t)

	body := `{
		"event": {
			"event_type": "motion_detected",
			"priority": "high",
			"zone_name": "Front Door",
			"detected_objects": ["person"]
		},
		"sync": true
	}`

	resp := doRequest(t, server, http.MethodPost, "/api/v1/notify", body)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var payload struct {
		EventID string `json:"event_id"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.NotEmpty(t, payload.EventID)

	// The event was persisted before dispatch
	event, err := store.GetEvent(context.Background(), payload.EventID)
	require.NoError(t, err)
	assert.Equal(t, "motion_detected", event.EventType)
	assert.Equal(t, models.PriorityHigh, event.Priority)
}

func TestNotifyEndpointRejectsBadPayload(t *testing.T) {
	server, _, _ := setupServer(t)

	resp := doRequest(t, server, http.MethodPost, "/api/v1/notify", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// Valid JSON but an invalid event
	resp = doRequest(t, server, http.MethodPost, "/api/v1/notify", `{"event": {"priority": "low"}}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestStatsAndHistoryEndpoints(t *testing.T) {
	server, _, _ := setupServer(t)

	body := `{"event": {"event_type": "motion_detected", "priority": "low"}, "sync": true}`
	resp := doRequest(t, server, http.MethodPost, "/api/v1/notify", body)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/notifications/stats", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var stats notification.Statistics
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &stats))
	assert.True(t, stats.Enabled)
	assert.Equal(t, 1, stats.Throttle.SentInCurrentHour)
	assert.Equal(t, 1, stats.History.Total)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/notifications/history", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var history struct {
		History []notification.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &history))
	require.Len(t, history.History, 1)
	assert.Equal(t, "motion_detected", history.History[0].Event.EventType)
}

func TestSettingsEndpoint(t *testing.T) {
	server, manager, _ := setupServer(t)

	resp := doRequest(t, server, http.MethodPut, "/api/v1/notifications/settings",
		`{"cooldown_period_seconds": 120, "max_per_hour": 5}`)
	require.Equal(t, http.StatusOK, resp.Code)

	stats := manager.Statistics()
	assert.Equal(t, 2*time.Minute, stats.Settings.CooldownPeriod)
	assert.Equal(t, 5, stats.Settings.MaxPerHour)

	resp = doRequest(t, server, http.MethodPut, "/api/v1/notifications/settings",
		`{"cooldown_period_seconds": -1}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodPut, "/api/v1/notifications/settings",
		`{"max_per_hour": -2}`)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestThrottleResetEndpoint(t *testing.T) {
	server, manager, _ := setupServer(t)

	body := `{"event": {"event_type": "motion_detected", "priority": "low"}, "sync": true}`
	resp := doRequest(t, server, http.MethodPost, "/api/v1/notify", body)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 1, manager.Statistics().Throttle.SentInCurrentHour)

	resp = doRequest(t, server, http.MethodPost, "/api/v1/notifications/throttle/reset", "")
	require.Equal(t, http.StatusOK, resp.Code)

	assert.Equal(t, 0, manager.Statistics().Throttle.SentInCurrentHour)
}

func TestEventsEndpoints(t *testing.T) {
	server, _, store := setupServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		event := &models.DetectionEvent{
			ID:        utils.GenerateUUID(),
			EventType: "motion_detected",
			Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Minute),
			Priority:  models.PriorityMedium,
			ZoneName:  fmt.Sprintf("Zone %d", i),
		}
		require.NoError(t, store.SaveEvent(ctx, event))
	}

	resp := doRequest(t, server, http.MethodGet, "/api/v1/events?limit=2", "")
	require.Equal(t, http.StatusOK, resp.Code)

	var listing struct {
		Events []*models.DetectionEvent `json:"events"`
		Total  int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listing))
	assert.Len(t, listing.Events, 2)
	assert.Equal(t, int64(3), listing.Total)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/events?priority=bogus", "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/events/"+listing.Events[0].ID, "")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(t, server, http.MethodGet, "/api/v1/events/missing-id", "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
