package metrics

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager handles all application metrics
type Manager struct {
	prometheus *PrometheusMetrics
	logger     *logrus.Entry
	startTime  time.Time
}

// NewManager creates a new metrics manager
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		logger:     logrus.WithField("component", "metrics"),
		startTime:  time.Now(),
	}
}

// Prometheus returns the Prometheus metrics instance
func (m *Manager) Prometheus() *PrometheusMetrics {
	return m.prometheus
}

// UpdateSystemMetrics updates system-level metrics
func (m *Manager) UpdateSystemMetrics() {
	m.prometheus.UpdateGoroutineCount(runtime.NumGoroutine())
	m.prometheus.UpdateApplicationUptime(m.startTime)
}

// StartSystemMetricsLoop periodically refreshes system metrics until the
// stop channel is closed
func (m *Manager) StartSystemMetricsLoop(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.UpdateSystemMetrics()
			}
		}
	}()
}
