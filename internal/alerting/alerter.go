// internal/alerting/alerter.go
package alerting

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/metrics"
)

// MaxRecent is how many alerts are retained for the API and the status heartbeat.
const MaxRecent = 50

var ErrAlertNotFound = errors.New("alert not found")

// Broadcaster pushes a typed message to dashboard clients.
type Broadcaster interface {
	Broadcast(kind string, payload interface{})
}

type Alerter struct {
	hub     Broadcaster
	metrics *metrics.Metrics
	log     *zap.Logger

	mu     sync.RWMutex
	recent []data.Alert // newest first
}

func NewAlerter(hub Broadcaster, m *metrics.Metrics, log *zap.Logger) *Alerter {
	return &Alerter{
		hub:     hub,
		metrics: m,
		log:     log.With(zap.String("component", "alerting")),
	}
}

// ProcessAlerts assigns ids, records and broadcasts each alert.
func (a *Alerter) ProcessAlerts(alerts []data.Alert) {
	if len(alerts) == 0 {
		return
	}

	for _, alert := range alerts {
		if alert.ID == "" {
			alert.ID = uuid.NewString()
		}

		a.mu.Lock()
		a.recent = append([]data.Alert{alert}, a.recent...)
		if len(a.recent) > MaxRecent {
			a.recent = a.recent[:MaxRecent]
		}
		a.mu.Unlock()

		a.metrics.AlertRaised(string(alert.Type))
		a.log.Info("alert raised",
			zap.String("id", alert.ID),
			zap.String("type", string(alert.Type)),
			zap.String("sensor", alert.SensorID),
			zap.Float64("value", alert.Value),
		)

		if a.hub != nil {
			a.hub.Broadcast("alert", alert)
		}
	}
}

// Recent returns retained alerts, newest first.
func (a *Alerter) Recent() []data.Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]data.Alert, len(a.recent))
	copy(out, a.recent)
	return out
}

// Unacknowledged returns retained alerts not yet acknowledged, newest first.
func (a *Alerter) Unacknowledged() []data.Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []data.Alert
	for _, al := range a.recent {
		if !al.Acknowledged {
			out = append(out, al)
		}
	}
	return out
}

// Acknowledge marks the alert with id as acknowledged.
func (a *Alerter) Acknowledge(id string) (data.Alert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.recent {
		if a.recent[i].ID == id {
			a.recent[i].Acknowledged = true
			return a.recent[i], nil
		}
	}
	return data.Alert{}, ErrAlertNotFound
}

// Clear drops every retained alert and returns how many there were.
func (a *Alerter) Clear() int {
	a.mu.Lock()
	n := len(a.recent)
	a.recent = nil
	a.mu.Unlock()
	a.log.Info("alerts cleared", zap.Int("count", n))
	return n
}
