// Package status derives the gateway's system status and pushes it to dashboards on a
// schedule.
package status

import (
	"sync"
	"time"

	"archaeoscan-gateway/internal/alerting"
	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/ingest"
	"archaeoscan-gateway/internal/storage"
)

const (
	defaultBattery   = 100
	defaultFreshness = 10 * time.Second
)

// SystemStatus is what the dashboard top bar shows.
type SystemStatus struct {
	Connection        ingest.Health            `json:"connection"`
	Battery           float64                  `json:"battery"`
	LastDataTimestamp int64                    `json:"lastDataTimestamp"`
	Alerts            []data.Alert             `json:"alerts"`
	Sources           map[string]ingest.Health `json:"sources,omitempty"`
}

type Tracker struct {
	store     *storage.MemoryStore
	alerter   *alerting.Alerter
	freshness time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	sources []ingest.Source
}

// NewTracker reports the gateway connected while data keeps arriving within freshness,
// unless upstream sources are registered, in which case their health decides.
func NewTracker(store *storage.MemoryStore, alerter *alerting.Alerter, freshness time.Duration) *Tracker {
	if freshness <= 0 {
		freshness = defaultFreshness
	}
	return &Tracker{
		store:     store,
		alerter:   alerter,
		freshness: freshness,
		now:       time.Now,
	}
}

func (t *Tracker) AddSource(src ingest.Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources = append(t.sources, src)
}

func (t *Tracker) Status() SystemStatus {
	now := t.now()
	st := SystemStatus{
		Battery: defaultBattery,
		Alerts:  []data.Alert{},
	}

	if r, ok := t.store.Reading(data.SensorBattery, now); ok && r.Status != data.StatusOffline {
		st.Battery = r.Value
	}
	last := t.store.LastData()
	if !last.IsZero() {
		st.LastDataTimestamp = data.Millis(last)
	}
	if t.alerter != nil {
		if open := t.alerter.Unacknowledged(); open != nil {
			st.Alerts = open
		}
	}

	t.mu.RLock()
	sources := t.sources
	t.mu.RUnlock()

	if len(sources) == 0 {
		st.Connection = ingest.Offline
		if !last.IsZero() && now.Sub(last) <= t.freshness {
			st.Connection = ingest.Connected
		}
		return st
	}

	st.Sources = make(map[string]ingest.Health, len(sources))
	st.Connection = ingest.Offline
	for _, src := range sources {
		h := src.Health()
		st.Sources[src.Name()] = h
		switch {
		case h == ingest.Connected:
			st.Connection = ingest.Connected
		case h == ingest.Reconnecting && st.Connection != ingest.Connected:
			st.Connection = ingest.Reconnecting
		}
	}
	return st
}
