package status

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/alerting"
	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/ingest"
	"archaeoscan-gateway/internal/storage"
)

type stubSource struct {
	name   string
	health ingest.Health
}

func (s stubSource) Name() string                  { return s.name }
func (s stubSource) Run(ctx context.Context) error { <-ctx.Done(); return nil }
func (s stubSource) Health() ingest.Health         { return s.health }

var base = time.UnixMilli(1_700_000_000_000)

func newTracker(t *testing.T) (*Tracker, *storage.MemoryStore, *alerting.Alerter) {
	t.Helper()
	store := storage.NewMemoryStore(0, 0, 10*time.Second)
	alerter := alerting.NewAlerter(nil, nil, zap.NewNop())
	tr := NewTracker(store, alerter, 10*time.Second)
	tr.now = func() time.Time { return base }
	return tr, store, alerter
}

func TestStatusWithoutData(t *testing.T) {
	tr, _, _ := newTracker(t)
	st := tr.Status()
	if st.Connection != ingest.Offline || st.Battery != 100 || st.LastDataTimestamp != 0 || len(st.Alerts) != 0 {
		t.Fatalf("unexpected idle status %+v", st)
	}
}

func TestStatusFromData(t *testing.T) {
	tr, store, alerter := newTracker(t)
	store.Merge(&data.Snapshot{
		Received: base.Add(-2 * time.Second),
		Readings: map[string]data.SensorReading{
			data.SensorBattery: {Value: 64.5, Timestamp: data.Millis(base.Add(-2 * time.Second))},
		},
	})
	alerter.ProcessAlerts([]data.Alert{{ID: "a", Type: data.AlertWarning}, {ID: "b", Type: data.AlertError}})
	if _, err := alerter.Acknowledge("a"); err != nil {
		t.Fatal(err)
	}

	st := tr.Status()
	if st.Connection != ingest.Connected {
		t.Fatalf("fresh data should report connected, got %s", st.Connection)
	}
	if st.Battery != 64.5 || st.LastDataTimestamp != data.Millis(base.Add(-2*time.Second)) {
		t.Fatalf("unexpected status %+v", st)
	}
	if len(st.Alerts) != 1 || st.Alerts[0].ID != "b" {
		t.Fatalf("only unacknowledged alerts expected, got %+v", st.Alerts)
	}

	tr.now = func() time.Time { return base.Add(time.Minute) }
	st = tr.Status()
	if st.Connection != ingest.Offline || st.Battery != 100 {
		t.Fatalf("stale data should report offline with default battery, got %+v", st)
	}
}

func TestStatusFromSources(t *testing.T) {
	cases := []struct {
		name    string
		healths []ingest.Health
		want    ingest.Health
	}{
		{"all offline", []ingest.Health{ingest.Offline, ingest.Offline}, ingest.Offline},
		{"one reconnecting", []ingest.Health{ingest.Offline, ingest.Reconnecting}, ingest.Reconnecting},
		{"any connected", []ingest.Health{ingest.Reconnecting, ingest.Connected, ingest.Offline}, ingest.Connected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, _, _ := newTracker(t)
			for i, h := range tc.healths {
				tr.AddSource(stubSource{name: string(rune('a' + i)), health: h})
			}
			st := tr.Status()
			if st.Connection != tc.want {
				t.Fatalf("got %s, want %s", st.Connection, tc.want)
			}
			if len(st.Sources) != len(tc.healths) {
				t.Fatalf("expected per-source health, got %v", st.Sources)
			}
		})
	}
}

type recordingHub struct {
	mu       sync.Mutex
	payloads []interface{}
}

func (h *recordingHub) Broadcast(kind string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == "status" {
		h.payloads = append(h.payloads, payload)
	}
}

func (h *recordingHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func TestReporterBeats(t *testing.T) {
	tr, _, _ := newTracker(t)
	hub := &recordingHub{}

	if _, err := NewReporter("not a schedule", tr, hub, zap.NewNop()); err == nil {
		t.Fatalf("expected invalid schedule to be rejected")
	}

	r, err := NewReporter("@every 1s", tr, hub, zap.NewNop())
	if err != nil {
		t.Fatalf("new reporter: %v", err)
	}
	r.Beat()
	if hub.count() != 1 {
		t.Fatalf("expected one status broadcast, got %d", hub.count())
	}
	if _, ok := hub.payloads[0].(SystemStatus); !ok {
		t.Fatalf("unexpected payload type %T", hub.payloads[0])
	}

	r.Start()
	deadline := time.Now().Add(3 * time.Second)
	for hub.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("scheduled heartbeat never fired")
		}
		time.Sleep(20 * time.Millisecond)
	}
	r.Stop()
}
