package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/alerting"
	"archaeoscan-gateway/internal/anomaly"
	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/scoring"
	"archaeoscan-gateway/internal/storage"
)

type fakeSink struct {
	name string
	err  error

	mu   sync.Mutex
	got  []scoring.BlockSummaries
	ctxs []bool // whether each publish ctx carried a deadline
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(ctx context.Context, b scoring.BlockSummaries) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := ctx.Deadline()
	f.ctxs = append(f.ctxs, ok)
	f.got = append(f.got, b)
	return f.err
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

type recordingHub struct {
	mu    sync.Mutex
	kinds []string
}

func (h *recordingHub) Broadcast(kind string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kinds = append(h.kinds, kind)
}

func newProcessor(t *testing.T, queue int, sinks ...Publisher) (*Processor, *storage.MemoryStore, *alerting.Alerter, *recordingHub) {
	t.Helper()
	log := zap.NewNop()
	store := storage.NewMemoryStore(0, 0, 0)
	hub := &recordingHub{}
	alerter := alerting.NewAlerter(hub, nil, log)
	p := New(Options{QueueSize: queue, Scoring: scoring.DefaultOptions()},
		anomaly.NewDetector(nil, log), store, alerter, hub, nil, log, sinks...)
	p.now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	return p, store, alerter, hub
}

// start runs p until the test ends.
func start(t *testing.T, p *Processor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func snapshot(readings map[string]float64) *data.Snapshot {
	out := &data.Snapshot{
		Received: time.UnixMilli(1_700_000_000_000),
		Source:   "test",
		Readings: make(map[string]data.SensorReading, len(readings)),
	}
	for id, v := range readings {
		out.Readings[id] = data.SensorReading{Value: v, Timestamp: 1_700_000_000_000}
	}
	return out
}

func TestProcessScoresStoresAndPublishes(t *testing.T) {
	good := &fakeSink{name: "good"}
	failing := &fakeSink{name: "failing", err: errors.New("boom")}
	p, store, alerter, hub := newProcessor(t, 4, failing, good)
	start(t, p)

	got := p.Process(context.Background(), snapshot(map[string]float64{
		data.SensorMagneticAnomaly: 72,
		data.SensorSonarReturn:     68,
		data.SensorSpectralMatch:   76,
		data.SensorTemperature:     31, // above the critical band
	}))

	if got.Artifact.Probability != 72 || got.Artifact.Confidence != 74 {
		t.Fatalf("unexpected artifact summary %+v", got.Artifact)
	}
	if got.LastUpdated != 1_700_000_000_000 {
		t.Fatalf("unexpected lastUpdated %d", got.LastUpdated)
	}
	if latest, ok := store.Latest(); !ok || latest.Artifact.Confidence != 74 {
		t.Fatalf("summary not stored: %+v", latest)
	}
	waitFor(t, "both sinks", func() bool { return good.count() == 1 && failing.count() == 1 })
	good.mu.Lock()
	hasDeadline := good.ctxs[0]
	good.mu.Unlock()
	if !hasDeadline {
		t.Fatalf("publish context should carry the publish timeout")
	}

	alerts := alerter.Recent()
	if len(alerts) != 1 || alerts[0].SensorID != data.SensorTemperature || alerts[0].Type != data.AlertError {
		t.Fatalf("expected one temperature error alert, got %+v", alerts)
	}
	r, _ := store.Reading(data.SensorTemperature, time.UnixMilli(1_700_000_000_000))
	if r.Status != data.StatusError {
		t.Fatalf("stored reading should be annotated, got %s", r.Status)
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	want := []string{"alert", "sensors", "summaries"}
	if len(hub.kinds) != len(want) {
		t.Fatalf("unexpected broadcasts %v", hub.kinds)
	}
	for i := range want {
		if hub.kinds[i] != want[i] {
			t.Fatalf("unexpected broadcasts %v", hub.kinds)
		}
	}
}

func TestSubmitQueueFull(t *testing.T) {
	p, _, _, _ := newProcessor(t, 1)
	if err := p.Submit(snapshot(map[string]float64{data.SensorDepth: 5})); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(snapshot(map[string]float64{data.SensorDepth: 6})); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestRunProcessesInOrderAndStops(t *testing.T) {
	sink := &fakeSink{name: "sink"}
	p, store, _, _ := newProcessor(t, 8, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	for _, v := range []float64{3, 7, 11} {
		if err := p.SubmitWait(ctx, snapshot(map[string]float64{data.SensorDepth: v})); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for sink.count() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d snapshots processed", sink.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if h := store.History(data.SensorDepth, 0); len(h) != 3 || h[0] != 3 || h[2] != 11 {
		t.Fatalf("history out of order: %v", h)
	}

	cancel()
	<-done
	if err := p.Submit(snapshot(map[string]float64{data.SensorDepth: 1})); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Run returned, got %v", err)
	}
}

// hangingSink never completes a publish before its context ends.
type hangingSink struct {
	mu       sync.Mutex
	attempts int
}

func (h *hangingSink) Name() string { return "hanging" }

func (h *hangingSink) Publish(ctx context.Context, _ scoring.BlockSummaries) error {
	h.mu.Lock()
	h.attempts++
	h.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestStalledSinkDoesNotBackUpQueue(t *testing.T) {
	sink := &hangingSink{}
	log := zap.NewNop()
	store := storage.NewMemoryStore(0, 0, 0)
	hub := &recordingHub{}
	p := New(Options{QueueSize: 4, PublishTimeout: 200 * time.Millisecond, Scoring: scoring.DefaultOptions()},
		anomaly.NewDetector(nil, log), store, alerting.NewAlerter(hub, nil, log), hub, nil, log, sink)
	start(t, p)

	for i := 0; i < 20; i++ {
		if err := p.Submit(snapshot(map[string]float64{data.SensorDepth: float64(i + 1)})); err != nil {
			t.Fatalf("snapshot %d rejected: %v", i, err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	waitFor(t, "all summaries", func() bool { return len(store.RecentSummaries(0)) == 20 })
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.attempts == 0 || sink.attempts > 20 {
		t.Fatalf("unexpected publish attempts %d", sink.attempts)
	}
}

func TestSinkBufferDropsOldest(t *testing.T) {
	w := &sinkWorker{sink: &fakeSink{name: "x"}, pending: make(chan scoring.BlockSummaries, 2)}
	for i := int64(1); i <= 4; i++ {
		dropped := w.offer(scoring.BlockSummaries{LastUpdated: i})
		if dropped != (i > 2) {
			t.Fatalf("offer %d: dropped=%v", i, dropped)
		}
	}
	if a, b := <-w.pending, <-w.pending; a.LastUpdated != 3 || b.LastUpdated != 4 {
		t.Fatalf("expected the two newest summaries, got %d and %d", a.LastUpdated, b.LastUpdated)
	}
}

func TestProcessCapsUnknownSensors(t *testing.T) {
	p, store, _, _ := newProcessor(t, 4)
	store.SetMaxSensors(5)

	for i := 0; i < 100; i++ {
		p.Process(context.Background(), snapshot(map[string]float64{fmt.Sprintf("aux%d", i): 1}))
	}
	p.Process(context.Background(), snapshot(map[string]float64{data.SensorTemperature: 12}))

	cur := store.Current(time.UnixMilli(1_700_000_000_000))
	if len(cur) != 6 {
		t.Fatalf("expected 5 unknown sensors plus temperature, got %d", len(cur))
	}
	if len(store.RecentSummaries(0)) != 6 {
		t.Fatalf("snapshots without admitted readings should not be scored, got %d summaries", len(store.RecentSummaries(0)))
	}
}
