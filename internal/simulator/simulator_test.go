package simulator

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/data"
)

type collector struct {
	mu    sync.Mutex
	snaps []*data.Snapshot
}

func (c *collector) Submit(snap *data.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, snap)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snaps)
}

func TestNextCoversCatalogueAndStaysInBounds(t *testing.T) {
	s := New(time.Millisecond, 42, nil, zap.NewNop())
	now := time.UnixMilli(1_700_000_000_000)

	prevBattery := 87.0
	for i := 0; i < 2000; i++ {
		snap := s.Next(now)
		if len(snap.Readings) != len(data.Catalog)+1 {
			t.Fatalf("expected every catalogue sensor plus depth, got %d", len(snap.Readings))
		}
		for id, r := range snap.Readings {
			if spec, ok := data.Lookup(id); ok && spec.Unit == "%" && (r.Value < 0 || r.Value > 100) {
				t.Fatalf("%s out of percentage range: %v", id, r.Value)
			}
			if math.Abs(r.Value*100-math.Round(r.Value*100)) > 1e-6 {
				t.Fatalf("%s not rounded to two decimals: %v", id, r.Value)
			}
		}
		b := snap.Readings[data.SensorBattery].Value
		if b > prevBattery+1e-9 || b < batteryFloor {
			t.Fatalf("battery must decay monotonically and stay above the floor: %v -> %v", prevBattery, b)
		}
		prevBattery = b
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	a := New(time.Millisecond, 7, nil, zap.NewNop())
	b := New(time.Millisecond, 7, nil, zap.NewNop())
	for i := 0; i < 20; i++ {
		sa, sb := a.Next(now), b.Next(now)
		for id, r := range sa.Readings {
			if sb.Readings[id].Value != r.Value {
				t.Fatalf("step %d: %s differs (%v vs %v)", i, id, r.Value, sb.Readings[id].Value)
			}
		}
	}
}

func TestRunSubmitsUntilCancelled(t *testing.T) {
	c := &collector{}
	s := New(2*time.Millisecond, 1, c, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for c.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("simulator produced only %d snapshots", c.count())
		}
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.snaps[0].Source != "simulator" {
		t.Fatalf("unexpected source %q", c.snaps[0].Source)
	}
}
