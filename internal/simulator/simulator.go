// internal/simulator/simulator.go
package simulator

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/data"
)

const (
	DefaultInterval = 100 * time.Millisecond

	batteryFloor    = 10
	batteryMaxDrain = 0.05

	depthNominal  = 8.5
	depthVariance = 0.2
)

// Submitter accepts generated snapshots.
type Submitter interface {
	Submit(snap *data.Snapshot) error
}

// Simulator publishes synthetic readings for every catalogue sensor as a bounded random walk.
type Simulator struct {
	interval time.Duration
	sub      Submitter
	log      *zap.Logger
	rnd      *rand.Rand

	ids    []string
	values map[string]float64
}

// New creates a simulator. A zero seed picks one from the clock.
func New(interval time.Duration, seed int64, sub Submitter, log *zap.Logger) *Simulator {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &Simulator{
		interval: interval,
		sub:      sub,
		log:      log.With(zap.String("component", "simulator")),
		rnd:      rand.New(rand.NewSource(seed)),
		values:   make(map[string]float64, len(data.Catalog)+1),
	}
	for _, spec := range data.Catalog {
		s.values[spec.ID] = spec.Nominal
		s.ids = append(s.ids, spec.ID)
	}
	s.values[data.SensorDepth] = depthNominal
	s.ids = append(s.ids, data.SensorDepth)
	sort.Strings(s.ids)
	return s
}

// Next advances the walk one step and returns the resulting snapshot.
func (s *Simulator) Next(now time.Time) *data.Snapshot {
	snap := &data.Snapshot{
		Received: now,
		Source:   "simulator",
		DeviceID: "simulator",
		Readings: make(map[string]data.SensorReading, len(s.ids)),
	}
	ts := data.Millis(now)

	// Ids are walked in sorted order so a seed always gives the same sequence.
	for _, id := range s.ids {
		v := s.step(id)
		s.values[id] = v
		r := data.SensorReading{Value: v, Timestamp: ts}
		if spec, ok := data.Lookup(id); ok {
			r.Unit = spec.Unit
		} else if id == data.SensorDepth {
			r.Unit = "m"
		}
		snap.Readings[id] = r
	}
	return snap
}

func (s *Simulator) step(id string) float64 {
	v := s.values[id]
	switch id {
	case data.SensorBattery:
		return round2(math.Max(batteryFloor, v-s.rnd.Float64()*batteryMaxDrain))
	case data.SensorDepth:
		return round2(math.Max(0, v+(s.rnd.Float64()-0.5)*depthVariance*2))
	}

	spec, ok := data.Lookup(id)
	if !ok {
		return v
	}
	v += (s.rnd.Float64() - 0.5) * spec.Variance * 2
	if spec.Unit == "%" {
		v = math.Min(100, math.Max(0, v))
	}
	return round2(v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Run submits a snapshot every interval until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.log.Info("simulator started", zap.Duration("interval", s.interval))

	dropped := 0
	for {
		select {
		case <-ctx.Done():
			s.log.Info("simulator stopped", zap.Int("dropped", dropped))
			return nil
		case t := <-ticker.C:
			if err := s.sub.Submit(s.Next(t)); err != nil {
				dropped++
				if dropped%100 == 1 {
					s.log.Warn("simulated snapshot rejected", zap.Int("dropped", dropped), zap.Error(err))
				}
			}
		}
	}
}
