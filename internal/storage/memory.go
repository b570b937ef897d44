// internal/storage/memory.go
package storage

import (
	"math"
	"sort"
	"sync"
	"time"

	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/scoring"
)

const (
	DefaultHistoryLength = 60  // per-sensor values kept for trends and stability
	DefaultSummaryBuffer = 100 // summaries replayed to new WebSocket clients
	DefaultMaxSensors    = 64  // distinct ids outside the catalogue
)

// ring is a fixed-capacity FIFO of values.
type ring[T any] struct {
	buf      []T
	capacity int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, 0, capacity), capacity: capacity}
}

func (r *ring[T]) add(v T) {
	if len(r.buf) >= r.capacity {
		// Remove the oldest element
		r.buf = r.buf[1:]
	}
	r.buf = append(r.buf, v)
}

func (r *ring[T]) last(count int) []T {
	if count <= 0 || count > len(r.buf) {
		count = len(r.buf)
	}
	// Return a copy so callers can't race with add
	out := make([]T, count)
	copy(out, r.buf[len(r.buf)-count:])
	return out
}

// MemoryStore holds the current sensor map, per-sensor history and recent summaries.
// The sensor map is copy-on-write: Merge swaps in a new map and never edits the old one,
// so a map handed out by Current stays valid for its holder.
type MemoryStore struct {
	mu            sync.RWMutex
	sensors       map[string]data.SensorReading
	history       map[string]*ring[float64]
	seen          map[string]time.Time // receive time of each sensor's latest reading
	historyLength int
	timeout       time.Duration
	lastData      time.Time

	maxSensors int
	extra      map[string]struct{}

	summaries *ring[scoring.BlockSummaries]
	latest    *scoring.BlockSummaries
}

// NewMemoryStore creates a store. Zero values fall back to the package defaults; a zero
// timeout disables offline marking.
func NewMemoryStore(historyLength, summaryBuffer int, timeout time.Duration) *MemoryStore {
	if historyLength <= 0 {
		historyLength = DefaultHistoryLength
	}
	if summaryBuffer <= 0 {
		summaryBuffer = DefaultSummaryBuffer
	}
	return &MemoryStore{
		sensors:       make(map[string]data.SensorReading),
		history:       make(map[string]*ring[float64]),
		seen:          make(map[string]time.Time),
		historyLength: historyLength,
		timeout:       timeout,
		maxSensors:    DefaultMaxSensors,
		extra:         make(map[string]struct{}),
		summaries:     newRing[scoring.BlockSummaries](summaryBuffer),
	}
}

// SetMaxSensors changes how many ids outside the catalogue the store will track. Zero
// keeps the default.
func (s *MemoryStore) SetMaxSensors(n int) {
	if n <= 0 {
		n = DefaultMaxSensors
	}
	s.mu.Lock()
	s.maxSensors = n
	s.mu.Unlock()
}

// Admit drops readings of new ids outside the catalogue once the sensor limit is reached
// and returns the ids it dropped. Scored sensors and ids already tracked always pass.
// snap is returned unchanged when nothing was dropped.
func (s *MemoryStore) Admit(snap *data.Snapshot) (*data.Snapshot, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rejected []string
	for id := range snap.Readings {
		if data.Known(id) {
			continue
		}
		if _, ok := s.extra[id]; ok {
			continue
		}
		if len(s.extra) >= s.maxSensors {
			rejected = append(rejected, id)
			continue
		}
		s.extra[id] = struct{}{}
	}
	if len(rejected) == 0 {
		return snap, nil
	}
	sort.Strings(rejected)

	out := *snap
	out.Readings = make(map[string]data.SensorReading, len(snap.Readings)-len(rejected))
	for id, r := range snap.Readings {
		out.Readings[id] = r
	}
	for _, id := range rejected {
		delete(out.Readings, id)
	}
	return &out, rejected
}

// Merge folds a snapshot into the current sensor map and returns the new map.
func (s *MemoryStore) Merge(snap *data.Snapshot) map[string]data.SensorReading {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]data.SensorReading, len(s.sensors)+len(snap.Readings))
	for id, r := range s.sensors {
		next[id] = r
	}
	for id, r := range snap.Readings {
		h, ok := s.history[id]
		if !ok {
			h = newRing[float64](s.historyLength)
			s.history[id] = h
		}
		// an offline report carries no measurement
		if r.Status != data.StatusOffline {
			h.add(r.Value)
		}
		s.seen[id] = snap.Received

		if (r.Min == nil || r.Max == nil) && len(h.buf) > 0 {
			lo, hi := minMax(h.buf)
			r.Min, r.Max = data.Float(lo), data.Float(hi)
		}
		if r.Unit == "" {
			if spec, ok := data.Lookup(id); ok {
				r.Unit = spec.Unit
			}
		}
		if r.Timestamp == 0 {
			r.Timestamp = data.Millis(snap.Received)
		}
		next[id] = r
	}
	s.sensors = next
	if snap.Received.After(s.lastData) {
		s.lastData = snap.Received
	}
	return next
}

// Current returns the sensor map as of now, with readings not received within the timeout
// reported offline. Staleness goes by receive time, so device clocks do not matter.
func (s *MemoryStore) Current(now time.Time) map[string]data.SensorReading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensors := s.sensors

	if s.timeout <= 0 {
		return sensors
	}
	cutoff := now.Add(-s.timeout)
	var out map[string]data.SensorReading
	for id, r := range sensors {
		if !s.seen[id].Before(cutoff) || r.Status == data.StatusOffline {
			continue
		}
		if out == nil {
			out = make(map[string]data.SensorReading, len(sensors))
			for k, v := range sensors {
				out[k] = v
			}
		}
		r.Status = data.StatusOffline
		out[id] = r
	}
	if out == nil {
		return sensors
	}
	return out
}

// Reading returns the current reading of one sensor.
func (s *MemoryStore) Reading(id string, now time.Time) (data.SensorReading, bool) {
	r, ok := s.Current(now)[id]
	return r, ok
}

// History returns up to count most recent values of one sensor, oldest first.
func (s *MemoryStore) History(id string, count int) []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.history[id]
	if !ok {
		return nil
	}
	return h.last(count)
}

// Histories returns a copy of every sensor's history.
func (s *MemoryStore) Histories() map[string][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]float64, len(s.history))
	for id, h := range s.history {
		out[id] = h.last(0)
	}
	return out
}

// LastData is the receive time of the newest snapshot merged so far.
func (s *MemoryStore) LastData() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastData
}

// AddSummaries records a freshly computed summary.
func (s *MemoryStore) AddSummaries(b scoring.BlockSummaries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries.add(b)
	latest := b
	s.latest = &latest
}

// Latest returns the most recent summary, if any.
func (s *MemoryStore) Latest() (scoring.BlockSummaries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return scoring.BlockSummaries{}, false
	}
	return *s.latest, true
}

// RecentSummaries returns up to count summaries, oldest first.
func (s *MemoryStore) RecentSummaries(count int) []scoring.BlockSummaries {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.summaries.last(count)
}

func minMax(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}
