package storage

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"archaeoscan-gateway/internal/data"
	"archaeoscan-gateway/internal/scoring"
)

func snap(at time.Time, readings map[string]data.SensorReading) *data.Snapshot {
	return &data.Snapshot{Received: at, Source: "test", Readings: readings}
}

func TestMergeIsCopyOnWrite(t *testing.T) {
	s := NewMemoryStore(3, 10, 0)
	t0 := time.UnixMilli(1_000)

	first := s.Merge(snap(t0, map[string]data.SensorReading{"temperature": {Value: 10}}))
	second := s.Merge(snap(t0.Add(time.Second), map[string]data.SensorReading{"tds": {Value: 300}}))

	if len(first) != 1 {
		t.Fatalf("earlier map must not change after merge, got %v", first)
	}
	if len(second) != 2 {
		t.Fatalf("merged map should hold both sensors, got %v", second)
	}
	if second["temperature"].Unit != "°C" {
		t.Fatalf("unit should be filled from catalogue, got %q", second["temperature"].Unit)
	}
	if second["tds"].Timestamp != t0.Add(time.Second).UnixMilli() {
		t.Fatalf("timestamp should default to receive time")
	}
	if !s.LastData().Equal(t0.Add(time.Second)) {
		t.Fatalf("last data mismatch: %v", s.LastData())
	}
}

func TestHistoryRingAndMinMax(t *testing.T) {
	s := NewMemoryStore(3, 10, 0)
	var cur map[string]data.SensorReading
	for i, v := range []float64{5, 9, 2, 7} {
		cur = s.Merge(snap(time.UnixMilli(int64(i+1)), map[string]data.SensorReading{"depth": {Value: v}}))
	}

	if got := s.History("depth", 0); !reflect.DeepEqual(got, []float64{9, 2, 7}) {
		t.Fatalf("history mismatch: %v", got)
	}
	if got := s.History("depth", 2); !reflect.DeepEqual(got, []float64{2, 7}) {
		t.Fatalf("partial history mismatch: %v", got)
	}
	if s.History("missing", 0) != nil {
		t.Fatalf("unknown sensor should have no history")
	}
	r := cur["depth"]
	if *r.Min != 2 || *r.Max != 9 {
		t.Fatalf("min/max mismatch: %v/%v", *r.Min, *r.Max)
	}

	h := s.Histories()
	h["depth"][0] = 100
	if s.History("depth", 0)[0] != 9 {
		t.Fatalf("Histories must return copies")
	}
}

func TestCurrentMarksStaleOffline(t *testing.T) {
	s := NewMemoryStore(0, 0, 10*time.Second)
	t0 := time.UnixMilli(100_000)
	s.Merge(snap(t0, map[string]data.SensorReading{"humidity": {Value: 60, Status: data.StatusOK}}))
	s.Merge(snap(t0.Add(8*time.Second), map[string]data.SensorReading{"salinity": {Value: 35, Status: data.StatusOK}}))

	cur := s.Current(t0.Add(15 * time.Second))
	if cur["humidity"].Status != data.StatusOffline {
		t.Fatalf("humidity should be offline, got %s", cur["humidity"].Status)
	}
	if cur["salinity"].Status != data.StatusOK {
		t.Fatalf("salinity should still be ok, got %s", cur["salinity"].Status)
	}
	if r, _ := s.Reading("humidity", t0.Add(time.Second)); r.Status != data.StatusOK {
		t.Fatalf("humidity should be ok before the timeout, got %s", r.Status)
	}
}

func TestSummariesBuffer(t *testing.T) {
	s := NewMemoryStore(0, 2, 0)
	if _, ok := s.Latest(); ok {
		t.Fatalf("no summary expected yet")
	}
	for i := int64(1); i <= 3; i++ {
		s.AddSummaries(scoring.BlockSummaries{LastUpdated: i})
	}
	latest, ok := s.Latest()
	if !ok || latest.LastUpdated != 3 {
		t.Fatalf("latest mismatch: %+v", latest)
	}
	recent := s.RecentSummaries(0)
	if len(recent) != 2 || recent[0].LastUpdated != 2 || recent[1].LastUpdated != 3 {
		t.Fatalf("recent mismatch: %+v", recent)
	}
}

func TestAdmitCapsUnknownSensors(t *testing.T) {
	s := NewMemoryStore(0, 0, 0)
	s.SetMaxSensors(3)

	for i := 0; i < 50; i++ {
		readings := map[string]data.SensorReading{
			fmt.Sprintf("s%02d", i): {Value: 1},
			data.SensorTemperature:  {Value: 12},
		}
		admitted, _ := s.Admit(snap(time.UnixMilli(int64(i+1)), readings))
		s.Merge(admitted)
	}

	cur := s.Current(time.UnixMilli(100))
	if len(cur) != 4 {
		t.Fatalf("expected 3 extra sensors plus temperature, got %d", len(cur))
	}
	for _, id := range []string{"s00", "s01", "s02", data.SensorTemperature} {
		if _, ok := cur[id]; !ok {
			t.Fatalf("%s should be tracked", id)
		}
	}
	if len(s.Histories()) != 4 {
		t.Fatalf("history should not grow past the cap, got %d rings", len(s.Histories()))
	}

	// already tracked ids keep passing
	in := snap(time.UnixMilli(60), map[string]data.SensorReading{"s01": {Value: 2}, "s99": {Value: 3}})
	out, rejected := s.Admit(in)
	if !reflect.DeepEqual(rejected, []string{"s99"}) || len(out.Readings) != 1 {
		t.Fatalf("unexpected admit result %v %v", rejected, out.Readings)
	}
	if len(in.Readings) != 2 {
		t.Fatalf("input snapshot must not be modified")
	}
}

func TestOfflineReportsSkipHistory(t *testing.T) {
	s := NewMemoryStore(0, 0, 0)
	s.Merge(snap(time.UnixMilli(1), map[string]data.SensorReading{data.SensorDepth: {Value: 8}}))
	cur := s.Merge(snap(time.UnixMilli(2), map[string]data.SensorReading{
		data.SensorDepth: {Value: 0, Status: data.StatusOffline},
	}))

	if got := s.History(data.SensorDepth, 0); !reflect.DeepEqual(got, []float64{8}) {
		t.Fatalf("offline value should not enter history, got %v", got)
	}
	if cur[data.SensorDepth].Status != data.StatusOffline {
		t.Fatalf("offline status should be kept")
	}
}

func TestStalenessUsesReceiveTime(t *testing.T) {
	s := NewMemoryStore(0, 0, 10*time.Second)
	received := time.UnixMilli(1_700_000_000_000)
	// device clock an hour behind
	s.Merge(snap(received, map[string]data.SensorReading{
		data.SensorHumidity: {Value: 60, Status: data.StatusOK, Timestamp: received.Add(-time.Hour).UnixMilli()},
	}))

	if r, _ := s.Reading(data.SensorHumidity, received.Add(time.Second)); r.Status != data.StatusOK {
		t.Fatalf("fresh reading with a skewed clock should stay ok, got %s", r.Status)
	}
	if r, _ := s.Reading(data.SensorHumidity, received.Add(11*time.Second)); r.Status != data.StatusOffline {
		t.Fatalf("reading should go offline after the timeout, got %s", r.Status)
	}
}
