package anomaly

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/data"
)

func TestStatusFor(t *testing.T) {
	th := data.SensorThresholds{
		WarningLow:   data.Float(5),
		WarningHigh:  data.Float(25),
		CriticalLow:  data.Float(2),
		CriticalHigh: data.Float(30),
	}
	cases := []struct {
		value float64
		want  data.SensorStatus
	}{
		{12, data.StatusOK},
		{5, data.StatusOK},
		{25, data.StatusOK},
		{4.9, data.StatusWarning},
		{25.1, data.StatusWarning},
		{2, data.StatusWarning},
		{1.9, data.StatusError},
		{30.5, data.StatusError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.value, th); got != tc.want {
			t.Errorf("StatusFor(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestStatusForMissingBounds(t *testing.T) {
	if got := StatusFor(50, data.SensorThresholds{}); got != data.StatusOK {
		t.Fatalf("expected ok inside default band, got %s", got)
	}
	if got := StatusFor(101, data.SensorThresholds{}); got != data.StatusError {
		t.Fatalf("expected error above default critical high, got %s", got)
	}
}

func snapshotOf(readings map[string]data.SensorReading) *data.Snapshot {
	return &data.Snapshot{Received: time.Unix(0, 0), Source: "test", Readings: readings}
}

func TestCheckAnnotatesAndAlertsOnTransitions(t *testing.T) {
	d := NewDetector(nil, zap.NewNop())

	out, alerts := d.Check(snapshotOf(map[string]data.SensorReading{
		data.SensorTemperature: {Value: 12},
		"custom":               {Value: 7, Status: data.StatusWarning},
	}))
	if len(alerts) != 1 || alerts[0].SensorID != "custom" {
		t.Fatalf("expected only the custom warning on first sight, got %+v", alerts)
	}
	if out.Readings[data.SensorTemperature].Status != data.StatusOK {
		t.Fatalf("temperature should be ok, got %s", out.Readings[data.SensorTemperature].Status)
	}
	if out.Readings["custom"].Status != data.StatusWarning {
		t.Fatalf("sensor without thresholds must keep reported status")
	}

	_, alerts = d.Check(snapshotOf(map[string]data.SensorReading{data.SensorTemperature: {Value: 31}}))
	if len(alerts) != 1 || alerts[0].Type != data.AlertError {
		t.Fatalf("expected one error alert, got %+v", alerts)
	}

	_, alerts = d.Check(snapshotOf(map[string]data.SensorReading{data.SensorTemperature: {Value: 32}}))
	if len(alerts) != 0 {
		t.Fatalf("no alert expected while status is unchanged, got %+v", alerts)
	}

	_, alerts = d.Check(snapshotOf(map[string]data.SensorReading{data.SensorTemperature: {Value: 15}}))
	if len(alerts) != 1 || alerts[0].Type != data.AlertInfo {
		t.Fatalf("expected recovery info alert, got %+v", alerts)
	}
}

func TestCheckDoesNotMutateInput(t *testing.T) {
	d := NewDetector(nil, zap.NewNop())
	in := snapshotOf(map[string]data.SensorReading{data.SensorTDS: {Value: 900}})
	out, _ := d.Check(in)
	if in.Readings[data.SensorTDS].Status != "" {
		t.Fatalf("input snapshot was mutated")
	}
	if out.Readings[data.SensorTDS].Status != data.StatusError {
		t.Fatalf("expected error status, got %s", out.Readings[data.SensorTDS].Status)
	}
}

func TestOverridesReplaceCatalogue(t *testing.T) {
	d := NewDetector(map[string]data.SensorThresholds{
		data.SensorTDS: {WarningLow: data.Float(0), WarningHigh: data.Float(2000), CriticalLow: data.Float(0), CriticalHigh: data.Float(3000)},
	}, zap.NewNop())
	out, _ := d.Check(snapshotOf(map[string]data.SensorReading{data.SensorTDS: {Value: 900}}))
	if out.Readings[data.SensorTDS].Status != data.StatusOK {
		t.Fatalf("override should accept 900 ppm, got %s", out.Readings[data.SensorTDS].Status)
	}
}
