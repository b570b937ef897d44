// internal/anomaly/detector.go
package anomaly

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"archaeoscan-gateway/internal/data"
)

// StatusFor derives a sensor status from its thresholds. Nil bounds fall back to 0..100.
func StatusFor(value float64, th data.SensorThresholds) data.SensorStatus {
	warnLow, warnHigh := bound(th.WarningLow, 0), bound(th.WarningHigh, 100)
	critLow, critHigh := bound(th.CriticalLow, 0), bound(th.CriticalHigh, 100)

	if value < critLow || value > critHigh {
		return data.StatusError
	}
	if value < warnLow || value > warnHigh {
		return data.StatusWarning
	}
	return data.StatusOK
}

func bound(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

// Detector annotates readings with a threshold-derived status and raises alerts when a
// sensor changes band.
type Detector struct {
	thresholds map[string]data.SensorThresholds
	log        *zap.Logger

	mu   sync.Mutex
	last map[string]data.SensorStatus
}

// NewDetector uses the catalogue thresholds, overridden per sensor by overrides.
func NewDetector(overrides map[string]data.SensorThresholds, log *zap.Logger) *Detector {
	th := data.DefaultThresholds()
	for id, o := range overrides {
		th[id] = o
	}
	return &Detector{
		thresholds: th,
		log:        log.With(zap.String("component", "anomaly")),
		last:       make(map[string]data.SensorStatus),
	}
}

// Thresholds returns the thresholds applied to id.
func (d *Detector) Thresholds(id string) (data.SensorThresholds, bool) {
	th, ok := d.thresholds[id]
	return th, ok
}

// Check returns a copy of snap with statuses filled in, plus alerts for every band change.
// Sensors without thresholds keep the status they were reported with.
func (d *Detector) Check(snap *data.Snapshot) (*data.Snapshot, []data.Alert) {
	out := &data.Snapshot{
		Received: snap.Received,
		Measured: snap.Measured,
		Source:   snap.Source,
		DeviceID: snap.DeviceID,
		Readings: make(map[string]data.SensorReading, len(snap.Readings)),
	}

	var alerts []data.Alert

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, r := range snap.Readings {
		if th, ok := d.thresholds[id]; ok && r.Status != data.StatusOffline {
			r.Status = StatusFor(r.Value, th)
		} else if !r.Status.Valid() {
			r.Status = data.StatusOK
		}
		out.Readings[id] = r

		prev, seen := d.last[id]
		d.last[id] = r.Status
		if prev == r.Status || (!seen && r.Status == data.StatusOK) {
			continue
		}
		if alert, ok := alertFor(id, prev, r, snap.DeviceID); ok {
			alerts = append(alerts, alert)
			d.log.Info("sensor status changed",
				zap.String("sensor", id),
				zap.String("from", string(prev)),
				zap.String("to", string(r.Status)),
				zap.Float64("value", r.Value))
		}
	}
	return out, alerts
}

func alertFor(id string, prev data.SensorStatus, r data.SensorReading, deviceID string) (data.Alert, bool) {
	name := id
	if spec, ok := data.Lookup(id); ok {
		name = spec.Name
	}
	alert := data.Alert{
		Timestamp: r.Timestamp,
		SensorID:  id,
		Value:     r.Value,
		DeviceID:  deviceID,
	}
	switch r.Status {
	case data.StatusError:
		alert.Type = data.AlertError
		alert.Message = fmt.Sprintf("%s critical: value %.2f%s is outside the safe range", name, r.Value, r.Unit)
	case data.StatusWarning:
		alert.Type = data.AlertWarning
		alert.Message = fmt.Sprintf("%s warning: value %.2f%s is outside the nominal range", name, r.Value, r.Unit)
	case data.StatusOffline:
		alert.Type = data.AlertWarning
		alert.Message = fmt.Sprintf("%s offline", name)
	case data.StatusOK:
		if prev == "" {
			return data.Alert{}, false
		}
		alert.Type = data.AlertInfo
		alert.Message = fmt.Sprintf("%s back to normal (%.2f%s)", name, r.Value, r.Unit)
	default:
		return data.Alert{}, false
	}
	return alert, true
}
