// internal/data/parser.go
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrNoReadings is returned when a message parsed but carried no numeric sensor value.
var ErrNoReadings = errors.New("no sensor readings in message")

const (
	// MaxClockSkew is how far ahead of the receive time a device timestamp may be.
	MaxClockSkew = time.Minute
	// epoch values below this are seconds, not milliseconds (1e11 ms is March 1973)
	secondsLimit = 1e11
)

// envelope keys that are never sensor values in the flat form
var reservedKeys = map[string]bool{
	"timestamp": true,
	"topic":     true,
	"device":    true,
	"sensor_id": true,
	"type":      true,
}

// Parse turns a raw JSON text frame into a Snapshot. The preferred form is
// {"sensors": {"<id>": <number|reading object>}}; a flat object of numbers is also accepted.
func Parse(rawData []byte, source string, now time.Time) (*Snapshot, error) {
	var generic map[string]interface{}
	if err := json.Unmarshal(rawData, &generic); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if generic == nil {
		return nil, fmt.Errorf("decode message: top-level value is not an object")
	}

	snap := &Snapshot{
		Received: now,
		Source:   source,
		Readings: make(map[string]SensorReading),
	}

	if id, ok := generic["sensor_id"].(string); ok {
		snap.DeviceID = id
	} else if id, ok := generic["device"].(string); ok {
		snap.DeviceID = id
	}
	defaultTS := Millis(now)
	if ts, ok := parseTimestamp(generic["timestamp"], now); ok {
		snap.Measured = ts
		defaultTS = Millis(ts)
	}

	if sensors, ok := generic["sensors"].(map[string]interface{}); ok {
		collect(snap.Readings, "", sensors, defaultTS, now)
	} else {
		flat := make(map[string]interface{}, len(generic))
		for k, v := range generic {
			if !reservedKeys[k] {
				flat[k] = v
			}
		}
		collect(snap.Readings, "", flat, defaultTS, now)
	}

	if len(snap.Readings) == 0 {
		return nil, ErrNoReadings
	}
	return snap, nil
}

func collect(dst map[string]SensorReading, prefix string, src map[string]interface{}, defaultTS int64, now time.Time) {
	for key, raw := range src {
		id := key
		if prefix != "" {
			id = prefix + "." + key
		}
		switch v := raw.(type) {
		case float64:
			if finite(v) {
				dst[id] = SensorReading{Value: v, Timestamp: defaultTS}
			}
		case map[string]interface{}:
			if _, has := v["value"]; has {
				if r, ok := readingFromObject(v, defaultTS, now); ok {
					dst[id] = r
				}
				continue
			}
			collect(dst, id, v, defaultTS, now)
		default:
			// vectors, strings and nulls are not scalar readings
		}
	}
}

func readingFromObject(obj map[string]interface{}, defaultTS int64, now time.Time) (SensorReading, bool) {
	value, ok := obj["value"].(float64)
	if !ok || !finite(value) {
		return SensorReading{}, false
	}
	r := SensorReading{Value: value, Timestamp: defaultTS}
	if unit, ok := obj["unit"].(string); ok {
		r.Unit = unit
	}
	if ts, ok := obj["timestamp"].(float64); ok && ts > 0 && finite(ts) {
		r.Timestamp = plausibleMillis(int64(ts), now)
	}
	if st, ok := obj["status"].(string); ok {
		if s := SensorStatus(strings.ToLower(st)); s.Valid() {
			r.Status = s
		}
	}
	if v, ok := obj["min"].(float64); ok && finite(v) {
		r.Min = Float(v)
	}
	if v, ok := obj["max"].(float64); ok && finite(v) {
		r.Max = Float(v)
	}
	return r, true
}

func parseTimestamp(raw interface{}, now time.Time) (time.Time, bool) {
	switch v := raw.(type) {
	case float64:
		if v > 0 && finite(v) {
			return time.UnixMilli(plausibleMillis(int64(v), now)), true
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			if t.After(now.Add(MaxClockSkew)) {
				return now, true
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// plausibleMillis reads epoch seconds as milliseconds and pulls timestamps too far in the
// future back to now.
func plausibleMillis(ms int64, now time.Time) int64 {
	if ms < secondsLimit {
		ms *= 1000
	}
	if ms > Millis(now.Add(MaxClockSkew)) {
		return Millis(now)
	}
	return ms
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
