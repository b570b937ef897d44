// internal/data/models.go
package data

import "time"

// SensorStatus is derived from threshold comparison on every update.
type SensorStatus string

const (
	StatusOK      SensorStatus = "ok"
	StatusWarning SensorStatus = "warning"
	StatusError   SensorStatus = "error"
	StatusOffline SensorStatus = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s SensorStatus) Valid() bool {
	switch s {
	case StatusOK, StatusWarning, StatusError, StatusOffline:
		return true
	}
	return false
}

// SensorReading is one value reported by one sensor. Readings are replaced wholesale on
// the next update, never mutated in place.
type SensorReading struct {
	Value     float64      `json:"value"`
	Unit      string       `json:"unit"`
	Timestamp int64        `json:"timestamp"` // epoch milliseconds
	Status    SensorStatus `json:"status"`
	Min       *float64     `json:"min,omitempty"`
	Max       *float64     `json:"max,omitempty"`
}

// SensorThresholds bound the ok/warning/error bands of a sensor. A nil field falls back
// to the 0..100 band.
type SensorThresholds struct {
	WarningLow   *float64 `json:"warningLow,omitempty" mapstructure:"warning_low"`
	WarningHigh  *float64 `json:"warningHigh,omitempty" mapstructure:"warning_high"`
	CriticalLow  *float64 `json:"criticalLow,omitempty" mapstructure:"critical_low"`
	CriticalHigh *float64 `json:"criticalHigh,omitempty" mapstructure:"critical_high"`
}

// Snapshot is a batch of readings received in one inbound message.
type Snapshot struct {
	Received time.Time                `json:"received"`           // gateway receive time
	Measured time.Time                `json:"measured,omitempty"` // device message time, when sent
	Source   string                   `json:"source,omitempty"`   // e.g. "http", "mqtt", "kafka", "upstream", "simulator"
	DeviceID string                   `json:"device_id,omitempty"`
	Readings map[string]SensorReading `json:"readings"`
}

// AlertType mirrors the severities shown on the dashboard.
type AlertType string

const (
	AlertInfo    AlertType = "info"
	AlertWarning AlertType = "warning"
	AlertError   AlertType = "error"
)

// Alert - Structure for sending alerts
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Message      string    `json:"message"`
	Timestamp    int64     `json:"timestamp"`
	SensorID     string    `json:"sensorId"`
	Value        float64   `json:"value"`
	DeviceID     string    `json:"deviceId,omitempty"`
	Acknowledged bool      `json:"acknowledged"`
}

// Millis converts t to epoch milliseconds.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
