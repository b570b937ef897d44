// internal/data/catalog.go
package data

// Category groups sensors into dashboard blocks.
type Category string

const (
	CategoryEnvironmental Category = "environmental"
	CategoryMotion        Category = "motion"
	CategoryMagnetic      Category = "magnetic"
	CategoryPosition      Category = "position"
	CategoryDetection     Category = "detection"
	CategoryMapping       Category = "mapping"
)

// Sensor ids understood by the scoring engine.
const (
	SensorMagneticAnomaly = "magneticAnomaly"
	SensorSonarReturn     = "sonarReturn"
	SensorSpectralMatch   = "spectralMatch"
	SensorTemperature     = "temperature"
	SensorHumidity        = "humidity"
	SensorDissolvedOxygen = "dissolvedOxygen"
	SensorSalinity        = "salinity"
	SensorTDS             = "tds"
	SensorDepthAccuracy   = "depthAccuracy"
	SensorGPSAccuracy     = "gpsAccuracy"
	SensorScanCoverage    = "scanCoverage"
	SensorDepth           = "depth"
	SensorBattery         = "battery"
)

// SensorSpec describes a known sensor.
type SensorSpec struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Category   Category         `json:"category"`
	Unit       string           `json:"unit"`
	Nominal    float64          `json:"-"`
	Variance   float64          `json:"-"`
	Thresholds SensorThresholds `json:"thresholds"`
}

func band(warnLow, warnHigh, critLow, critHigh float64) SensorThresholds {
	return SensorThresholds{
		WarningLow:   Float(warnLow),
		WarningHigh:  Float(warnHigh),
		CriticalLow:  Float(critLow),
		CriticalHigh: Float(critHigh),
	}
}

// Catalog lists the field kit sensors in dashboard order.
var Catalog = []SensorSpec{
	// Seafloor & artifact detection
	{ID: SensorMagneticAnomaly, Name: "Magnetic Anomaly", Category: CategoryDetection, Unit: "%", Nominal: 72, Variance: 2, Thresholds: band(20, 90, 10, 95)},
	{ID: SensorSonarReturn, Name: "Sonar Return", Category: CategoryDetection, Unit: "%", Nominal: 68, Variance: 2, Thresholds: band(30, 95, 15, 100)},
	{ID: SensorSpectralMatch, Name: "Spectral Match", Category: CategoryDetection, Unit: "%", Nominal: 76, Variance: 2, Thresholds: band(40, 100, 20, 100)},

	// Environment & preservation
	{ID: SensorTemperature, Name: "Temperature", Category: CategoryEnvironmental, Unit: "°C", Nominal: 12.4, Variance: 2, Thresholds: band(5, 25, 2, 30)},
	{ID: SensorHumidity, Name: "Humidity", Category: CategoryEnvironmental, Unit: "%", Nominal: 62.1, Variance: 2, Thresholds: band(30, 80, 20, 90)},
	{ID: SensorDissolvedOxygen, Name: "Dissolved O₂", Category: CategoryEnvironmental, Unit: "mg/L", Nominal: 4.2, Variance: 0.3, Thresholds: band(2, 8, 1, 12)},
	{ID: SensorSalinity, Name: "Salinity", Category: CategoryEnvironmental, Unit: "PSU", Nominal: 35.2, Variance: 0.5, Thresholds: band(30, 40, 25, 45)},
	{ID: SensorTDS, Name: "TDS", Category: CategoryEnvironmental, Unit: "ppm", Nominal: 342, Variance: 15, Thresholds: band(100, 500, 50, 800)},

	// Mapping & depth analysis
	{ID: SensorDepthAccuracy, Name: "Depth Accuracy", Category: CategoryMapping, Unit: "%", Nominal: 88, Variance: 3, Thresholds: band(70, 100, 50, 100)},
	{ID: SensorGPSAccuracy, Name: "GPS Accuracy", Category: CategoryMapping, Unit: "%", Nominal: 92, Variance: 3, Thresholds: band(75, 100, 60, 100)},
	{ID: SensorScanCoverage, Name: "Scan Coverage", Category: CategoryMapping, Unit: "%", Nominal: 78, Variance: 3, Thresholds: band(50, 100, 30, 100)},

	// System
	{ID: SensorBattery, Name: "Battery", Category: CategoryEnvironmental, Unit: "%", Nominal: 87, Variance: 0.1, Thresholds: band(20, 100, 10, 100)},
}

// Lookup returns the catalogue entry for id.
func Lookup(id string) (SensorSpec, bool) {
	for _, s := range Catalog {
		if s.ID == id {
			return s, true
		}
	}
	return SensorSpec{}, false
}

// DefaultThresholds returns the catalogue thresholds keyed by sensor id.
func DefaultThresholds() map[string]SensorThresholds {
	out := make(map[string]SensorThresholds, len(Catalog))
	for _, s := range Catalog {
		out[s.ID] = s.Thresholds
	}
	return out
}

// Known reports whether id is read by the scoring engine: a catalogue sensor or depth.
func Known(id string) bool {
	if id == SensorDepth {
		return true
	}
	_, ok := Lookup(id)
	return ok
}
