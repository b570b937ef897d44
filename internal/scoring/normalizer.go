// Package scoring turns a sensor snapshot into the artifact, preservation and mapping
// summaries shown on the dashboard. Every function here is pure: callers pass an explicit
// snapshot and get a fresh value back, so concurrent use needs no locking.
package scoring

import (
	"math"
	"sort"

	"archaeoscan-gateway/internal/data"
)

// Defaults substituted for absent sensors.
const (
	DefaultMagnetic        = 0.0
	DefaultSonar           = 0.0
	DefaultSpectral        = 0.0
	DefaultTemperature     = 20.0
	DefaultHumidity        = 50.0
	DefaultTDS             = 300.0
	DefaultDissolvedOxygen = 6.0
	DefaultSalinity        = 35.0
	DefaultDepthAccuracy   = 85.0
	DefaultGPSAccuracy     = 90.0
	DefaultScanCoverage    = 75.0
	DefaultMappingSonar    = 60.0
)

type ArtifactInputs struct {
	Magnetic float64
	Sonar    float64
	Spectral float64
}

type PreservationInputs struct {
	Temperature        float64
	Humidity           float64
	TDS                float64
	DissolvedOxygen    float64
	Salinity           float64
	TemperatureHistory []float64
}

type MappingInputs struct {
	DepthAccuracy float64
	GPSAccuracy   float64
	ScanCoverage  float64
	Sonar         float64
	DepthHistory  []float64
}

// Inputs is the normalized scalar view of one sensor snapshot.
type Inputs struct {
	Artifact     ArtifactInputs
	Preservation PreservationInputs
	Mapping      MappingInputs
	Defaulted    []string
}

// Options tune how readings count as absent.
type Options struct {
	// ZeroAsMissing treats an exact zero like an absent sensor.
	ZeroAsMissing bool
}

// DefaultOptions keeps the dashboard's behaviour, where a zero reading falls back to the default.
func DefaultOptions() Options {
	return Options{ZeroAsMissing: true}
}

// absent reports whether v counts as no reading.
func (o Options) absent(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || (o.ZeroAsMissing && v == 0)
}

// present drops history values that would count as absent readings.
func (o Options) present(history []float64) []float64 {
	if history == nil {
		return nil
	}
	out := make([]float64, 0, len(history))
	for _, v := range history {
		if !o.absent(v) {
			out = append(out, v)
		}
	}
	return out
}

// Normalize reads the scoring inputs out of readings, substituting defaults for absent
// sensors. histories supplies per-sensor value history and may be nil.
func Normalize(readings map[string]data.SensorReading, histories map[string][]float64, opts Options) Inputs {
	defaulted := make(map[string]struct{})
	get := func(id string, def float64) float64 {
		r, ok := readings[id]
		if !ok || r.Status == data.StatusOffline || opts.absent(r.Value) {
			defaulted[id] = struct{}{}
			return def
		}
		return r.Value
	}

	in := Inputs{
		Artifact: ArtifactInputs{
			Magnetic: get(data.SensorMagneticAnomaly, DefaultMagnetic),
			Sonar:    get(data.SensorSonarReturn, DefaultSonar),
			Spectral: get(data.SensorSpectralMatch, DefaultSpectral),
		},
		Preservation: PreservationInputs{
			Temperature:        get(data.SensorTemperature, DefaultTemperature),
			Humidity:           get(data.SensorHumidity, DefaultHumidity),
			TDS:                get(data.SensorTDS, DefaultTDS),
			DissolvedOxygen:    get(data.SensorDissolvedOxygen, DefaultDissolvedOxygen),
			Salinity:           get(data.SensorSalinity, DefaultSalinity),
			TemperatureHistory: opts.present(histories[data.SensorTemperature]),
		},
		Mapping: MappingInputs{
			DepthAccuracy: get(data.SensorDepthAccuracy, DefaultDepthAccuracy),
			GPSAccuracy:   get(data.SensorGPSAccuracy, DefaultGPSAccuracy),
			ScanCoverage:  get(data.SensorScanCoverage, DefaultScanCoverage),
			Sonar:         get(data.SensorSonarReturn, DefaultMappingSonar),
			DepthHistory:  opts.present(histories[data.SensorDepth]),
		},
	}

	if len(defaulted) > 0 {
		in.Defaulted = make([]string, 0, len(defaulted))
		for id := range defaulted {
			in.Defaulted = append(in.Defaulted, id)
		}
		sort.Strings(in.Defaulted)
	}
	return in
}

// round matches the dashboard's rounding: halves go towards +Inf.
func round(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clampPct(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func clampFloat(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
