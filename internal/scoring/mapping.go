package scoring

import "math"

// PlaceholderDepthRange is reported while no depth history exists. It is a fixed stand-in
// carried over from the dashboard, not a measurement.
var PlaceholderDepthRange = DepthRange{Min: 2.5, Max: 15.8}

// SurfaceComplexityFor classifies the seabed from the sonar return.
func SurfaceComplexityFor(sonar float64) SurfaceComplexity {
	switch {
	case sonar > 70:
		return SurfaceComplex
	case sonar > 40:
		return SurfaceUneven
	default:
		return SurfaceFlat
	}
}

func depthRangeOf(history []float64) DepthRange {
	if len(history) == 0 {
		return PlaceholderDepthRange
	}
	r := DepthRange{Min: history[0], Max: history[0]}
	for _, v := range history[1:] {
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
	}
	return r
}

// ScoreMapping summarises survey quality.
func ScoreMapping(in MappingInputs) MappingSummary {
	anomalies := int(math.Floor(in.Sonar / 10))
	if anomalies < 0 {
		anomalies = 0
	}
	return MappingSummary{
		Accuracy:          clampPct(round((in.DepthAccuracy + in.GPSAccuracy) / 2)),
		SurfaceComplexity: SurfaceComplexityFor(in.Sonar),
		ScanCompleteness:  clampPct(round(in.ScanCoverage)),
		AnomaliesDetected: anomalies,
		DepthRange:        depthRangeOf(in.DepthHistory),
	}
}
