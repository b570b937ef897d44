package scoring

import (
	"time"

	"archaeoscan-gateway/internal/data"
)

// Compute runs all three calculators over in and stamps the result with now.
func Compute(in Inputs, now time.Time) BlockSummaries {
	return BlockSummaries{
		Artifact:     ScoreArtifact(in.Artifact),
		Preservation: ScorePreservation(in.Preservation),
		Mapping:      ScoreMapping(in.Mapping),
		LastUpdated:  data.Millis(now),
		Defaulted:    in.Defaulted,
	}
}

// Summarize normalizes readings and computes the block summaries in one step.
func Summarize(readings map[string]data.SensorReading, histories map[string][]float64, opts Options, now time.Time) BlockSummaries {
	return Compute(Normalize(readings, histories, opts), now)
}
