package scoring

// materialBrackets is checked in order; the first threshold strictly below the spectral
// match wins.
var materialBrackets = []struct {
	material  Material
	threshold float64
}{
	{MaterialBronze, 75},
	{MaterialIron, 65},
	{MaterialStone, 55},
	{MaterialCeramic, 45},
}

// magneticAnomalyThreshold is the magnetic reading above which an anomaly is flagged.
const magneticAnomalyThreshold = 60

// LikelyMaterial guesses the material from the spectral match percentage.
func LikelyMaterial(spectral float64) Material {
	for _, b := range materialBrackets {
		if spectral > b.threshold {
			return b.material
		}
	}
	return MaterialUnknown
}

// ScoreArtifact combines magnetic, sonar and spectral readings (0..100 each) into an
// artifact-detection summary.
func ScoreArtifact(in ArtifactInputs) ArtifactSummary {
	weighted := in.Magnetic*0.35 + in.Sonar*0.35 + in.Spectral*0.30
	return ArtifactSummary{
		Probability:             round(clampFloat(weighted, 0, 100)),
		LikelyMaterial:          LikelyMaterial(in.Spectral),
		Confidence:              clampPct(round((in.Magnetic + in.Spectral) / 2)),
		MagneticAnomaly:         in.Magnetic > magneticAnomalyThreshold,
		SpectralMatchConfidence: clampPct(round(in.Spectral)),
	}
}
