package scoring

import "math"

// Risk factor labels, in reporting order.
const (
	RiskFactorOxygen      = "High dissolved oxygen"
	RiskFactorTDS         = "Elevated TDS levels"
	RiskFactorSalinity    = "High salinity"
	RiskFactorTemperature = "Temperature extremes"
)

const maxRiskFactors = 3

// RiskLevelFor buckets a survival percentage. Lower bounds are inclusive.
func RiskLevelFor(survival float64) RiskLevel {
	switch {
	case survival >= 80:
		return RiskLow
	case survival >= 60:
		return RiskModerate
	case survival >= 40:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// WaterConditionsFor classifies how aggressive the water is towards buried material.
func WaterConditionsFor(oxygen, tds float64) WaterConditions {
	switch {
	case oxygen < 3 && tds < 400:
		return WaterFavorable
	case oxygen > 6 || tds > 600:
		return WaterAggressive
	default:
		return WaterModerate
	}
}

// TemperatureStabilityFor classifies the spread of the temperature history.
func TemperatureStabilityFor(history []float64) TemperatureStability {
	spread := 0.0
	if len(history) > 1 {
		lo, hi := history[0], history[0]
		for _, v := range history[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		spread = hi - lo
	}
	switch {
	case spread < 2:
		return TemperatureStable
	case spread < 5:
		return TemperatureVariable
	default:
		return TemperatureUnstable
	}
}

// RiskFactors lists the active risk conditions in fixed order, at most three.
func RiskFactors(in PreservationInputs) []string {
	factors := make([]string, 0, 4)
	if in.DissolvedOxygen > 5 {
		factors = append(factors, RiskFactorOxygen)
	}
	if in.TDS > 500 {
		factors = append(factors, RiskFactorTDS)
	}
	if in.Salinity > 40 {
		factors = append(factors, RiskFactorSalinity)
	}
	if in.Temperature > 25 || in.Temperature < 5 {
		factors = append(factors, RiskFactorTemperature)
	}
	if len(factors) > maxRiskFactors {
		factors = factors[:maxRiskFactors]
	}
	return factors
}

func survivalWood(in PreservationInputs) int {
	penalty := 0.0
	if in.Salinity > 40 {
		penalty = 10
	}
	return round(100 - in.DissolvedOxygen*5 - math.Abs(in.Temperature-10)*2 - penalty)
}

func survivalMetal(in PreservationInputs) int {
	penalty := 0.0
	if in.Salinity > 35 {
		penalty = 15
	}
	return round(100 - in.DissolvedOxygen*8 - in.TDS/20 - penalty)
}

func survivalCeramic(in PreservationInputs) int {
	return round(90 - math.Abs(in.Temperature-15) - in.TDS/50)
}

func survivalTextile(in PreservationInputs) int {
	penalty := 0.0
	if in.Humidity > 70 {
		penalty = 20
	}
	return round(100 - in.DissolvedOxygen*10 - penalty - math.Abs(in.Temperature-8)*3)
}

// ScorePreservation estimates how well each material class survives the current water
// and temperature conditions.
func ScorePreservation(in PreservationInputs) PreservationSummary {
	survivals := []struct {
		material Material
		value    int
	}{
		{MaterialWood, survivalWood(in)},
		// the metal formula is reported as iron
		{MaterialIron, survivalMetal(in)},
		{MaterialCeramic, survivalCeramic(in)},
		{MaterialTextile, survivalTextile(in)},
	}

	predictions := make([]MaterialPrediction, 0, len(survivals))
	total := 0.0
	for _, s := range survivals {
		total += float64(s.value) * 0.25
		predictions = append(predictions, MaterialPrediction{
			Material:            s.material,
			SurvivalProbability: clampPct(s.value),
			RiskLevel:           RiskLevelFor(float64(s.value)),
		})
	}

	return PreservationSummary{
		OverallScore:         clampPct(round(total)),
		MaterialPredictions:  predictions,
		WaterConditions:      WaterConditionsFor(in.DissolvedOxygen, in.TDS),
		TemperatureStability: TemperatureStabilityFor(in.TemperatureHistory),
		MainRiskFactors:      RiskFactors(in),
	}
}
