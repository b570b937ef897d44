package scoring

// Material is a likely or predicted artifact material.
type Material string

const (
	MaterialBronze  Material = "bronze"
	MaterialIron    Material = "iron"
	MaterialStone   Material = "stone"
	MaterialCeramic Material = "ceramic"
	MaterialWood    Material = "wood"
	MaterialTextile Material = "textile"
	MaterialBone    Material = "bone"
	MaterialUnknown Material = "unknown"
)

// RiskLevel buckets a survival percentage.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type WaterConditions string

const (
	WaterFavorable  WaterConditions = "favorable"
	WaterModerate   WaterConditions = "moderate"
	WaterAggressive WaterConditions = "aggressive"
)

type TemperatureStability string

const (
	TemperatureStable   TemperatureStability = "stable"
	TemperatureVariable TemperatureStability = "variable"
	TemperatureUnstable TemperatureStability = "unstable"
)

type SurfaceComplexity string

const (
	SurfaceFlat    SurfaceComplexity = "flat"
	SurfaceUneven  SurfaceComplexity = "uneven"
	SurfaceComplex SurfaceComplexity = "complex"
)

type ArtifactSummary struct {
	Probability             int      `json:"probability"`
	LikelyMaterial          Material `json:"likelyMaterial"`
	Confidence              int      `json:"confidence"`
	MagneticAnomaly         bool     `json:"magneticAnomaly"`
	SpectralMatchConfidence int      `json:"spectralMatchConfidence"`
}

type MaterialPrediction struct {
	Material            Material  `json:"material"`
	SurvivalProbability int       `json:"survivalProbability"`
	RiskLevel           RiskLevel `json:"riskLevel"`
}

type PreservationSummary struct {
	OverallScore         int                  `json:"overallScore"`
	MaterialPredictions  []MaterialPrediction `json:"materialPredictions"`
	WaterConditions      WaterConditions      `json:"waterConditions"`
	TemperatureStability TemperatureStability `json:"temperatureStability"`
	MainRiskFactors      []string             `json:"mainRiskFactors"`
}

type DepthRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type MappingSummary struct {
	Accuracy          int               `json:"accuracy"`
	SurfaceComplexity SurfaceComplexity `json:"surfaceComplexity"`
	ScanCompleteness  int               `json:"scanCompleteness"`
	AnomaliesDetected int               `json:"anomaliesDetected"`
	DepthRange        DepthRange        `json:"depthRange"`
}

// BlockSummaries is the aggregate snapshot published after every sensor map change.
type BlockSummaries struct {
	Artifact     ArtifactSummary     `json:"artifact"`
	Preservation PreservationSummary `json:"preservation"`
	Mapping      MappingSummary      `json:"mapping"`
	LastUpdated  int64               `json:"lastUpdated"`
	// Defaulted lists sensors whose value was substituted because no usable reading existed.
	Defaulted []string `json:"defaultedSensors,omitempty"`
}
