package model

// GeneCount is the fixed policy vector length: [w1, w2, b].
const GeneCount = 3

// Genes holds the linear jump policy: two input weights and a bias.
type Genes [GeneCount]float64

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type Policy struct {
	VersionedRecord
	ID    string `json:"id"`
	Genes Genes  `json:"genes"`
}

type Population struct {
	VersionedRecord
	ID         string   `json:"id"`
	Generation int      `json:"generation"`
	Policies   []Policy `json:"policies"`
}

// GenerationDiagnostics summarizes one evaluate-rank-replace cycle.
type GenerationDiagnostics struct {
	Generation   int     `json:"generation"`
	BestFitness  float64 `json:"best_fitness"`
	MeanFitness  float64 `json:"mean_fitness"`
	MinFitness   float64 `json:"min_fitness"`
	TimeCapCount int     `json:"time_cap_count"`
	EliteSpread  Genes   `json:"elite_spread"`
}

type TopPolicyRecord struct {
	Rank    int     `json:"rank"`
	Fitness float64 `json:"fitness"`
	Policy  Policy  `json:"policy"`
}

type CourseSummary struct {
	VersionedRecord
	Name        string  `json:"name"`
	Description string  `json:"description"`
	BestFitness float64 `json:"best_fitness"`
}
