package alertness

import "math"

// Factor labels, in the order they are evaluated and reported.
const (
	FactorEyeClosure    = "Eye Closure"
	FactorYawning       = "Yawning"
	FactorHeadTilt      = "Head Tilt"
	FactorAttentionLoss = "Attention Loss"
)

// Weights are the score contributions of each binary factor.
type Weights struct {
	EyeClosure    int `json:"eye_closure"`
	Yawning       int `json:"yawning"`
	HeadTilt      int `json:"head_tilt"`
	AttentionLoss int `json:"attention_loss"`
}

// ScorerConfig holds the factor thresholds and weights.
type ScorerConfig struct {
	EARThreshold       float64
	MARThreshold       float64
	HeadTiltDegrees    float64
	AttentionThreshold float64
	Weights            Weights
}

// DefaultScorerConfig returns the standard thresholds and 40/25/20/15 weights.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		EARThreshold:       0.21,
		MARThreshold:       0.5,
		HeadTiltDegrees:    10,
		AttentionThreshold: 0.25,
		Weights: Weights{
			EyeClosure:    40,
			Yawning:       25,
			HeadTilt:      20,
			AttentionLoss: 15,
		},
	}
}

// ScoreInput is what the scorer sees for one face. EAR and head angle are
// smoothed; MAR and attention deviation are the raw frame values.
type ScoreInput struct {
	SmoothedEAR        float64
	MAR                float64
	SmoothedHeadAngle  float64
	AttentionDeviation float64
}

// Score is a weighted sum of triggered factors plus their labels.
type Score struct {
	Value   int      `json:"value"`
	Factors []string `json:"factors"`
}

// Scorer is a rule-based additive model: every factor is either fully on or
// off, and the same input always yields the same score.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer returns a Scorer for cfg.
func NewScorer(cfg ScorerConfig) Scorer {
	return Scorer{cfg: cfg}
}

// Score evaluates the four factors. NaN inputs never trigger a factor.
func (s Scorer) Score(in ScoreInput) Score {
	out := Score{Factors: []string{}}
	add := func(hit bool, weight int, label string) {
		if hit {
			out.Value += weight
			out.Factors = append(out.Factors, label)
		}
	}

	add(in.SmoothedEAR < s.cfg.EARThreshold, s.cfg.Weights.EyeClosure, FactorEyeClosure)
	add(in.MAR > s.cfg.MARThreshold, s.cfg.Weights.Yawning, FactorYawning)
	add(math.Abs(in.SmoothedHeadAngle) > s.cfg.HeadTiltDegrees, s.cfg.Weights.HeadTilt, FactorHeadTilt)
	add(in.AttentionDeviation > s.cfg.AttentionThreshold, s.cfg.Weights.AttentionLoss, FactorAttentionLoss)

	return out
}
