package risk

import (
	"time"

	"kycflow/internal/domain"
)

// Factor weights. Lower total score is better.
const (
	WeightAuthenticityFailure = 30
	WeightBiometricFailure    = 25
	WeightLivenessFailure     = 20
	WeightAddressFailure      = 10
	WeightAgeOutlier          = 10
)

// Level thresholds over the 0-100 score.
const (
	ThresholdMedium   = 20
	ThresholdHigh     = 50
	ThresholdCritical = 75
)

// Outlier age bounds; subjects younger than 18 or older than 80 add risk.
const (
	AgeOutlierLow  = 18
	AgeOutlierHigh = 80
)

// recommendations is the fixed level -> recommendation mapping.
var recommendations = map[domain.RiskLevel]string{
	domain.RiskLevelLow:      "Approve automatically; no additional scrutiny required",
	domain.RiskLevelMedium:   "Approve with standard monitoring of initial account activity",
	domain.RiskLevelHigh:     "Route to compliance officer for enhanced due diligence before approval",
	domain.RiskLevelCritical: "Do not approve; escalate to senior compliance review immediately",
}

// Input aggregates every verification outcome the engine weighs. Nil members
// mean the corresponding check did not produce a result, which counts as a
// failure for scoring.
type Input struct {
	Authenticity *domain.AuthenticityResult
	FaceMatch    *domain.FaceMatchResult
	Liveness     *domain.LivenessResult
	AddressProof *domain.AddressProofResult
	Compliance   *domain.ComplianceResult
	Extracted    *domain.ExtractedDocumentData
}

// Engine computes the deterministic weighted risk assessment.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Assess produces the weighted score, its level, and the fixed recommendation
// for that level. The mapping is total: every input yields exactly one level.
func (e *Engine) Assess(in Input) domain.RiskAssessment {
	score := 0
	var factors []domain.RiskFactor

	if in.Authenticity == nil || !in.Authenticity.IsAuthentic {
		score += WeightAuthenticityFailure
		factors = append(factors, domain.RiskFactor{Name: "document_authenticity", Points: WeightAuthenticityFailure})
	}
	if in.FaceMatch == nil || !in.FaceMatch.Match {
		score += WeightBiometricFailure
		factors = append(factors, domain.RiskFactor{Name: "biometric_match", Points: WeightBiometricFailure})
	}
	if in.Liveness == nil || !in.Liveness.IsLive {
		score += WeightLivenessFailure
		factors = append(factors, domain.RiskFactor{Name: "liveness", Points: WeightLivenessFailure})
	}
	if in.AddressProof == nil || !in.AddressProof.Verified {
		score += WeightAddressFailure
		factors = append(factors, domain.RiskFactor{Name: "address_proof", Points: WeightAddressFailure})
	}
	if e.isAgeOutlier(in.Extracted) {
		score += WeightAgeOutlier
		factors = append(factors, domain.RiskFactor{Name: "age_outlier", Points: WeightAgeOutlier})
	}

	level := LevelForScore(score)
	return domain.RiskAssessment{
		Score:          score,
		Level:          level,
		Recommendation: recommendations[level],
		Factors:        factors,
	}
}

func (e *Engine) isAgeOutlier(data *domain.ExtractedDocumentData) bool {
	if data == nil || data.DateOfBirth == nil {
		return false
	}
	age := data.Age(e.now())
	return age < AgeOutlierLow || age > AgeOutlierHigh
}

// LevelForScore maps a score onto its risk level.
func LevelForScore(score int) domain.RiskLevel {
	switch {
	case score < ThresholdMedium:
		return domain.RiskLevelLow
	case score < ThresholdHigh:
		return domain.RiskLevelMedium
	case score < ThresholdCritical:
		return domain.RiskLevelHigh
	}
	return domain.RiskLevelCritical
}

// RecommendationFor returns the fixed recommendation for a level.
func RecommendationFor(level domain.RiskLevel) string {
	return recommendations[level]
}
