// internal/biometric/service.go
package biometric

import (
	"bytes"
	"context"

	"kycflow/internal/domain"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"
)

// MatchConfidenceFloor is the confidence below which a comparison must report
// match=false regardless of the raw similarity outcome.
const MatchConfidenceFloor = 75.0

// Service compares a selfie against the document portrait.
type Service interface {
	Match(ctx context.Context, documentImage, selfieImage []byte) (*domain.FaceMatchResult, error)
}

// Test payload markers understood by the reference matcher.
var (
	markerMismatch      = []byte("FACE-TEST-MISMATCH")
	markerLowConfidence = []byte("FACE-TEST-LOW-CONFIDENCE")
	markerNoFace        = []byte("FACE-TEST-NO-FACE")
)

// MockMatcherService is the deterministic reference matcher.
type MockMatcherService struct {
	config *config.Config
	logger logger.Logger
}

func NewMockMatcherService(cfg *config.Config, log logger.Logger) *MockMatcherService {
	return &MockMatcherService{config: cfg, logger: log}
}

func (s *MockMatcherService) Match(ctx context.Context, documentImage, selfieImage []byte) (*domain.FaceMatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var issues []string
	quality := domain.FaceQuality{FaceDetected: true, Brightness: 0.72, Sharpness: 0.81}
	confidence := 92.0
	liveness := 0.9

	switch {
	case len(selfieImage) == 0:
		quality.FaceDetected = false
		confidence = 0
		liveness = 0
		issues = append(issues, "no selfie image provided")
	case bytes.Contains(selfieImage, markerNoFace):
		quality.FaceDetected = false
		quality.Sharpness = 0.2
		confidence = 5
		liveness = 0.1
		issues = append(issues, "no face detected in selfie")
	case bytes.Contains(selfieImage, markerMismatch):
		confidence = 40
		liveness = 0.85
		issues = append(issues, "selfie does not match document portrait")
	case bytes.Contains(selfieImage, markerLowConfidence):
		confidence = 72
		issues = append(issues, "comparison confidence below acceptance floor")
	}

	result := &domain.FaceMatchResult{
		Match:         confidence >= MatchConfidenceFloor,
		Confidence:    confidence,
		LivenessScore: liveness,
		Quality:       quality,
		Issues:        issues,
	}

	s.logger.Info("Biometric face match completed", map[string]interface{}{
		"match":      result.Match,
		"confidence": result.Confidence,
	})
	return result, nil
}
