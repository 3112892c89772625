// internal/liveness/service.go
package liveness

import (
	"bytes"
	"context"

	"kycflow/internal/domain"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"
)

// Service evaluates a capture sequence for presentation-attack risk.
type Service interface {
	Detect(ctx context.Context, capture *domain.LivenessCapture) (*domain.LivenessResult, error)
}

// Test frame markers understood by the reference detector.
var (
	markerSpoof  = []byte("LIVE-TEST-SPOOF")
	markerReplay = []byte("LIVE-TEST-REPLAY")
)

// defaultChallenges run when the capture names none.
var defaultChallenges = []string{"blink", "turn_head", "smile"}

// MockDetectorService is the deterministic reference detector.
type MockDetectorService struct {
	config *config.Config
	logger logger.Logger
}

func NewMockDetectorService(cfg *config.Config, log logger.Logger) *MockDetectorService {
	return &MockDetectorService{config: cfg, logger: log}
}

func (s *MockDetectorService) Detect(ctx context.Context, capture *domain.LivenessCapture) (*domain.LivenessResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if capture == nil || len(capture.Frames) == 0 {
		// No capture supplied: low-confidence negative, never an error.
		return &domain.LivenessResult{
			IsLive:       false,
			Confidence:   10,
			SpoofingRisk: domain.SpoofingRiskHigh,
		}, nil
	}

	spoofed := false
	replay := false
	for _, frame := range capture.Frames {
		if bytes.Contains(frame, markerSpoof) {
			spoofed = true
		}
		if bytes.Contains(frame, markerReplay) {
			replay = true
		}
	}

	names := capture.Challenges
	if len(names) == 0 {
		names = defaultChallenges
	}

	challenges := make([]domain.ChallengeResult, 0, len(names))
	for _, name := range names {
		challenges = append(challenges, domain.ChallengeResult{
			Name:       name,
			Passed:     !spoofed && !replay,
			Confidence: challengeConfidence(spoofed, replay),
		})
	}

	result := &domain.LivenessResult{
		IsLive:       !spoofed && !replay,
		Confidence:   challengeConfidence(spoofed, replay),
		Challenges:   challenges,
		SpoofingRisk: spoofingRisk(spoofed, replay),
	}

	s.logger.Info("Liveness detection completed", map[string]interface{}{
		"live":          result.IsLive,
		"confidence":    result.Confidence,
		"spoofing_risk": result.SpoofingRisk,
	})
	return result, nil
}

func challengeConfidence(spoofed, replay bool) float64 {
	switch {
	case spoofed:
		return 12
	case replay:
		return 35
	}
	return 88
}

func spoofingRisk(spoofed, replay bool) domain.SpoofingRisk {
	switch {
	case spoofed:
		return domain.SpoofingRiskHigh
	case replay:
		return domain.SpoofingRiskMedium
	}
	return domain.SpoofingRiskLow
}
