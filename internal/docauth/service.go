// internal/docauth/service.go
package docauth

import (
	"bytes"
	"context"
	"time"

	"kycflow/internal/domain"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"
)

// Service inspects a document image for security features and tampering.
// Domain-level failures come back as low-confidence negative results; only
// infrastructure faults surface as errors.
type Service interface {
	Verify(ctx context.Context, docType domain.DocumentType, data *domain.ExtractedDocumentData, image []byte) (*domain.AuthenticityResult, error)
}

// Test payload markers understood by the reference checker.
var (
	markerTampered      = []byte("DOC-TEST-TAMPERED")
	markerLowConfidence = []byte("DOC-TEST-LOW-CONFIDENCE")
)

// expectedFeatures per document type; anything absent counts against confidence.
var expectedFeatures = map[domain.DocumentType][]string{
	domain.DocumentTypePassport:        {"mrz", "hologram", "uv_pattern", "chip"},
	domain.DocumentTypeDriversLicense:  {"hologram", "microprint", "barcode"},
	domain.DocumentTypeNationalID:      {"hologram", "microprint", "chip"},
	domain.DocumentTypeResidencePermit: {"mrz", "hologram", "chip"},
}

// MockAuthenticityService is the deterministic reference checker.
type MockAuthenticityService struct {
	config *config.Config
	logger logger.Logger
	now    func() time.Time
}

func NewMockAuthenticityService(cfg *config.Config, log logger.Logger) *MockAuthenticityService {
	return &MockAuthenticityService{
		config: cfg,
		logger: log,
		now:    time.Now,
	}
}

func (s *MockAuthenticityService) Verify(ctx context.Context, docType domain.DocumentType, data *domain.ExtractedDocumentData, image []byte) (*domain.AuthenticityResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ageValid := false
	if data != nil && data.ExpiryDate != nil {
		ageValid = data.ExpiryDate.After(s.now())
	}

	features := make([]domain.SecurityFeature, 0, 4)
	for _, name := range expectedFeatures[docType] {
		features = append(features, domain.SecurityFeature{Name: name, Detected: true})
	}

	// Tampering overrides everything: a manipulated document can never be authentic.
	if bytes.Contains(image, markerTampered) {
		for i := range features {
			features[i].Detected = false
		}
		result := &domain.AuthenticityResult{
			IsAuthentic:      false,
			Confidence:       20,
			SecurityFeatures: features,
			Tampering:        domain.TamperingCheck{Detected: true, Confidence: 92},
			DocumentAgeValid: ageValid,
		}
		s.logResult(docType, result)
		return result, nil
	}

	confidence := 90.0
	if bytes.Contains(image, markerLowConfidence) {
		confidence = 76.0
	}
	if len(image) == 0 {
		// Transient capture failure: low-confidence negative, never an error.
		confidence = 10.0
	}

	result := &domain.AuthenticityResult{
		IsAuthentic:      confidence >= 50 && ageValid,
		Confidence:       confidence,
		SecurityFeatures: features,
		Tampering:        domain.TamperingCheck{Detected: false, Confidence: 95},
		DocumentAgeValid: ageValid,
	}
	s.logResult(docType, result)
	return result, nil
}

func (s *MockAuthenticityService) logResult(docType domain.DocumentType, result *domain.AuthenticityResult) {
	s.logger.Info("Document authenticity check completed", map[string]interface{}{
		"document_type": docType,
		"authentic":     result.IsAuthentic,
		"confidence":    result.Confidence,
		"tampering":     result.Tampering.Detected,
	})
}
