package docauth

import (
	"context"
	"testing"
	"time"

	"kycflow/internal/domain"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractedData(expiry time.Time) *domain.ExtractedDocumentData {
	return &domain.ExtractedDocumentData{
		FirstName:      "Amara",
		LastName:       "Banda",
		DocumentNumber: "PP-00001234",
		ExpiryDate:     &expiry,
	}
}

func TestVerifyAuthenticDocument(t *testing.T) {
	svc := NewMockAuthenticityService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), domain.DocumentTypePassport, extractedData(time.Now().AddDate(2, 0, 0)), []byte("passport-image"))
	require.NoError(t, err)

	assert.True(t, result.IsAuthentic)
	assert.Equal(t, 90.0, result.Confidence)
	assert.False(t, result.Tampering.Detected)
	assert.True(t, result.DocumentAgeValid)
	require.Len(t, result.SecurityFeatures, 4)
	for _, f := range result.SecurityFeatures {
		assert.True(t, f.Detected, "feature %s", f.Name)
	}
}

func TestVerifyTamperedDocument(t *testing.T) {
	svc := NewMockAuthenticityService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), domain.DocumentTypePassport, extractedData(time.Now().AddDate(2, 0, 0)), []byte("DOC-TEST-TAMPERED"))
	require.NoError(t, err)

	assert.False(t, result.IsAuthentic, "tampering must force authenticity false")
	assert.True(t, result.Tampering.Detected)
	assert.Equal(t, 20.0, result.Confidence)
	for _, f := range result.SecurityFeatures {
		assert.False(t, f.Detected)
	}
}

func TestVerifyExpiredDocument(t *testing.T) {
	svc := NewMockAuthenticityService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), domain.DocumentTypePassport, extractedData(time.Now().AddDate(-1, 0, 0)), []byte("passport-image"))
	require.NoError(t, err)

	assert.False(t, result.IsAuthentic)
	assert.False(t, result.DocumentAgeValid)
}

func TestVerifyLowConfidenceStillAuthentic(t *testing.T) {
	svc := NewMockAuthenticityService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), domain.DocumentTypePassport, extractedData(time.Now().AddDate(2, 0, 0)), []byte("DOC-TEST-LOW-CONFIDENCE"))
	require.NoError(t, err)

	assert.True(t, result.IsAuthentic)
	assert.Equal(t, 76.0, result.Confidence)
}

func TestVerifyEmptyImageIsLowConfidenceNegative(t *testing.T) {
	svc := NewMockAuthenticityService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), domain.DocumentTypePassport, extractedData(time.Now().AddDate(2, 0, 0)), nil)
	require.NoError(t, err, "transient capture failure must not surface as an error")

	assert.False(t, result.IsAuthentic)
	assert.Equal(t, 10.0, result.Confidence)
}

func TestVerifyCancelledContext(t *testing.T) {
	svc := NewMockAuthenticityService(&config.Config{}, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Verify(ctx, domain.DocumentTypePassport, nil, []byte("img"))
	assert.Error(t, err)
}
