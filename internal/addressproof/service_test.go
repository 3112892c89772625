package addressproof

import (
	"context"
	"testing"

	"kycflow/internal/domain"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claim(image []byte) *domain.AddressClaim {
	return &domain.AddressClaim{
		Document: domain.DocumentInput{
			Type:       domain.DocumentTypeUtilityBill,
			FrontImage: image,
		},
		Claimed: domain.Address{
			Line1:   "12 Chilembwe Road",
			City:    "Lilongwe",
			Country: "MW",
		},
	}
}

func TestVerifyMatchingAddress(t *testing.T) {
	svc := NewMockVerifierService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), claim([]byte("utility-bill")))
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.True(t, result.AddressMatch)
	assert.Equal(t, 85.0, result.Confidence)
	assert.Equal(t, domain.DocumentTypeUtilityBill, result.DetectedType)
}

func TestVerifyMismatchedAddress(t *testing.T) {
	svc := NewMockVerifierService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), claim([]byte("ADDR-TEST-MISMATCH")))
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.False(t, result.AddressMatch)
	assert.NotEmpty(t, result.Issues)
}

func TestVerifyStaleDocument(t *testing.T) {
	svc := NewMockVerifierService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), claim([]byte("ADDR-TEST-STALE")))
	require.NoError(t, err)

	assert.False(t, result.Verified, "confidence below floor fails verification")
	assert.True(t, result.AddressMatch)
	assert.Equal(t, 45.0, result.Confidence)
}

func TestVerifyUnrecognizedDocumentType(t *testing.T) {
	svc := NewMockVerifierService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), claim([]byte("ADDR-TEST-WRONG-TYPE")))
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, domain.DocumentTypeUnknown, result.DetectedType)
}

func TestVerifyIncompleteClaim(t *testing.T) {
	svc := NewMockVerifierService(&config.Config{}, logger.NewNop())

	c := claim([]byte("utility-bill"))
	c.Claimed.Line1 = ""

	result, err := svc.Verify(context.Background(), c)
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.False(t, result.AddressMatch)
}

func TestVerifyNoClaim(t *testing.T) {
	svc := NewMockVerifierService(&config.Config{}, logger.NewNop())

	result, err := svc.Verify(context.Background(), nil)
	require.NoError(t, err, "missing proof is a negative result, not an error")

	assert.False(t, result.Verified)
	assert.Equal(t, 5.0, result.Confidence)
}
