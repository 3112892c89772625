package liveness

import (
	"context"
	"testing"

	"kycflow/internal/domain"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLiveCapture(t *testing.T) {
	svc := NewMockDetectorService(&config.Config{}, logger.NewNop())

	result, err := svc.Detect(context.Background(), &domain.LivenessCapture{
		Frames:     [][]byte{[]byte("frame-1"), []byte("frame-2")},
		Challenges: []string{"blink", "smile"},
	})
	require.NoError(t, err)

	assert.True(t, result.IsLive)
	assert.Equal(t, domain.SpoofingRiskLow, result.SpoofingRisk)
	require.Len(t, result.Challenges, 2)
	for _, c := range result.Challenges {
		assert.True(t, c.Passed, "challenge %s", c.Name)
	}
}

func TestDetectDefaultChallenges(t *testing.T) {
	svc := NewMockDetectorService(&config.Config{}, logger.NewNop())

	result, err := svc.Detect(context.Background(), &domain.LivenessCapture{
		Frames: [][]byte{[]byte("frame-1")},
	})
	require.NoError(t, err)

	require.Len(t, result.Challenges, 3)
	assert.Equal(t, "blink", result.Challenges[0].Name)
}

func TestDetectSpoofedCapture(t *testing.T) {
	svc := NewMockDetectorService(&config.Config{}, logger.NewNop())

	result, err := svc.Detect(context.Background(), &domain.LivenessCapture{
		Frames: [][]byte{[]byte("LIVE-TEST-SPOOF")},
	})
	require.NoError(t, err)

	assert.False(t, result.IsLive)
	assert.Equal(t, domain.SpoofingRiskHigh, result.SpoofingRisk)
}

func TestDetectReplayedCapture(t *testing.T) {
	svc := NewMockDetectorService(&config.Config{}, logger.NewNop())

	result, err := svc.Detect(context.Background(), &domain.LivenessCapture{
		Frames: [][]byte{[]byte("LIVE-TEST-REPLAY")},
	})
	require.NoError(t, err)

	assert.False(t, result.IsLive)
	assert.Equal(t, domain.SpoofingRiskMedium, result.SpoofingRisk)
}

func TestDetectNoCapture(t *testing.T) {
	svc := NewMockDetectorService(&config.Config{}, logger.NewNop())

	result, err := svc.Detect(context.Background(), nil)
	require.NoError(t, err, "absent capture is a negative result, not an error")

	assert.False(t, result.IsLive)
	assert.Equal(t, 10.0, result.Confidence)
	assert.Equal(t, domain.SpoofingRiskHigh, result.SpoofingRisk)
}
