package screening

import (
	"context"
	"errors"
	"testing"

	"kycflow/pkg/config"
	"kycflow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mocks

type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) WatchlistHits(ctx context.Context, attrs IdentityAttributes) ([]string, error) {
	args := m.Called(ctx, attrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) SanctionsHits(ctx context.Context, attrs IdentityAttributes) ([]string, error) {
	args := m.Called(ctx, attrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockDataSource) PEPHits(ctx context.Context, attrs IdentityAttributes) ([]string, error) {
	args := m.Called(ctx, attrs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func newTestService(source DataSource) *ScreeningService {
	return NewScreeningService(source, &config.Config{}, logger.NewNop())
}

// Tests

func TestScreenCleanSubject(t *testing.T) {
	source := new(MockDataSource)
	source.On("WatchlistHits", mock.Anything, mock.Anything).Return([]string{}, nil)
	source.On("SanctionsHits", mock.Anything, mock.Anything).Return([]string{}, nil)
	source.On("PEPHits", mock.Anything, mock.Anything).Return([]string{}, nil)

	svc := newTestService(source)
	result, err := svc.Screen(context.Background(), IdentityAttributes{FullName: "Amara Banda"})
	require.NoError(t, err)

	assert.True(t, result.AMLCheck.Passed)
	assert.True(t, result.SanctionsCheck.Passed)
	assert.True(t, result.PEPCheck.Passed)
	assert.True(t, result.OverallCompliance)
	assert.False(t, result.ScreenedAt.IsZero())
}

func TestScreenSanctionsHitFailsCompliance(t *testing.T) {
	source := new(MockDataSource)
	source.On("WatchlistHits", mock.Anything, mock.Anything).Return([]string{}, nil)
	source.On("SanctionsHits", mock.Anything, mock.Anything).Return([]string{"OFAC SDN"}, nil)
	source.On("PEPHits", mock.Anything, mock.Anything).Return([]string{}, nil)

	svc := newTestService(source)
	result, err := svc.Screen(context.Background(), IdentityAttributes{FullName: "Amara Banda"})
	require.NoError(t, err)

	assert.False(t, result.SanctionsCheck.Passed)
	assert.Equal(t, []string{"OFAC SDN"}, result.SanctionsCheck.MatchedLists)
	assert.False(t, result.OverallCompliance)
}

func TestScreenWatchlistHitFailsCompliance(t *testing.T) {
	source := new(MockDataSource)
	source.On("WatchlistHits", mock.Anything, mock.Anything).Return([]string{"Interpol Red Notices"}, nil)
	source.On("SanctionsHits", mock.Anything, mock.Anything).Return([]string{}, nil)
	source.On("PEPHits", mock.Anything, mock.Anything).Return([]string{}, nil)

	svc := newTestService(source)
	result, err := svc.Screen(context.Background(), IdentityAttributes{FullName: "Amara Banda"})
	require.NoError(t, err)

	assert.False(t, result.AMLCheck.Passed)
	assert.False(t, result.OverallCompliance)
}

func TestScreenPEPHitDoesNotFailCompliance(t *testing.T) {
	source := new(MockDataSource)
	source.On("WatchlistHits", mock.Anything, mock.Anything).Return([]string{}, nil)
	source.On("SanctionsHits", mock.Anything, mock.Anything).Return([]string{}, nil)
	source.On("PEPHits", mock.Anything, mock.Anything).Return([]string{"National PEP Register"}, nil)

	svc := newTestService(source)
	result, err := svc.Screen(context.Background(), IdentityAttributes{FullName: "Amara Banda"})
	require.NoError(t, err)

	assert.False(t, result.PEPCheck.Passed)
	assert.True(t, result.OverallCompliance, "PEP status alone must not block compliance")
}

func TestScreenProviderFailureReturnsError(t *testing.T) {
	source := new(MockDataSource)
	source.On("WatchlistHits", mock.Anything, mock.Anything).Return(nil, errors.New("provider unreachable"))

	svc := newTestService(source)
	result, err := svc.Screen(context.Background(), IdentityAttributes{FullName: "Amara Banda"})

	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestStaticDataSourceNormalizesNames(t *testing.T) {
	source := NewStaticDataSource(
		nil,
		map[string][]string{"Jon  Doe": {"OFAC SDN"}},
		nil,
	)

	hits, err := source.SanctionsHits(context.Background(), IdentityAttributes{FullName: "  jon doe "})
	require.NoError(t, err)
	assert.Equal(t, []string{"OFAC SDN"}, hits)

	none, err := source.SanctionsHits(context.Background(), IdentityAttributes{FullName: "Amara Banda"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestEmptyDataSourcePassesEveryone(t *testing.T) {
	svc := newTestService(NewEmptyDataSource())

	result, err := svc.Screen(context.Background(), IdentityAttributes{FullName: "Anyone At All"})
	require.NoError(t, err)
	assert.True(t, result.OverallCompliance)
}
