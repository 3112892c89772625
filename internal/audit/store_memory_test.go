package audit

import (
	"context"
	"testing"
	"time"

	"kycflow/internal/domain"
	kycerrors "kycflow/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(verificationID uuid.UUID, status domain.WorkflowStatus, level domain.RiskLevel, createdAt time.Time) *domain.DecisionRecord {
	return &domain.DecisionRecord{
		ID:             uuid.New(),
		VerificationID: verificationID,
		Status:         status,
		RiskLevel:      level,
		StartedAt:      createdAt.Add(-time.Minute),
		CompletedAt:    createdAt,
		CreatedAt:      createdAt,
	}
}

func TestMemoryStoreCreateAndFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	verificationID := uuid.New()

	rec := newRecord(verificationID, domain.WorkflowStatusApproved, domain.RiskLevelLow, time.Now())
	require.NoError(t, store.Create(ctx, rec))

	found, err := store.FindByVerificationID(ctx, verificationID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
	assert.Equal(t, domain.WorkflowStatusApproved, found.Status)
}

func TestMemoryStoreDuplicateCreate(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rec := newRecord(uuid.New(), domain.WorkflowStatusApproved, domain.RiskLevelLow, time.Now())
	require.NoError(t, store.Create(ctx, rec))

	err := store.Create(ctx, rec)
	assert.ErrorIs(t, err, kycerrors.ErrDuplicateDecision)
}

func TestMemoryStoreFindMissing(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.FindByVerificationID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, kycerrors.ErrDecisionNotFound)
}

func TestMemoryStoreFindReturnsLatestAttempt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	verificationID := uuid.New()
	base := time.Now()

	first := newRecord(verificationID, domain.WorkflowStatusPendingReview, domain.RiskLevelMedium, base)
	second := newRecord(verificationID, domain.WorkflowStatusApproved, domain.RiskLevelLow, base.Add(time.Hour))
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	found, err := store.FindByVerificationID(ctx, verificationID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestMemoryStoreListFiltersAndPaging(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()

	approved := domain.WorkflowStatusApproved
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, newRecord(uuid.New(), approved, domain.RiskLevelLow, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, store.Create(ctx, newRecord(uuid.New(), domain.WorkflowStatusRejected, domain.RiskLevelCritical, base.Add(time.Hour))))

	records, err := store.List(ctx, domain.DecisionFilter{Status: &approved})
	require.NoError(t, err)
	assert.Len(t, records, 3)
	// Newest first
	assert.True(t, records[0].CreatedAt.After(records[1].CreatedAt))

	page, err := store.List(ctx, domain.DecisionFilter{Status: &approved, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	empty, err := store.List(ctx, domain.DecisionFilter{Status: &approved, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	count, err := store.Count(ctx, domain.DecisionFilter{Status: &approved})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestMemoryStoreCopiesOnWriteAndRead(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	verificationID := uuid.New()

	rec := newRecord(verificationID, domain.WorkflowStatusApproved, domain.RiskLevelLow, time.Now())
	require.NoError(t, store.Create(ctx, rec))

	rec.Status = domain.WorkflowStatusRejected

	found, err := store.FindByVerificationID(ctx, verificationID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusApproved, found.Status, "mutating the caller's record must not affect the store")
}
