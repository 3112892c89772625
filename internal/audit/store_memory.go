package audit

import (
	"context"
	"sort"
	"sync"

	"kycflow/internal/domain"
	kycerrors "kycflow/pkg/errors"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.DecisionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*domain.DecisionRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, record *domain.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return kycerrors.ErrDuplicateDecision
	}
	copied := *record
	s.records[record.ID] = &copied
	return nil
}

func (s *MemoryStore) FindByVerificationID(ctx context.Context, verificationID uuid.UUID) (*domain.DecisionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.DecisionRecord
	for _, rec := range s.records {
		if rec.VerificationID != verificationID {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, kycerrors.ErrDecisionNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *MemoryStore) List(ctx context.Context, filter domain.DecisionFilter) ([]*domain.DecisionRecord, error) {
	s.mu.RLock()
	matched := make([]*domain.DecisionRecord, 0, len(s.records))
	for _, rec := range s.records {
		if matches(rec, filter) {
			copied := *rec
			matched = append(matched, &copied)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Count(ctx context.Context, filter domain.DecisionFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, rec := range s.records {
		if matches(rec, filter) {
			count++
		}
	}
	return count, nil
}

func matches(rec *domain.DecisionRecord, filter domain.DecisionFilter) bool {
	if filter.VerificationID != nil && rec.VerificationID != *filter.VerificationID {
		return false
	}
	if filter.Status != nil && rec.Status != *filter.Status {
		return false
	}
	if filter.RiskLevel != nil && rec.RiskLevel != *filter.RiskLevel {
		return false
	}
	if filter.From != nil && rec.CompletedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && rec.CompletedAt.After(*filter.To) {
		return false
	}
	return true
}
