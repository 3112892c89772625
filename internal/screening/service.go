// internal/screening/service.go
package screening

import (
	"context"
	"strings"
	"time"

	"kycflow/internal/domain"
	"kycflow/pkg/config"
	kycerrors "kycflow/pkg/errors"
	"kycflow/pkg/logger"
)

// IdentityAttributes are the fields screened against compliance lists.
type IdentityAttributes struct {
	FullName    string     `json:"full_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Nationality string     `json:"nationality,omitempty"`
}

// DataSource is the pluggable external compliance data provider. Each method
// returns the names of the lists the subject matched; an error indicates the
// provider itself is unreachable, not a hit.
type DataSource interface {
	WatchlistHits(ctx context.Context, attrs IdentityAttributes) ([]string, error)
	SanctionsHits(ctx context.Context, attrs IdentityAttributes) ([]string, error)
	PEPHits(ctx context.Context, attrs IdentityAttributes) ([]string, error)
}

// Service runs AML watchlist, sanctions, and PEP screening.
type Service interface {
	Screen(ctx context.Context, attrs IdentityAttributes) (*domain.ComplianceResult, error)
}

// ScreeningService screens identities against a DataSource. A sanctions or
// watchlist hit fails overall compliance; PEP status is carried into risk
// scoring only.
type ScreeningService struct {
	source DataSource
	config *config.Config
	logger logger.Logger
	now    func() time.Time
}

func NewScreeningService(source DataSource, cfg *config.Config, log logger.Logger) *ScreeningService {
	return &ScreeningService{
		source: source,
		config: cfg,
		logger: log,
		now:    time.Now,
	}
}

func (s *ScreeningService) Screen(ctx context.Context, attrs IdentityAttributes) (*domain.ComplianceResult, error) {
	amlHits, err := s.source.WatchlistHits(ctx, attrs)
	if err != nil {
		return nil, kycerrors.Wrap(err, "aml watchlist lookup failed")
	}

	sanctionsHits, err := s.source.SanctionsHits(ctx, attrs)
	if err != nil {
		return nil, kycerrors.Wrap(err, "sanctions list lookup failed")
	}

	pepHits, err := s.source.PEPHits(ctx, attrs)
	if err != nil {
		return nil, kycerrors.Wrap(err, "pep register lookup failed")
	}

	result := &domain.ComplianceResult{
		AMLCheck:       checkFromHits(amlHits, "no watchlist exposure"),
		SanctionsCheck: checkFromHits(sanctionsHits, "no sanctions exposure"),
		PEPCheck:       checkFromHits(pepHits, "not politically exposed"),
		ScreenedAt:     s.now(),
	}
	result.OverallCompliance = result.AMLCheck.Passed && result.SanctionsCheck.Passed

	s.logger.Info("Compliance screening completed", map[string]interface{}{
		"aml_passed":         result.AMLCheck.Passed,
		"sanctions_passed":   result.SanctionsCheck.Passed,
		"pep_hit":            !result.PEPCheck.Passed,
		"overall_compliance": result.OverallCompliance,
	})
	return result, nil
}

func checkFromHits(hits []string, cleanDetail string) domain.ComplianceCheck {
	if len(hits) == 0 {
		return domain.ComplianceCheck{Passed: true, Details: cleanDetail}
	}
	return domain.ComplianceCheck{
		Passed:       false,
		MatchedLists: hits,
		Details:      "matched " + strings.Join(hits, ", "),
	}
}

// ==============================================================================
// STATIC DATA SOURCE (reference behavior: deterministic pass unless configured)
// ==============================================================================

// StaticDataSource screens against fixed in-memory lists keyed by normalized name.
type StaticDataSource struct {
	watchlist map[string][]string
	sanctions map[string][]string
	pep       map[string][]string
}

// NewStaticDataSource builds a source from name -> list-name entries.
func NewStaticDataSource(watchlist, sanctions, pep map[string][]string) *StaticDataSource {
	return &StaticDataSource{
		watchlist: normalizeKeys(watchlist),
		sanctions: normalizeKeys(sanctions),
		pep:       normalizeKeys(pep),
	}
}

// NewEmptyDataSource returns a source with no entries; every subject passes.
func NewEmptyDataSource() *StaticDataSource {
	return NewStaticDataSource(nil, nil, nil)
}

func (s *StaticDataSource) WatchlistHits(ctx context.Context, attrs IdentityAttributes) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.watchlist[normalizeName(attrs.FullName)], nil
}

func (s *StaticDataSource) SanctionsHits(ctx context.Context, attrs IdentityAttributes) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.sanctions[normalizeName(attrs.FullName)], nil
}

func (s *StaticDataSource) PEPHits(ctx context.Context, attrs IdentityAttributes) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.pep[normalizeName(attrs.FullName)], nil
}

func normalizeKeys(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[normalizeName(k)] = v
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
