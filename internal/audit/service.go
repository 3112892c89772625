// internal/audit/service.go
package audit

import (
	"context"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kycflow/internal/domain"
	kycerrors "kycflow/pkg/errors"
	"kycflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/blake2b"
)

// Store persists decision records.
type Store interface {
	Create(ctx context.Context, record *domain.DecisionRecord) error
	FindByVerificationID(ctx context.Context, verificationID uuid.UUID) (*domain.DecisionRecord, error)
	List(ctx context.Context, filter domain.DecisionFilter) ([]*domain.DecisionRecord, error)
	Count(ctx context.Context, filter domain.DecisionFilter) (int, error)
}

// ResultCache holds the latest full workflow result per verification for
// read-back by the API.
type ResultCache interface {
	SetResult(ctx context.Context, result *domain.KYCWorkflowResult) error
	GetResult(ctx context.Context, verificationID uuid.UUID) (*domain.KYCWorkflowResult, error)
}

// Recorder emits one decision record per completed workflow run. Document
// images never reach the store; only their fingerprints do.
type Recorder struct {
	store  Store
	cache  ResultCache
	logger logger.Logger
}

func NewRecorder(store Store, cache ResultCache, log logger.Logger) *Recorder {
	return &Recorder{store: store, cache: cache, logger: log}
}

// Record persists the decision row and caches the full result.
func (r *Recorder) Record(ctx context.Context, result *domain.KYCWorkflowResult, documents []domain.DocumentInput) error {
	record := buildRecord(result, documents)

	if err := r.store.Create(ctx, record); err != nil {
		return kycerrors.Wrap(err, "failed to store decision record")
	}

	if r.cache != nil {
		if err := r.cache.SetResult(ctx, result); err != nil {
			// Cache is best effort; the durable record already landed.
			r.logger.Warn("Failed to cache verification result", map[string]interface{}{
				"verification_id": result.VerificationID,
				"error":           err.Error(),
			})
		}
	}

	r.logger.Info("Decision record stored", map[string]interface{}{
		"verification_id": record.VerificationID,
		"status":          record.Status,
		"risk_level":      record.RiskLevel,
	})
	return nil
}

// Retrieve returns decision records matching the filter.
func (r *Recorder) Retrieve(ctx context.Context, filter domain.DecisionFilter) ([]*domain.DecisionRecord, error) {
	return r.store.List(ctx, filter)
}

// Decision returns the stored decision record for one verification.
func (r *Recorder) Decision(ctx context.Context, verificationID uuid.UUID) (*domain.DecisionRecord, error) {
	return r.store.FindByVerificationID(ctx, verificationID)
}

// CachedResult returns the full workflow result when the cache still holds it.
func (r *Recorder) CachedResult(ctx context.Context, verificationID uuid.UUID) (*domain.KYCWorkflowResult, error) {
	if r.cache == nil {
		return nil, kycerrors.ErrResultNotCached
	}
	return r.cache.GetResult(ctx, verificationID)
}

// Export renders matching records as "json" or "csv".
func (r *Recorder) Export(ctx context.Context, filter domain.DecisionFilter, format string) ([]byte, error) {
	records, err := r.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(format) {
	case "json", "":
		return json.MarshalIndent(records, "", "  ")
	case "csv":
		return exportCSV(records)
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

func exportCSV(records []*domain.DecisionRecord) ([]byte, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)

	header := []string{"verification_id", "subject_name", "document_type", "status", "risk_score", "risk_level", "overall_compliance", "requires_manual_review", "retry_count", "completed_at"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, rec := range records {
		row := []string{
			rec.VerificationID.String(),
			rec.SubjectName,
			string(rec.DocumentType),
			string(rec.Status),
			rec.RiskScore.String(),
			string(rec.RiskLevel),
			strconv.FormatBool(rec.OverallCompliance),
			strconv.FormatBool(rec.RequiresManualReview),
			strconv.Itoa(rec.RetryCount),
			rec.CompletedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// buildRecord flattens a workflow result into its audit row.
func buildRecord(result *domain.KYCWorkflowResult, documents []domain.DocumentInput) *domain.DecisionRecord {
	record := &domain.DecisionRecord{
		ID:              uuid.New(),
		VerificationID:  result.VerificationID,
		Status:          result.Status,
		RetryCount:      result.RetryCount,
		DocumentHashes:  fingerprints(documents),
		Recommendations: result.Recommendations,
		Report:          result.Report,
		StartedAt:       result.StartedAt,
		CompletedAt:     result.CompletedAt,
		CreatedAt:       time.Now(),
	}

	if data := result.ExtractedData; data != nil {
		record.SubjectName = data.FullName()
		record.DocumentNumber = data.DocumentNumber
		record.DocumentType = data.DocumentType
	}

	if len(result.OCRResults) > 0 {
		record.OCRConfidence = decimal.NewFromFloat(result.OCRResults[0].Confidence)
	}

	if v := result.Verification; v != nil {
		record.RiskScore = decimal.NewFromInt(int64(v.Risk.Score))
		record.RiskLevel = v.Risk.Level
		record.RequiresManualReview = v.RequiresManualReview
		record.AuthenticityPassed = v.Authenticity != nil && v.Authenticity.IsAuthentic
		record.FaceMatchPassed = v.FaceMatch != nil && v.FaceMatch.Match
		record.LivenessPassed = v.Liveness != nil && v.Liveness.IsLive
		record.AddressProofPassed = v.AddressProof != nil && v.AddressProof.Verified
		if v.Compliance != nil {
			record.OverallCompliance = v.Compliance.OverallCompliance
		}
	}

	return record
}

// fingerprints hashes each document's image payloads with BLAKE2b-256.
func fingerprints(documents []domain.DocumentInput) []string {
	hashes := make([]string, 0, len(documents))
	for _, doc := range documents {
		h, err := blake2b.New256(nil)
		if err != nil {
			continue
		}
		h.Write(doc.FrontImage)
		h.Write(doc.BackImage)
		hashes = append(hashes, hex.EncodeToString(h.Sum(nil)))
	}
	return hashes
}
