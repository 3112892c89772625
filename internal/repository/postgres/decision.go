package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"kycflow/internal/domain"
	kycerrors "kycflow/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// DecisionRepository implements decision-record persistence.
type DecisionRepository struct {
	db *sqlx.DB
}

// NewDecisionRepository creates a new DecisionRepository.
func NewDecisionRepository(db *sqlx.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Create inserts a new decision record.
func (r *DecisionRepository) Create(ctx context.Context, record *domain.DecisionRecord) error {
	query := `
		INSERT INTO decision_records (
			id, verification_id, subject_name, document_number, document_type,
			status, risk_score, risk_level, ocr_confidence,
			authenticity_passed, face_match_passed, liveness_passed,
			address_proof_passed, overall_compliance, requires_manual_review,
			retry_count, document_hashes, recommendations, report,
			started_at, completed_at, created_at
		) VALUES (
			:id, :verification_id, :subject_name, :document_number, :document_type,
			:status, :risk_score, :risk_level, :ocr_confidence,
			:authenticity_passed, :face_match_passed, :liveness_passed,
			:address_proof_passed, :overall_compliance, :requires_manual_review,
			:retry_count, :document_hashes, :recommendations, :report,
			:started_at, :completed_at, :created_at
		)
	`

	_, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return kycerrors.Wrap(err, "failed to create decision record")
	}

	return nil
}

// FindByVerificationID returns the latest decision record for a verification.
func (r *DecisionRepository) FindByVerificationID(ctx context.Context, verificationID uuid.UUID) (*domain.DecisionRecord, error) {
	var record domain.DecisionRecord
	query := `
		SELECT *
		FROM decision_records
		WHERE verification_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, &record, query, verificationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kycerrors.ErrDecisionNotFound
	}
	if err != nil {
		return nil, kycerrors.Wrap(err, "failed to find decision record")
	}
	return &record, nil
}

// List returns decision records matching the filter, newest first.
func (r *DecisionRepository) List(ctx context.Context, filter domain.DecisionFilter) ([]*domain.DecisionRecord, error) {
	where, args := buildDecisionFilter(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT *
		FROM decision_records
		%s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, where, limit, filter.Offset)

	var records []*domain.DecisionRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, kycerrors.Wrap(err, "failed to list decision records")
	}
	return records, nil
}

// Count returns the number of decision records matching the filter.
func (r *DecisionRepository) Count(ctx context.Context, filter domain.DecisionFilter) (int, error) {
	where, args := buildDecisionFilter(filter)

	var total int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM decision_records %s`, where)
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, kycerrors.Wrap(err, "failed to count decision records")
	}
	return total, nil
}

func buildDecisionFilter(filter domain.DecisionFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	add := func(clause string, value interface{}) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.VerificationID != nil {
		add("verification_id = $%d", *filter.VerificationID)
	}
	if filter.Status != nil {
		add("status = $%d", *filter.Status)
	}
	if filter.RiskLevel != nil {
		add("risk_level = $%d", *filter.RiskLevel)
	}
	if filter.From != nil {
		add("completed_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("completed_at <= $%d", *filter.To)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
