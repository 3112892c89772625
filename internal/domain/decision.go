package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// DecisionRecord is the audit row emitted once per completed workflow run.
// Document images are never persisted; only their fingerprints are.
type DecisionRecord struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	VerificationID       uuid.UUID       `json:"verification_id" db:"verification_id"`
	SubjectName          string          `json:"subject_name" db:"subject_name"`
	DocumentNumber       string          `json:"document_number" db:"document_number"`
	DocumentType         DocumentType    `json:"document_type" db:"document_type"`
	Status               WorkflowStatus  `json:"status" db:"status"`
	RiskScore            decimal.Decimal `json:"risk_score" db:"risk_score"`
	RiskLevel            RiskLevel       `json:"risk_level" db:"risk_level"`
	OCRConfidence        decimal.Decimal `json:"ocr_confidence" db:"ocr_confidence"`
	AuthenticityPassed   bool            `json:"authenticity_passed" db:"authenticity_passed"`
	FaceMatchPassed      bool            `json:"face_match_passed" db:"face_match_passed"`
	LivenessPassed       bool            `json:"liveness_passed" db:"liveness_passed"`
	AddressProofPassed   bool            `json:"address_proof_passed" db:"address_proof_passed"`
	OverallCompliance    bool            `json:"overall_compliance" db:"overall_compliance"`
	RequiresManualReview bool            `json:"requires_manual_review" db:"requires_manual_review"`
	RetryCount           int             `json:"retry_count" db:"retry_count"`
	DocumentHashes       pq.StringArray  `json:"document_hashes" db:"document_hashes"`
	Recommendations      pq.StringArray  `json:"recommendations" db:"recommendations"`
	Report               string          `json:"report" db:"report"`
	StartedAt            time.Time       `json:"started_at" db:"started_at"`
	CompletedAt          time.Time       `json:"completed_at" db:"completed_at"`
	CreatedAt            time.Time       `json:"created_at" db:"created_at"`
}

// DecisionFilter narrows decision-record queries.
type DecisionFilter struct {
	VerificationID *uuid.UUID      `json:"verification_id,omitempty"`
	Status         *WorkflowStatus `json:"status,omitempty"`
	RiskLevel      *RiskLevel      `json:"risk_level,omitempty"`
	From           *time.Time      `json:"from,omitempty"`
	To             *time.Time      `json:"to,omitempty"`
	Limit          int             `json:"limit,omitempty"`
	Offset         int             `json:"offset,omitempty"`
}
