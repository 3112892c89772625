// Package domain defines the core business entities for the KYC verification engine.
package domain

import (
	"encoding/json"
	"time"
)

// ==============================================================================
// ENUMS & STATUS TYPES
// ==============================================================================

// DocumentType represents types of identity and address-proof documents.
type DocumentType string

const (
	DocumentTypePassport        DocumentType = "passport"
	DocumentTypeDriversLicense  DocumentType = "drivers_license"
	DocumentTypeNationalID      DocumentType = "national_id"
	DocumentTypeResidencePermit DocumentType = "residence_permit"
	DocumentTypeUtilityBill     DocumentType = "utility_bill"
	DocumentTypeBankStatement   DocumentType = "bank_statement"
	DocumentTypeUnknown         DocumentType = "unknown"
)

// IdentityDocumentTypes lists the types accepted as a primary identity document.
var IdentityDocumentTypes = []DocumentType{
	DocumentTypePassport,
	DocumentTypeDriversLicense,
	DocumentTypeNationalID,
	DocumentTypeResidencePermit,
}

// IsIdentityDocument reports whether t is an accepted primary identity document type.
func (t DocumentType) IsIdentityDocument() bool {
	for _, dt := range IdentityDocumentTypes {
		if t == dt {
			return true
		}
	}
	return false
}

// RequiresBackImage reports whether the document type needs a reverse-side scan.
func (t DocumentType) RequiresBackImage() bool {
	switch t {
	case DocumentTypeDriversLicense, DocumentTypeNationalID, DocumentTypeResidencePermit:
		return true
	}
	return false
}

// WorkflowStatus represents the terminal or advisory status of a verification run.
type WorkflowStatus string

const (
	WorkflowStatusPending       WorkflowStatus = "pending"
	WorkflowStatusInProgress    WorkflowStatus = "in_progress"
	WorkflowStatusApproved      WorkflowStatus = "approved"
	WorkflowStatusRejected      WorkflowStatus = "rejected"
	WorkflowStatusPendingReview WorkflowStatus = "pending_review"
	WorkflowStatusRequiresRetry WorkflowStatus = "requires_retry"
	WorkflowStatusFailed        WorkflowStatus = "failed"
	WorkflowStatusAbandoned     WorkflowStatus = "abandoned"
)

// IsTerminal reports whether no further automated processing will occur.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusApproved, WorkflowStatusRejected, WorkflowStatusAbandoned:
		return true
	}
	return false
}

// StepStatus represents the state of a single pipeline stage.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// CanTransitionTo enforces the monotonic step lifecycle:
// pending -> in_progress -> {completed|failed}. Skipped is terminal and is
// only assigned at initialization.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusInProgress
	case StepStatusInProgress:
		return next == StepStatusCompleted || next == StepStatusFailed
	}
	return false
}

// StepName identifies a pipeline stage.
type StepName string

const (
	StepOCRExtraction        StepName = "ocr_extraction"
	StepDocumentVerification StepName = "document_verification"
	StepFaceMatching         StepName = "face_matching"
	StepLivenessDetection    StepName = "liveness_detection"
	StepAddressVerification  StepName = "address_verification"
	StepComplianceChecks     StepName = "compliance_checks"
	StepRiskAssessment       StepName = "risk_assessment"
	StepFinalReview          StepName = "final_review"
)

// StepOrder is the fixed execution order of the pipeline.
var StepOrder = []StepName{
	StepOCRExtraction,
	StepDocumentVerification,
	StepFaceMatching,
	StepLivenessDetection,
	StepAddressVerification,
	StepComplianceChecks,
	StepRiskAssessment,
	StepFinalReview,
}

// RiskLevel buckets the aggregated risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// SpoofingRisk is the categorical spoofing exposure reported by liveness detection.
type SpoofingRisk string

const (
	SpoofingRiskLow    SpoofingRisk = "low"
	SpoofingRiskMedium SpoofingRisk = "medium"
	SpoofingRiskHigh   SpoofingRisk = "high"
)

// ==============================================================================
// EXTRACTION MODELS
// ==============================================================================

// Address is a structured postal address extracted from or claimed for a document.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// ExtractedDocumentData holds the structured fields produced by OCR extraction.
// Immutable once produced for a given attempt.
type ExtractedDocumentData struct {
	FirstName        string             `json:"first_name"`
	LastName         string             `json:"last_name"`
	MiddleName       string             `json:"middle_name,omitempty"`
	DateOfBirth      *time.Time         `json:"date_of_birth,omitempty"`
	DocumentNumber   string             `json:"document_number"`
	DocumentType     DocumentType       `json:"document_type"`
	Nationality      string             `json:"nationality,omitempty"`
	IssuingCountry   string             `json:"issuing_country,omitempty"`
	IssuingAuthority string             `json:"issuing_authority,omitempty"`
	IssueDate        *time.Time         `json:"issue_date,omitempty"`
	ExpiryDate       *time.Time         `json:"expiry_date,omitempty"`
	Address          *Address           `json:"address,omitempty"`
	FieldConfidence  map[string]float64 `json:"field_confidence,omitempty"`
}

// FullName joins the extracted name parts.
func (d *ExtractedDocumentData) FullName() string {
	name := d.FirstName
	if d.MiddleName != "" {
		name += " " + d.MiddleName
	}
	if d.LastName != "" {
		name += " " + d.LastName
	}
	return name
}

// Age returns the subject's age in whole years at the given time, or -1 when
// the date of birth is unknown.
func (d *ExtractedDocumentData) Age(now time.Time) int {
	if d.DateOfBirth == nil {
		return -1
	}
	dob := *d.DateOfBirth
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	return years
}

// OCRResult is the outcome of one extraction attempt on one document.
type OCRResult struct {
	Success              bool                   `json:"success"`
	Confidence           float64                `json:"confidence"` // 0-100
	ProcessingTime       time.Duration          `json:"-"`
	ExtractedData        *ExtractedDocumentData `json:"extracted_data,omitempty"`
	Errors               []string               `json:"errors,omitempty"`
	RequiresManualReview bool                   `json:"requires_manual_review"`
}

// MarshalJSON emits the processing time in milliseconds, matching the
// processing_time_ms field name.
func (r OCRResult) MarshalJSON() ([]byte, error) {
	type alias OCRResult
	return json.Marshal(struct {
		alias
		ProcessingTimeMS int64 `json:"processing_time_ms"`
	}{alias(r), r.ProcessingTime.Milliseconds()})
}

func (r *OCRResult) UnmarshalJSON(data []byte) error {
	type alias OCRResult
	aux := struct {
		*alias
		ProcessingTimeMS int64 `json:"processing_time_ms"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.ProcessingTime = time.Duration(aux.ProcessingTimeMS) * time.Millisecond
	return nil
}

// ValidationResult is the extraction gate outcome.
type ValidationResult struct {
	IsValid bool     `json:"is_valid"`
	Issues  []string `json:"issues,omitempty"`
}

// ==============================================================================
// VERIFICATION CLUSTER MODELS
// ==============================================================================

// SecurityFeature records whether one expected document security feature was found.
type SecurityFeature struct {
	Name     string `json:"name"`
	Detected bool   `json:"detected"`
}

// TamperingCheck flags manipulation signals on the document image.
type TamperingCheck struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
}

// AuthenticityResult is the document-authenticity check outcome.
// Tampering detection forces IsAuthentic to false.
type AuthenticityResult struct {
	IsAuthentic      bool              `json:"is_authentic"`
	Confidence       float64           `json:"confidence"`
	SecurityFeatures []SecurityFeature `json:"security_features,omitempty"`
	Tampering        TamperingCheck    `json:"tampering"`
	DocumentAgeValid bool              `json:"document_age_valid"`
}

// FaceQuality carries face-detection quality metrics for a biometric comparison.
type FaceQuality struct {
	FaceDetected bool    `json:"face_detected"`
	Brightness   float64 `json:"brightness"`
	Sharpness    float64 `json:"sharpness"`
}

// FaceMatchResult is the selfie-to-document biometric comparison outcome.
type FaceMatchResult struct {
	Match         bool        `json:"match"`
	Confidence    float64     `json:"confidence"`
	LivenessScore float64     `json:"liveness_score"`
	Quality       FaceQuality `json:"quality"`
	Issues        []string    `json:"issues,omitempty"`
}

// ChallengeResult is one liveness challenge outcome.
type ChallengeResult struct {
	Name       string  `json:"name"`
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
}

// LivenessResult is the liveness detection outcome.
type LivenessResult struct {
	IsLive       bool              `json:"is_live"`
	Confidence   float64           `json:"confidence"`
	Challenges   []ChallengeResult `json:"challenges,omitempty"`
	SpoofingRisk SpoofingRisk      `json:"spoofing_risk"`
}

// LivenessCapture is the optional capture sequence evaluated for liveness.
type LivenessCapture struct {
	Frames     [][]byte `json:"-"`
	Challenges []string `json:"challenges,omitempty"`
}

// AddressProofResult is the secondary-document address verification outcome.
type AddressProofResult struct {
	Verified     bool         `json:"verified"`
	Confidence   float64      `json:"confidence"`
	DetectedType DocumentType `json:"detected_type"`
	AddressMatch bool         `json:"address_match"`
	Issues       []string     `json:"issues,omitempty"`
}

// ==============================================================================
// COMPLIANCE & RISK MODELS
// ==============================================================================

// ComplianceCheck is a single watchlist screening outcome.
type ComplianceCheck struct {
	Passed       bool     `json:"passed"`
	MatchedLists []string `json:"matched_lists,omitempty"`
	Details      string   `json:"details,omitempty"`
}

// ComplianceResult aggregates AML, sanctions, and PEP screening.
// PEP exposure alone never fails overall compliance; it feeds risk scoring.
type ComplianceResult struct {
	AMLCheck          ComplianceCheck `json:"aml_check"`
	SanctionsCheck    ComplianceCheck `json:"sanctions_check"`
	PEPCheck          ComplianceCheck `json:"pep_check"`
	OverallCompliance bool            `json:"overall_compliance"`
	ScreenedAt        time.Time       `json:"screened_at"`
}

// RiskFactor records the points one factor contributed to the risk score.
type RiskFactor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// RiskAssessment is the weighted risk outcome; lower scores are better.
type RiskAssessment struct {
	Score          int          `json:"score"` // 0-100
	Level          RiskLevel    `json:"level"`
	Recommendation string       `json:"recommendation"`
	Factors        []RiskFactor `json:"factors,omitempty"`
}

// VerificationResult is the composite outcome of one workflow attempt.
// Immutable once produced.
type VerificationResult struct {
	Authenticity         *AuthenticityResult `json:"authenticity,omitempty"`
	FaceMatch            *FaceMatchResult    `json:"face_match,omitempty"`
	Liveness             *LivenessResult     `json:"liveness,omitempty"`
	AddressProof         *AddressProofResult `json:"address_proof,omitempty"`
	Compliance           *ComplianceResult   `json:"compliance,omitempty"`
	Risk                 RiskAssessment      `json:"risk"`
	OverallStatus        WorkflowStatus      `json:"overall_status"`
	RequiresManualReview bool                `json:"requires_manual_review"`
	ReviewNotes          []string            `json:"review_notes,omitempty"`
}

// ==============================================================================
// INPUT MODELS
// ==============================================================================

// DocumentInput is one submitted identity document with its image payloads.
type DocumentInput struct {
	Type       DocumentType `json:"type"`
	FrontImage []byte       `json:"-"`
	BackImage  []byte       `json:"-"`
}

// AddressClaim pairs the secondary proof document with the address the user claims.
type AddressClaim struct {
	Document DocumentInput `json:"document"`
	Claimed  Address       `json:"claimed"`
}
