package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WorkflowStep tracks one pipeline stage for one workflow run.
type WorkflowStep struct {
	Name        StepName      `json:"name"`
	Status      StepStatus    `json:"status"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"-"`
	Result      interface{}   `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// MarshalJSON emits the step duration in milliseconds, matching the
// duration_ms field name.
func (s WorkflowStep) MarshalJSON() ([]byte, error) {
	type alias WorkflowStep
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"duration_ms"`
	}{alias(s), s.Duration.Milliseconds()})
}

func (s *WorkflowStep) UnmarshalJSON(data []byte) error {
	type alias WorkflowStep
	aux := struct {
		*alias
		DurationMS int64 `json:"duration_ms"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.Duration = time.Duration(aux.DurationMS) * time.Millisecond
	return nil
}

// WorkflowError is an append-only error entry for a run. Recoverable errors
// are eligible for retry; non-recoverable errors force workflow failure.
type WorkflowError struct {
	Step        StepName  `json:"step"`
	Code        string    `json:"code"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	Recoverable bool      `json:"recoverable"`
}

// Workflow error codes.
const (
	ErrCodeExtractionFailed    = "EXTRACTION_FAILED"
	ErrCodeValidationFailed    = "VALIDATION_FAILED"
	ErrCodeVerificationFailed  = "VERIFICATION_FAILED"
	ErrCodeComplianceHit       = "COMPLIANCE_HIT"
	ErrCodeInfrastructure      = "INFRASTRUCTURE_FAILURE"
	ErrCodeRetryBudgetExceeded = "RETRY_BUDGET_EXCEEDED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// KYCWorkflowResult is the top-level record returned to the caller for one attempt.
type KYCWorkflowResult struct {
	Success         bool                   `json:"success"`
	Status          WorkflowStatus         `json:"status"`
	VerificationID  uuid.UUID              `json:"verification_id"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     time.Time              `json:"completed_at"`
	Steps           []WorkflowStep         `json:"steps"`
	OCRResults      []OCRResult            `json:"ocr_results,omitempty"`
	ExtractedData   *ExtractedDocumentData `json:"extracted_data,omitempty"`
	Verification    *VerificationResult    `json:"verification,omitempty"`
	Report          string                 `json:"report,omitempty"`
	RetryCount      int                    `json:"retry_count"`
	Errors          []WorkflowError        `json:"errors,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	RequiresRetry   bool                   `json:"requires_retry"`
}

// FailedSteps returns the names of steps that ended in failure.
func (r *KYCWorkflowResult) FailedSteps() []StepName {
	var failed []StepName
	for _, s := range r.Steps {
		if s.Status == StepStatusFailed {
			failed = append(failed, s.Name)
		}
	}
	return failed
}

// HasNonRecoverableError reports whether any recorded error rules out a retry.
func (r *KYCWorkflowResult) HasNonRecoverableError() bool {
	for _, e := range r.Errors {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// RetryContext carries the bookkeeping a retry attempt needs from the previous
// attempt. It is constructed explicitly rather than recovered by inspecting
// the previous result's shape.
type RetryContext struct {
	VerificationID uuid.UUID      `json:"verification_id"`
	RetryCount     int            `json:"retry_count"`
	FailedSteps    []StepName     `json:"failed_steps"`
	PreviousStatus WorkflowStatus `json:"previous_status"`
}

// RetryContextFrom derives a RetryContext from a completed attempt.
func RetryContextFrom(prev *KYCWorkflowResult) RetryContext {
	return RetryContext{
		VerificationID: prev.VerificationID,
		RetryCount:     prev.RetryCount,
		FailedSteps:    prev.FailedSteps(),
		PreviousStatus: prev.Status,
	}
}
