// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// Workflow errors
	ErrWorkflowNotFound      = errors.New("verification workflow not found")
	ErrWorkflowAborted       = errors.New("verification workflow aborted")
	ErrRetryBudgetExhausted  = errors.New("retry budget exhausted, manual review required")
	ErrNoDocumentsSubmitted  = errors.New("no identity documents submitted")
	ErrNoUsableExtraction    = errors.New("no submitted document could be extracted")
	ErrWorkflowAlreadyFinal  = errors.New("workflow already reached a terminal status")
	ErrVerificationDisabled  = errors.New("verification step disabled by configuration")
	ErrInvalidRetryContext   = errors.New("invalid retry context")

	// Extraction errors
	ErrExtractionFailed     = errors.New("document extraction failed")
	ErrUnreadableDocument   = errors.New("document image unreadable")
	ErrInvalidDocumentType  = errors.New("invalid document type")
	ErrEmptyImagePayload    = errors.New("empty document image payload")
	ErrDocumentExpired      = errors.New("document expired")

	// Screening errors
	ErrScreeningUnavailable = errors.New("compliance data source unavailable")
	ErrSanctionMatch        = errors.New("sanctions list match detected")
	ErrWatchlistMatch       = errors.New("aml watchlist match detected")
	ErrPEPDetected          = errors.New("politically exposed person detected")

	// Persistence errors
	ErrDecisionNotFound  = errors.New("decision record not found")
	ErrResultNotCached   = errors.New("verification result not cached")
	ErrDuplicateDecision = errors.New("decision record already exists")
)

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// New creates a new error from a message. Re-exported so callers only need
// this package.
func New(message string) error {
	return errors.New(message)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
