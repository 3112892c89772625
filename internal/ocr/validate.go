package ocr

import (
	"fmt"
	"time"

	"kycflow/internal/domain"
)

// Validation thresholds for gated extraction results.
const (
	MinOverallConfidence = 70.0
	MinFieldConfidence   = 60.0
)

// Validate gates an extraction result before any verification step consumes it.
// A failed validation on an unsuccessful extraction aborts the pipeline; a
// failed validation on a successful extraction only surfaces issues in the
// final report.
func Validate(result *domain.OCRResult, now time.Time) domain.ValidationResult {
	var issues []string

	if result == nil || !result.Success {
		return domain.ValidationResult{
			IsValid: false,
			Issues:  []string{"document extraction did not succeed"},
		}
	}

	data := result.ExtractedData
	if data == nil {
		return domain.ValidationResult{
			IsValid: false,
			Issues:  []string{"extraction succeeded but produced no data"},
		}
	}

	if data.DocumentNumber == "" {
		issues = append(issues, "document number missing")
	}
	if data.FirstName == "" && data.LastName == "" {
		issues = append(issues, "name missing")
	}
	if data.DateOfBirth == nil {
		issues = append(issues, "date of birth missing")
	}
	if data.ExpiryDate == nil {
		issues = append(issues, "expiry date missing")
	} else if data.ExpiryDate.Before(now) {
		issues = append(issues, fmt.Sprintf("document expired on %s", data.ExpiryDate.Format("2006-01-02")))
	}

	if result.Confidence < MinOverallConfidence {
		issues = append(issues, fmt.Sprintf("overall extraction confidence %.0f below %.0f", result.Confidence, MinOverallConfidence))
	}
	for field, conf := range data.FieldConfidence {
		if conf < MinFieldConfidence {
			issues = append(issues, fmt.Sprintf("field %q confidence %.0f below %.0f", field, conf, MinFieldConfidence))
		}
	}

	return domain.ValidationResult{
		IsValid: len(issues) == 0,
		Issues:  issues,
	}
}
