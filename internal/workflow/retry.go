package workflow

import (
	"kycflow/internal/domain"
)

// carryOver holds the prior attempt's reusable results for a retry. A retry
// re-initializes step state for previously failed steps only; everything a
// prior attempt completed is carried forward and not executed again. Nil
// members mean the step must run.
type carryOver struct {
	ocrResults   []domain.OCRResult
	authenticity *domain.AuthenticityResult
	faceMatch    *domain.FaceMatchResult
	liveness     *domain.LivenessResult
	addressProof *domain.AddressProofResult
	compliance   *domain.ComplianceResult
}

// carryFromPrior assembles the carry-over from the prior attempt's final step
// snapshot. Returns nil when no snapshot survives (the retry then runs every
// step, as a first attempt would).
func (s *Service) carryFromPrior(rc domain.RetryContext) *carryOver {
	steps, ok := s.tracker.finalSteps(rc.VerificationID)
	if !ok {
		return nil
	}

	rerun := make(map[domain.StepName]bool, len(rc.FailedSteps))
	for _, name := range rc.FailedSteps {
		rerun[name] = true
	}

	// An extraction flagged for manual review is what the retry exists to
	// replace: re-extract from the resubmitted documents.
	for _, st := range steps {
		if st.Name != domain.StepOCRExtraction || st.Status != domain.StepStatusCompleted {
			continue
		}
		if results, ok := st.Result.([]domain.OCRResult); ok {
			for _, res := range results {
				if res.RequiresManualReview {
					rerun[domain.StepOCRExtraction] = true
				}
			}
		}
	}

	// Authenticity and compliance consume the extracted data, so a fresh
	// extraction invalidates their prior results.
	if rerun[domain.StepOCRExtraction] {
		rerun[domain.StepDocumentVerification] = true
		rerun[domain.StepComplianceChecks] = true
	}

	carry := &carryOver{}
	carried := false
	for _, st := range steps {
		if st.Status != domain.StepStatusCompleted || rerun[st.Name] || st.Result == nil {
			continue
		}
		switch st.Name {
		case domain.StepOCRExtraction:
			if results, ok := st.Result.([]domain.OCRResult); ok {
				carry.ocrResults = results
				carried = true
			}
		case domain.StepDocumentVerification:
			if result, ok := st.Result.(*domain.AuthenticityResult); ok {
				carry.authenticity = result
				carried = true
			}
		case domain.StepFaceMatching:
			if result, ok := st.Result.(*domain.FaceMatchResult); ok {
				carry.faceMatch = result
				carried = true
			}
		case domain.StepLivenessDetection:
			if result, ok := st.Result.(*domain.LivenessResult); ok {
				carry.liveness = result
				carried = true
			}
		case domain.StepAddressVerification:
			if result, ok := st.Result.(*domain.AddressProofResult); ok {
				carry.addressProof = result
				carried = true
			}
		case domain.StepComplianceChecks:
			if result, ok := st.Result.(*domain.ComplianceResult); ok {
				carry.compliance = result
				carried = true
			}
		}
	}
	if !carried {
		return nil
	}
	return carry
}
