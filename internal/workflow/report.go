package workflow

import (
	"fmt"
	"strings"

	"kycflow/internal/domain"
)

// ConfidenceReviewFloor is the confidence under which an otherwise passing
// authenticity or face-match result still routes to non-blocking review.
const ConfidenceReviewFloor = 80.0

// deriveFinalStatus applies the decision ladder, highest priority first.
// The overall status is always a function of the most severe outcome and is
// never set independently.
func deriveFinalStatus(out *clusterOutcome, riskLevel domain.RiskLevel) (domain.WorkflowStatus, bool) {
	rejected := (out.authenticity != nil && !out.authenticity.IsAuthentic) ||
		(out.faceMatch != nil && !out.faceMatch.Match) ||
		(out.liveness != nil && !out.liveness.IsLive)
	if rejected {
		return domain.WorkflowStatusRejected, false
	}

	complianceFailed := out.compliance != nil && !out.compliance.OverallCompliance
	if complianceFailed || riskLevel == domain.RiskLevelHigh || riskLevel == domain.RiskLevelCritical {
		return domain.WorkflowStatusPendingReview, true
	}

	lowConfidence := (out.authenticity != nil && out.authenticity.Confidence < ConfidenceReviewFloor) ||
		(out.faceMatch != nil && out.faceMatch.Confidence < ConfidenceReviewFloor)
	if lowConfidence {
		return domain.WorkflowStatusPendingReview, true
	}

	return domain.WorkflowStatusApproved, false
}

// buildRecommendations folds every accumulated issue into concrete,
// de-duplicated caller guidance.
func buildRecommendations(ocrResults []domain.OCRResult, validation *domain.ValidationResult, out *clusterOutcome, assessment domain.RiskAssessment) []string {
	var recs []string

	for _, res := range ocrResults {
		if !res.Success {
			recs = append(recs, "Resubmit a clearer, well-lit photo of your identity document")
		} else if res.RequiresManualReview {
			recs = append(recs, "Document image quality is low; a reviewer may need to confirm the extracted details")
		}
	}

	if validation != nil {
		for _, issue := range validation.Issues {
			recs = append(recs, "Extraction issue: "+issue)
		}
	}

	if out.authenticity != nil && !out.authenticity.IsAuthentic {
		if out.authenticity.Tampering.Detected {
			recs = append(recs, "Signs of tampering were detected; submit an original, unaltered document")
		} else {
			recs = append(recs, "Document failed authenticity checks; submit an original government-issued document")
		}
	}
	if out.faceMatch != nil && !out.faceMatch.Match {
		recs = append(recs, "Retake your selfie in good lighting, facing the camera directly")
	}
	if out.liveness != nil && !out.liveness.IsLive {
		recs = append(recs, "Complete the liveness challenges again; use a live camera, not a photo or recording")
	}
	if out.addressProof != nil && !out.addressProof.Verified {
		recs = append(recs, "Provide a recent utility bill or bank statement showing your current address")
	}

	if out.compliance != nil {
		if !out.compliance.OverallCompliance {
			recs = append(recs, "Compliance review required before onboarding can continue")
		}
		if !out.compliance.PEPCheck.Passed {
			recs = append(recs, "Enhanced due diligence applies to politically exposed persons")
		}
	}

	if assessment.Recommendation != "" {
		recs = append(recs, assessment.Recommendation)
	}

	return dedupe(recs)
}

// dedupe removes repeated entries while preserving first-seen order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// buildReport renders the human-readable verification report.
func buildReport(result *domain.KYCWorkflowResult, out *clusterOutcome) string {
	var b strings.Builder

	fmt.Fprintf(&b, "KYC Verification Report\n")
	fmt.Fprintf(&b, "Verification ID: %s\n", result.VerificationID)
	fmt.Fprintf(&b, "Status: %s\n", result.Status)
	fmt.Fprintf(&b, "Completed: %s\n\n", result.CompletedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	if data := result.ExtractedData; data != nil {
		fmt.Fprintf(&b, "Subject: %s\n", data.FullName())
		fmt.Fprintf(&b, "Document: %s %s\n\n", data.DocumentType, data.DocumentNumber)
	}

	if out.authenticity != nil {
		fmt.Fprintf(&b, "Document authenticity: %s (confidence %.0f)\n", passFail(out.authenticity.IsAuthentic), out.authenticity.Confidence)
	}
	if out.faceMatch != nil {
		fmt.Fprintf(&b, "Face match: %s (confidence %.0f)\n", passFail(out.faceMatch.Match), out.faceMatch.Confidence)
	}
	if out.liveness != nil {
		fmt.Fprintf(&b, "Liveness: %s (spoofing risk %s)\n", passFail(out.liveness.IsLive), out.liveness.SpoofingRisk)
	}
	if out.addressProof != nil {
		fmt.Fprintf(&b, "Address proof: %s (confidence %.0f)\n", passFail(out.addressProof.Verified), out.addressProof.Confidence)
	}
	if out.compliance != nil {
		fmt.Fprintf(&b, "Compliance: aml=%s sanctions=%s pep_exposure=%t\n",
			passFail(out.compliance.AMLCheck.Passed),
			passFail(out.compliance.SanctionsCheck.Passed),
			!out.compliance.PEPCheck.Passed)
	}

	if result.Verification != nil {
		fmt.Fprintf(&b, "Risk: score %d, level %s\n", result.Verification.Risk.Score, result.Verification.Risk.Level)
	}

	if len(result.Recommendations) > 0 {
		fmt.Fprintf(&b, "\nRecommendations:\n")
		for _, rec := range result.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", rec)
		}
	}

	return b.String()
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}
