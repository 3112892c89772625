package workflow

import (
	"context"
	"errors"
	"sync"

	"kycflow/internal/domain"
	"kycflow/internal/screening"

	"golang.org/x/sync/errgroup"
)

// clusterOutcome gathers the verification-cluster and compliance results for
// one attempt. Nil members mean the check was skipped or produced nothing.
type clusterOutcome struct {
	mu           sync.Mutex
	authenticity *domain.AuthenticityResult
	faceMatch    *domain.FaceMatchResult
	liveness     *domain.LivenessResult
	addressProof *domain.AddressProofResult
	compliance   *domain.ComplianceResult
}

// clusterInput is everything the independent checks consume. None of the
// checks depends on another's output, so they fan out concurrently and join
// before risk assessment.
type clusterInput struct {
	primary   domain.DocumentInput
	extracted *domain.ExtractedDocumentData
	selfie    []byte
	capture   *domain.LivenessCapture
	claim     *domain.AddressClaim
	carry     *carryOver
}

// runCluster executes the four verification checks plus compliance screening
// concurrently. Deadline expiry on a single check degrades to a low-confidence
// negative result; any other provider error is an infrastructure fault that
// aborts the attempt.
func (s *Service) runCluster(ctx context.Context, r *run, in clusterInput) (*clusterOutcome, error) {
	out := &clusterOutcome{}
	carried := in.carry
	if carried == nil {
		carried = &carryOver{}
	}
	g, gctx := errgroup.WithContext(ctx)

	if r.stepEnabled(domain.StepDocumentVerification) && carried.authenticity != nil {
		r.carryStep(domain.StepDocumentVerification, carried.authenticity)
		out.authenticity = carried.authenticity
	} else if r.stepEnabled(domain.StepDocumentVerification) {
		g.Go(func() error {
			r.startStep(domain.StepDocumentVerification)
			result, err := s.callAuthenticity(gctx, in)
			if err != nil {
				r.addError(domain.StepDocumentVerification, domain.ErrCodeInfrastructure, err.Error(), false)
				r.failStep(domain.StepDocumentVerification, nil, err.Error())
				return err
			}
			out.mu.Lock()
			out.authenticity = result
			out.mu.Unlock()
			s.finishCheck(r, domain.StepDocumentVerification, result.IsAuthentic, result, "document failed authenticity checks")
			return nil
		})
	}

	if r.stepEnabled(domain.StepFaceMatching) && carried.faceMatch != nil {
		r.carryStep(domain.StepFaceMatching, carried.faceMatch)
		out.faceMatch = carried.faceMatch
	} else if r.stepEnabled(domain.StepFaceMatching) {
		g.Go(func() error {
			r.startStep(domain.StepFaceMatching)
			result, err := s.callFaceMatch(gctx, in)
			if err != nil {
				r.addError(domain.StepFaceMatching, domain.ErrCodeInfrastructure, err.Error(), false)
				r.failStep(domain.StepFaceMatching, nil, err.Error())
				return err
			}
			out.mu.Lock()
			out.faceMatch = result
			out.mu.Unlock()
			s.finishCheck(r, domain.StepFaceMatching, result.Match, result, "selfie did not match document portrait")
			return nil
		})
	}

	if r.stepEnabled(domain.StepLivenessDetection) && carried.liveness != nil {
		r.carryStep(domain.StepLivenessDetection, carried.liveness)
		out.liveness = carried.liveness
	} else if r.stepEnabled(domain.StepLivenessDetection) {
		g.Go(func() error {
			r.startStep(domain.StepLivenessDetection)
			result, err := s.callLiveness(gctx, in)
			if err != nil {
				r.addError(domain.StepLivenessDetection, domain.ErrCodeInfrastructure, err.Error(), false)
				r.failStep(domain.StepLivenessDetection, nil, err.Error())
				return err
			}
			out.mu.Lock()
			out.liveness = result
			out.mu.Unlock()
			s.finishCheck(r, domain.StepLivenessDetection, result.IsLive, result, "liveness could not be established")
			return nil
		})
	}

	if r.stepEnabled(domain.StepAddressVerification) && carried.addressProof != nil {
		r.carryStep(domain.StepAddressVerification, carried.addressProof)
		out.addressProof = carried.addressProof
	} else if r.stepEnabled(domain.StepAddressVerification) {
		g.Go(func() error {
			r.startStep(domain.StepAddressVerification)
			result, err := s.callAddressProof(gctx, in)
			if err != nil {
				r.addError(domain.StepAddressVerification, domain.ErrCodeInfrastructure, err.Error(), false)
				r.failStep(domain.StepAddressVerification, nil, err.Error())
				return err
			}
			out.mu.Lock()
			out.addressProof = result
			out.mu.Unlock()
			s.finishCheck(r, domain.StepAddressVerification, result.Verified, result, "address proof not verified")
			return nil
		})
	}

	if r.stepEnabled(domain.StepComplianceChecks) && carried.compliance != nil {
		r.carryStep(domain.StepComplianceChecks, carried.compliance)
		out.compliance = carried.compliance
	} else if r.stepEnabled(domain.StepComplianceChecks) {
		g.Go(func() error {
			r.startStep(domain.StepComplianceChecks)
			result, err := s.callScreening(gctx, in.extracted)
			if err != nil {
				r.addError(domain.StepComplianceChecks, domain.ErrCodeInfrastructure, err.Error(), false)
				r.failStep(domain.StepComplianceChecks, nil, err.Error())
				return err
			}
			out.mu.Lock()
			out.compliance = result
			out.mu.Unlock()
			if result.OverallCompliance {
				r.completeStep(domain.StepComplianceChecks, result)
				return nil
			}
			// One error entry per hit, carrying the compliance code.
			const msg = "compliance screening reported a hit"
			r.addError(domain.StepComplianceChecks, domain.ErrCodeComplianceHit, msg, true)
			r.failStep(domain.StepComplianceChecks, result, msg)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// finishCheck records a check's step outcome from its own boolean result.
// A negative outcome is a workflow-level signal, not an error.
func (s *Service) finishCheck(r *run, step domain.StepName, passed bool, result interface{}, failMsg string) {
	if passed {
		r.completeStep(step, result)
		return
	}
	r.addError(step, domain.ErrCodeVerificationFailed, failMsg, true)
	r.failStep(step, result, failMsg)
}

func (s *Service) callAuthenticity(ctx context.Context, in clusterInput) (*domain.AuthenticityResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Verification.CheckTimeout)
	defer cancel()

	result, err := s.docauth.Verify(callCtx, in.primary.Type, in.extracted, in.primary.FrontImage)
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.AuthenticityResult{IsAuthentic: false, Confidence: 5}, nil
	}
	return result, err
}

func (s *Service) callFaceMatch(ctx context.Context, in clusterInput) (*domain.FaceMatchResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Verification.CheckTimeout)
	defer cancel()

	result, err := s.biometric.Match(callCtx, in.primary.FrontImage, in.selfie)
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.FaceMatchResult{Match: false, Confidence: 5, Issues: []string{"face matching timed out"}}, nil
	}
	return result, err
}

func (s *Service) callLiveness(ctx context.Context, in clusterInput) (*domain.LivenessResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Verification.CheckTimeout)
	defer cancel()

	capture := in.capture
	if capture == nil && len(in.selfie) > 0 {
		// Single-frame fallback when no challenge capture was submitted.
		capture = &domain.LivenessCapture{Frames: [][]byte{in.selfie}}
	}

	result, err := s.liveness.Detect(callCtx, capture)
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.LivenessResult{IsLive: false, Confidence: 5, SpoofingRisk: domain.SpoofingRiskHigh}, nil
	}
	return result, err
}

func (s *Service) callAddressProof(ctx context.Context, in clusterInput) (*domain.AddressProofResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Verification.CheckTimeout)
	defer cancel()

	result, err := s.addressproof.Verify(callCtx, in.claim)
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.AddressProofResult{Verified: false, Confidence: 5, DetectedType: domain.DocumentTypeUnknown}, nil
	}
	return result, err
}

func (s *Service) callScreening(ctx context.Context, data *domain.ExtractedDocumentData) (*domain.ComplianceResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.config.Verification.CheckTimeout)
	defer cancel()

	attrs := screening.IdentityAttributes{}
	if data != nil {
		attrs = screening.IdentityAttributes{
			FullName:    data.FullName(),
			DateOfBirth: data.DateOfBirth,
			Nationality: data.Nationality,
		}
	}
	// Screening deadlines are not degraded: a compliance hit must never be
	// silently approved, so an unanswered screen aborts the attempt.
	return s.screening.Screen(callCtx, attrs)
}
