// ==============================================================================
// KYC WORKFLOW ORCHESTRATOR - internal/workflow/service.go
// ==============================================================================
// Sequences extraction -> validation -> concurrent verification cluster ->
// compliance -> risk assessment -> final decision for one onboarding subject.
// ==============================================================================

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kycflow/internal/addressproof"
	"kycflow/internal/biometric"
	"kycflow/internal/docauth"
	"kycflow/internal/domain"
	"kycflow/internal/liveness"
	"kycflow/internal/ocr"
	"kycflow/internal/risk"
	"kycflow/internal/screening"
	"kycflow/pkg/config"
	kycerrors "kycflow/pkg/errors"
	"kycflow/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DecisionRecorder receives one decision record per completed run. The
// orchestrator emits records; retention, querying, and export live elsewhere.
type DecisionRecorder interface {
	Record(ctx context.Context, result *domain.KYCWorkflowResult, documents []domain.DocumentInput) error
}

// Metrics is the observability hook the orchestrator reports into.
type Metrics interface {
	RunStarted()
	RunFinished(status domain.WorkflowStatus, duration time.Duration)
}

// Service orchestrates the KYC verification pipeline. Per-run state lives in
// a fresh run value per attempt; the service itself only holds dependencies
// and the progress tracker, so concurrent runs for different subjects never
// share mutable state.
type Service struct {
	ocr          ocr.Service
	docauth      docauth.Service
	biometric    biometric.Service
	liveness     liveness.Service
	addressproof addressproof.Service
	screening    screening.Service
	riskEngine   *risk.Engine
	recorder     DecisionRecorder
	metrics      Metrics
	config       *config.Config
	logger       logger.Logger
	tracker      *progressTracker
}

// NewService creates the orchestrator with all verification dependencies.
// recorder and metrics may be nil.
func NewService(
	ocrService ocr.Service,
	docauthService docauth.Service,
	biometricService biometric.Service,
	livenessService liveness.Service,
	addressproofService addressproof.Service,
	screeningService screening.Service,
	riskEngine *risk.Engine,
	recorder DecisionRecorder,
	metrics Metrics,
	cfg *config.Config,
	log logger.Logger,
) *Service {
	return &Service{
		ocr:          ocrService,
		docauth:      docauthService,
		biometric:    biometricService,
		liveness:     livenessService,
		addressproof: addressproofService,
		screening:    screeningService,
		riskEngine:   riskEngine,
		recorder:     recorder,
		metrics:      metrics,
		config:       cfg,
		logger:       log,
		tracker:      newProgressTracker(),
	}
}

// ExecuteRequest is one full verification attempt's input.
type ExecuteRequest struct {
	VerificationID uuid.UUID
	Documents      []domain.DocumentInput
	SelfieImage    []byte
	Capture        *domain.LivenessCapture
	AddressClaim   *domain.AddressClaim
}

// QuickVerifyRequest is the single-document convenience input.
type QuickVerifyRequest struct {
	DocumentType domain.DocumentType
	FrontImage   []byte
	BackImage    []byte
	SelfieImage  []byte
	Capture      *domain.LivenessCapture
	AddressClaim *domain.AddressClaim
}

// Execute runs one full verification attempt.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*domain.KYCWorkflowResult, error) {
	return s.executeAttempt(ctx, req, 0, nil)
}

// QuickVerify wraps Execute for the single-document case.
func (s *Service) QuickVerify(ctx context.Context, req QuickVerifyRequest) (*domain.KYCWorkflowResult, error) {
	return s.Execute(ctx, ExecuteRequest{
		Documents: []domain.DocumentInput{{
			Type:       req.DocumentType,
			FrontImage: req.FrontImage,
			BackImage:  req.BackImage,
		}},
		SelfieImage:  req.SelfieImage,
		Capture:      req.Capture,
		AddressClaim: req.AddressClaim,
	})
}

// Retry re-attempts a verification, carrying forward the retry count and
// enforcing the retry budget. Only previously failed steps (and the steps
// that consume their output) execute again; results the prior attempt
// completed are carried forward. Exceeding the budget yields a terminal
// abandoned result and no further processing.
func (s *Service) Retry(ctx context.Context, rc domain.RetryContext, req ExecuteRequest) (*domain.KYCWorkflowResult, error) {
	if rc.VerificationID == uuid.Nil {
		return nil, kycerrors.ErrInvalidRetryContext
	}
	if rc.PreviousStatus.IsTerminal() {
		return nil, kycerrors.ErrWorkflowAlreadyFinal
	}

	attempt := rc.RetryCount + 1
	if attempt > s.config.Verification.MaxRetries {
		return s.abandon(rc), nil
	}

	req.VerificationID = rc.VerificationID
	return s.executeAttempt(ctx, req, attempt, s.carryFromPrior(rc))
}

// Progress returns the completion percentage for a verification run.
// Repeated calls without new step updates return the same value.
func (s *Service) Progress(verificationID uuid.UUID) (float64, error) {
	p, ok := s.tracker.progress(verificationID)
	if !ok {
		return 0, kycerrors.ErrWorkflowNotFound
	}
	return p, nil
}

// EstimatedTimeRemaining estimates how long the pending steps will take.
func (s *Service) EstimatedTimeRemaining(verificationID uuid.UUID) (time.Duration, error) {
	eta, ok := s.tracker.eta(verificationID)
	if !ok {
		return 0, kycerrors.ErrWorkflowNotFound
	}
	return eta, nil
}

// SubscribeProgress streams progress updates until the run reaches a final
// status; the returned channel is closed after the final update.
func (s *Service) SubscribeProgress(verificationID uuid.UUID) <-chan ProgressUpdate {
	return s.tracker.subscribe(verificationID)
}

// abandon builds the terminal result for an exhausted retry budget.
func (s *Service) abandon(rc domain.RetryContext) *domain.KYCWorkflowResult {
	now := time.Now()
	result := &domain.KYCWorkflowResult{
		Success:        false,
		Status:         domain.WorkflowStatusAbandoned,
		VerificationID: rc.VerificationID,
		StartedAt:      now,
		CompletedAt:    now,
		RetryCount:     rc.RetryCount,
		Errors: []domain.WorkflowError{{
			Step:        domain.StepFinalReview,
			Code:        domain.ErrCodeRetryBudgetExceeded,
			Message:     fmt.Sprintf("retry budget of %d exhausted", s.config.Verification.MaxRetries),
			Timestamp:   now,
			Recoverable: false,
		}},
		Recommendations: []string{"Manual review required: automated retry budget exhausted"},
	}
	s.tracker.complete(rc.VerificationID, nil, domain.WorkflowStatusAbandoned)
	s.logger.Warn("Verification abandoned after exhausting retries", map[string]interface{}{
		"verification_id": rc.VerificationID,
		"retry_count":     rc.RetryCount,
	})
	return result
}

// executeAttempt runs the pipeline once. carry is nil on a first attempt; a
// retry passes the prior attempt's reusable results so only previously
// failed steps execute again.
func (s *Service) executeAttempt(ctx context.Context, req ExecuteRequest, retryCount int, carry *carryOver) (result *domain.KYCWorkflowResult, err error) {
	verificationID := req.VerificationID
	if verificationID == uuid.Nil {
		verificationID = uuid.New()
	}

	r := newRun(s.config.Verification, verificationID, retryCount)
	r.onUpdate = func(snapshot []domain.WorkflowStep) {
		s.tracker.update(verificationID, snapshot)
	}

	if s.metrics != nil {
		s.metrics.RunStarted()
	}

	// Single top-level catch: any escaped panic becomes a non-recoverable
	// workflow error, never a stack trace handed to the caller.
	defer func() {
		if rec := recover(); rec != nil {
			r.addError(domain.StepFinalReview, domain.ErrCodeInternal, fmt.Sprintf("internal failure: %v", rec), false)
			result = s.finalizeFailure(r, nil, nil, nil)
			err = nil
		}
		if s.metrics != nil && result != nil {
			s.metrics.RunFinished(result.Status, result.CompletedAt.Sub(result.StartedAt))
		}
	}()

	s.logger.Info("Verification workflow started", map[string]interface{}{
		"verification_id": verificationID,
		"documents":       len(req.Documents),
		"retry_count":     retryCount,
	})

	if len(req.Documents) == 0 {
		r.addError(domain.StepOCRExtraction, domain.ErrCodeExtractionFailed, kycerrors.ErrNoDocumentsSubmitted.Error(), false)
		return s.finalizeFailure(r, nil, nil, nil), nil
	}

	// Phase 1: extraction across all submitted documents, concurrently. A
	// retry whose extraction previously succeeded reuses it unchanged.
	var ocrResults []domain.OCRResult
	canonicalIdx := -1
	if carry != nil && carry.ocrResults != nil {
		ocrResults = carry.ocrResults
		canonicalIdx = canonicalIndex(ocrResults)
		r.carryStep(domain.StepOCRExtraction, ocrResults)
	} else {
		var infraErr error
		ocrResults, canonicalIdx, infraErr = s.extractAll(ctx, r, req.Documents)
		if infraErr != nil {
			return s.finalizeFailure(r, ocrResults, nil, nil), nil
		}
	}
	if r.stepEnabled(domain.StepOCRExtraction) && canonicalIdx < 0 {
		r.addError(domain.StepOCRExtraction, domain.ErrCodeExtractionFailed, kycerrors.ErrNoUsableExtraction.Error(), false)
		r.failStep(domain.StepOCRExtraction, ocrResults, kycerrors.ErrNoUsableExtraction.Error())
		return s.finalizeFailure(r, ocrResults, nil, nil), nil
	}
	var canonical *domain.OCRResult
	if canonicalIdx >= 0 {
		canonical = &ocrResults[canonicalIdx]
	}

	requiresRetry := false
	if s.config.Verification.AutoRetryOnLowQuality && retryCount < s.config.Verification.MaxRetries {
		for _, res := range ocrResults {
			if res.RequiresManualReview {
				requiresRetry = true
				break
			}
		}
	}

	// Phase 2: extraction gate. A failed gate on a successful extraction
	// surfaces issues in the report without blocking downstream checks.
	var validation *domain.ValidationResult
	var extracted *domain.ExtractedDocumentData
	if canonical != nil {
		v := ocr.Validate(canonical, time.Now())
		validation = &v
		extracted = canonical.ExtractedData
		if !v.IsValid {
			r.addError(domain.StepOCRExtraction, domain.ErrCodeValidationFailed, fmt.Sprintf("extraction validation raised %d issue(s)", len(v.Issues)), true)
		}
	}

	// Phase 3: verification cluster plus compliance, fan-out/fan-in. The
	// cluster's primary image is the document whose extraction won, not
	// whichever happened to be submitted first.
	primaryIdx := canonicalIdx
	if primaryIdx < 0 || primaryIdx >= len(req.Documents) {
		primaryIdx = 0
	}
	outcome, clusterErr := s.runCluster(ctx, r, clusterInput{
		primary:   req.Documents[primaryIdx],
		extracted: extracted,
		selfie:    req.SelfieImage,
		capture:   req.Capture,
		claim:     req.AddressClaim,
		carry:     carry,
	})
	if clusterErr != nil {
		return s.finalizeFailure(r, ocrResults, extracted, outcome), nil
	}

	// Phase 4: risk assessment over the joined outcomes.
	r.startStep(domain.StepRiskAssessment)
	assessment := s.riskEngine.Assess(risk.Input{
		Authenticity: outcome.authenticity,
		FaceMatch:    outcome.faceMatch,
		Liveness:     outcome.liveness,
		AddressProof: outcome.addressProof,
		Compliance:   outcome.compliance,
		Extracted:    extracted,
	})
	r.completeStep(domain.StepRiskAssessment, assessment)

	// Phase 5: deterministic final decision.
	r.startStep(domain.StepFinalReview)
	status, manualReview := deriveFinalStatus(outcome, assessment.Level)
	if requiresRetry && status == domain.WorkflowStatusApproved {
		// Advisory retry must keep the run non-terminal, or the caller could
		// never act on it.
		status = domain.WorkflowStatusRequiresRetry
	}

	verification := &domain.VerificationResult{
		Authenticity:         outcome.authenticity,
		FaceMatch:            outcome.faceMatch,
		Liveness:             outcome.liveness,
		AddressProof:         outcome.addressProof,
		Compliance:           outcome.compliance,
		Risk:                 assessment,
		OverallStatus:        status,
		RequiresManualReview: manualReview,
	}
	if validation != nil {
		verification.ReviewNotes = validation.Issues
	}
	r.completeStep(domain.StepFinalReview, verification)

	now := time.Now()
	result = &domain.KYCWorkflowResult{
		Success:         true,
		Status:          status,
		VerificationID:  verificationID,
		StartedAt:       r.startedAt,
		CompletedAt:     now,
		Steps:           r.snapshot(),
		OCRResults:      ocrResults,
		ExtractedData:   extracted,
		Verification:    verification,
		RetryCount:      retryCount,
		Errors:          r.errorList(),
		Recommendations: buildRecommendations(ocrResults, validation, outcome, assessment),
		RequiresRetry:   requiresRetry,
	}
	result.Report = buildReport(result, outcome)

	s.tracker.complete(verificationID, result.Steps, status)
	s.record(ctx, result, req.Documents)

	s.logger.Info("Verification workflow completed", map[string]interface{}{
		"verification_id": verificationID,
		"status":          status,
		"risk_score":      assessment.Score,
		"risk_level":      assessment.Level,
		"requires_retry":  requiresRetry,
	})
	return result, nil
}

// extractAll runs extraction for every submitted document concurrently; the
// first document (in submission order) that succeeds with data becomes the
// canonical extraction, returned by index. Deadline expiry degrades to a
// failed extraction result; other provider errors abort the attempt.
func (s *Service) extractAll(ctx context.Context, r *run, documents []domain.DocumentInput) ([]domain.OCRResult, int, error) {
	if !r.stepEnabled(domain.StepOCRExtraction) {
		return nil, -1, nil
	}

	r.startStep(domain.StepOCRExtraction)

	results := make([]domain.OCRResult, len(documents))
	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range documents {
		i, doc := i, doc
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.config.Verification.CheckTimeout)
			defer cancel()

			res, err := s.ocr.Extract(callCtx, doc.Type, doc.FrontImage)
			if errors.Is(err, context.DeadlineExceeded) {
				results[i] = domain.OCRResult{
					Success:              false,
					Errors:               []string{"document extraction timed out"},
					RequiresManualReview: true,
				}
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.addError(domain.StepOCRExtraction, domain.ErrCodeInfrastructure, err.Error(), false)
		r.failStep(domain.StepOCRExtraction, nil, err.Error())
		return nil, -1, err
	}

	idx := canonicalIndex(results)
	if idx >= 0 {
		r.completeStep(domain.StepOCRExtraction, results)
	}
	return results, idx, nil
}

// canonicalIndex returns the first extraction (in submission order) that
// succeeded with data, or -1 when none did.
func canonicalIndex(results []domain.OCRResult) int {
	for i := range results {
		if results[i].Success && results[i].ExtractedData != nil {
			return i
		}
	}
	return -1
}

// finalizeFailure assembles the structured result for an aborted attempt.
func (s *Service) finalizeFailure(r *run, ocrResults []domain.OCRResult, extracted *domain.ExtractedDocumentData, out *clusterOutcome) *domain.KYCWorkflowResult {
	now := time.Now()
	if out == nil {
		out = &clusterOutcome{}
	}

	recs := buildRecommendations(ocrResults, nil, out, domain.RiskAssessment{})
	recs = append(recs, "Verification could not be completed; please try again or contact support")

	result := &domain.KYCWorkflowResult{
		Success:         false,
		Status:          domain.WorkflowStatusFailed,
		VerificationID:  r.verificationID,
		StartedAt:       r.startedAt,
		CompletedAt:     now,
		Steps:           r.snapshot(),
		OCRResults:      ocrResults,
		ExtractedData:   extracted,
		RetryCount:      r.retryCount,
		Errors:          r.errorList(),
		Recommendations: dedupe(recs),
	}

	s.tracker.complete(r.verificationID, result.Steps, domain.WorkflowStatusFailed)

	s.logger.Error("Verification workflow failed", map[string]interface{}{
		"verification_id": r.verificationID,
		"errors":          len(result.Errors),
	})
	return result
}

// record emits the decision record; persistence failures are logged, never
// surfaced to the caller.
func (s *Service) record(ctx context.Context, result *domain.KYCWorkflowResult, documents []domain.DocumentInput) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, result, documents); err != nil {
		s.logger.Error("Failed to persist decision record", map[string]interface{}{
			"verification_id": result.VerificationID,
			"error":           err.Error(),
		})
	}
}
