package workflow

import (
	"sync"
	"time"

	"kycflow/internal/domain"
	"kycflow/pkg/config"

	"github.com/google/uuid"
)

// avgStepDuration is the fixed per-step estimate used for ETA calculations.
const avgStepDuration = 2 * time.Second

// run holds the mutable state for exactly one workflow attempt. Each attempt
// gets a fresh run; nothing is shared between attempts except the carried
// retry count.
type run struct {
	verificationID uuid.UUID
	retryCount     int
	startedAt      time.Time

	mu        sync.Mutex
	steps     []domain.WorkflowStep
	stepIndex map[domain.StepName]int
	errors    []domain.WorkflowError

	onUpdate func(snapshot []domain.WorkflowStep)
}

// newRun initializes step state for an attempt. Stages disabled by
// configuration start and stay skipped.
func newRun(cfg config.VerificationConfig, verificationID uuid.UUID, retryCount int) *run {
	r := &run{
		verificationID: verificationID,
		retryCount:     retryCount,
		startedAt:      time.Now(),
		stepIndex:      make(map[domain.StepName]int, len(domain.StepOrder)),
	}

	enabled := map[domain.StepName]bool{
		domain.StepOCRExtraction:        cfg.EnableOCR,
		domain.StepDocumentVerification: cfg.EnableDocumentVerification,
		domain.StepFaceMatching:         cfg.EnableFaceMatch,
		domain.StepLivenessDetection:    cfg.EnableLiveness,
		domain.StepAddressVerification:  cfg.EnableAddressProof,
		domain.StepComplianceChecks:     cfg.EnableComplianceChecks,
		domain.StepRiskAssessment:       true,
		domain.StepFinalReview:          true,
	}

	for i, name := range domain.StepOrder {
		status := domain.StepStatusPending
		if !enabled[name] {
			status = domain.StepStatusSkipped
		}
		r.steps = append(r.steps, domain.WorkflowStep{Name: name, Status: status})
		r.stepIndex[name] = i
	}
	return r
}

// stepEnabled reports whether a stage was not skipped at initialization.
func (r *run) stepEnabled(name domain.StepName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.steps[r.stepIndex[name]].Status != domain.StepStatusSkipped
}

// startStep transitions a step to in_progress.
func (r *run) startStep(name domain.StepName) {
	r.transition(name, domain.StepStatusInProgress, nil, "")
}

// completeStep transitions a step to completed with its result payload.
func (r *run) completeStep(name domain.StepName, result interface{}) {
	r.transition(name, domain.StepStatusCompleted, result, "")
}

// carryStep marks a pending step completed with a result carried over from
// the previous attempt. The step does not execute in this attempt, so no
// timestamps are recorded.
func (r *run) carryStep(name domain.StepName, result interface{}) {
	r.mu.Lock()
	step := &r.steps[r.stepIndex[name]]
	if step.Status != domain.StepStatusPending {
		r.mu.Unlock()
		return
	}
	step.Status = domain.StepStatusCompleted
	step.Result = result

	var snapshot []domain.WorkflowStep
	if r.onUpdate != nil {
		snapshot = r.snapshotLocked()
	}
	r.mu.Unlock()

	if r.onUpdate != nil {
		r.onUpdate(snapshot)
	}
}

// failStep transitions a step to failed, keeping any partial result.
func (r *run) failStep(name domain.StepName, result interface{}, errMsg string) {
	r.transition(name, domain.StepStatusFailed, result, errMsg)
}

func (r *run) transition(name domain.StepName, next domain.StepStatus, result interface{}, errMsg string) {
	r.mu.Lock()
	i := r.stepIndex[name]
	step := &r.steps[i]
	if !step.Status.CanTransitionTo(next) {
		r.mu.Unlock()
		return
	}

	now := time.Now()
	switch next {
	case domain.StepStatusInProgress:
		step.StartedAt = &now
	case domain.StepStatusCompleted, domain.StepStatusFailed:
		step.CompletedAt = &now
		if step.StartedAt != nil {
			step.Duration = now.Sub(*step.StartedAt)
		}
		step.Result = result
		step.Error = errMsg
	}
	step.Status = next

	var snapshot []domain.WorkflowStep
	if r.onUpdate != nil {
		snapshot = r.snapshotLocked()
	}
	r.mu.Unlock()

	if r.onUpdate != nil {
		r.onUpdate(snapshot)
	}
}

// addError appends to the run's append-only error list.
func (r *run) addError(step domain.StepName, code, message string, recoverable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, domain.WorkflowError{
		Step:        step,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		Recoverable: recoverable,
	})
}

func (r *run) snapshot() []domain.WorkflowStep {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *run) snapshotLocked() []domain.WorkflowStep {
	out := make([]domain.WorkflowStep, len(r.steps))
	copy(out, r.steps)
	return out
}

func (r *run) errorList() []domain.WorkflowError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.WorkflowError, len(r.errors))
	copy(out, r.errors)
	return out
}

// hasNonRecoverable reports whether any recorded error forces workflow failure.
func (r *run) hasNonRecoverable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.errors {
		if !e.Recoverable {
			return true
		}
	}
	return false
}

// ProgressOf computes completion over non-skipped steps, as a percentage.
func ProgressOf(steps []domain.WorkflowStep) float64 {
	total := 0
	completed := 0
	for _, s := range steps {
		if s.Status == domain.StepStatusSkipped {
			continue
		}
		total++
		if s.Status == domain.StepStatusCompleted || s.Status == domain.StepStatusFailed {
			completed++
		}
	}
	if total == 0 {
		return 100
	}
	return float64(completed) / float64(total) * 100
}

// ETAOf estimates remaining time as pending steps times the fixed average
// step duration.
func ETAOf(steps []domain.WorkflowStep) time.Duration {
	pending := 0
	for _, s := range steps {
		if s.Status == domain.StepStatusPending || s.Status == domain.StepStatusInProgress {
			pending++
		}
	}
	return time.Duration(pending) * avgStepDuration
}
