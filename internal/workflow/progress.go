package workflow

import (
	"sync"
	"time"

	"kycflow/internal/domain"

	"github.com/google/uuid"
)

// ProgressUpdate is one progress snapshot pushed to subscribers.
type ProgressUpdate struct {
	VerificationID uuid.UUID             `json:"verification_id"`
	Progress       float64               `json:"progress"`
	ETARemaining   int64                 `json:"eta_remaining_ms"`
	Steps          []domain.WorkflowStep `json:"steps"`
	Status         domain.WorkflowStatus `json:"status,omitempty"`
	Final          bool                  `json:"final"`
}

// progressTracker keeps the latest step snapshot per verification and fans
// updates out to subscribers. Snapshots survive run completion so progress
// reads stay idempotent.
type progressTracker struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]trackedRun
	subs map[uuid.UUID][]chan ProgressUpdate
}

type trackedRun struct {
	steps  []domain.WorkflowStep
	status domain.WorkflowStatus
	final  bool
	seen   time.Time
}

func newProgressTracker() *progressTracker {
	return &progressTracker{
		runs: make(map[uuid.UUID]trackedRun),
		subs: make(map[uuid.UUID][]chan ProgressUpdate),
	}
}

func (t *progressTracker) update(id uuid.UUID, steps []domain.WorkflowStep) {
	t.publish(id, trackedRun{steps: steps, status: domain.WorkflowStatusInProgress, seen: time.Now()})
}

func (t *progressTracker) complete(id uuid.UUID, steps []domain.WorkflowStep, status domain.WorkflowStatus) {
	t.publish(id, trackedRun{steps: steps, status: status, final: true, seen: time.Now()})
}

func (t *progressTracker) publish(id uuid.UUID, tr trackedRun) {
	t.mu.Lock()
	t.runs[id] = tr
	subs := append([]chan ProgressUpdate(nil), t.subs[id]...)
	if tr.final {
		delete(t.subs, id)
	}
	t.mu.Unlock()

	update := ProgressUpdate{
		VerificationID: id,
		Progress:       ProgressOf(tr.steps),
		ETARemaining:   ETAOf(tr.steps).Milliseconds(),
		Steps:          tr.steps,
		Status:         tr.status,
		Final:          tr.final,
	}
	for _, ch := range subs {
		select {
		case ch <- update:
		default:
			// Slow subscriber; drop rather than stall the pipeline.
		}
		if tr.final {
			close(ch)
		}
	}
}

// progress returns the completion percentage for a verification, or false when
// the verification is unknown.
func (t *progressTracker) progress(id uuid.UUID) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.runs[id]
	if !ok {
		return 0, false
	}
	return ProgressOf(tr.steps), true
}

// finalSteps returns the step snapshot of a verification's completed run, or
// false when the verification is unknown or still in flight.
func (t *progressTracker) finalSteps(id uuid.UUID) ([]domain.WorkflowStep, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.runs[id]
	if !ok || !tr.final {
		return nil, false
	}
	return tr.steps, true
}

// eta returns the estimated time remaining for a verification.
func (t *progressTracker) eta(id uuid.UUID) (time.Duration, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.runs[id]
	if !ok {
		return 0, false
	}
	return ETAOf(tr.steps), true
}

// subscribe registers a progress channel for a verification. The channel is
// closed after the final update.
func (t *progressTracker) subscribe(id uuid.UUID) <-chan ProgressUpdate {
	ch := make(chan ProgressUpdate, 8)
	t.mu.Lock()
	tr, known := t.runs[id]
	if known && tr.final {
		t.mu.Unlock()
		ch <- ProgressUpdate{
			VerificationID: id,
			Progress:       ProgressOf(tr.steps),
			ETARemaining:   0,
			Steps:          tr.steps,
			Status:         tr.status,
			Final:          true,
		}
		close(ch)
		return ch
	}
	t.subs[id] = append(t.subs[id], ch)
	t.mu.Unlock()
	return ch
}
