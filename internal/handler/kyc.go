package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"kycflow/internal/audit"
	"kycflow/internal/domain"
	"kycflow/internal/workflow"
	kycerrors "kycflow/pkg/errors"
	"kycflow/pkg/logger"
	"kycflow/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// VerificationHandler exposes the workflow engine over HTTP.
type VerificationHandler struct {
	service   *workflow.Service
	recorder  *audit.Recorder
	validator *validator.Validator
	logger    logger.Logger
}

// NewVerificationHandler creates a VerificationHandler with required dependencies.
func NewVerificationHandler(service *workflow.Service, recorder *audit.Recorder, val *validator.Validator, log logger.Logger) *VerificationHandler {
	return &VerificationHandler{
		service:   service,
		recorder:  recorder,
		validator: val,
		logger:    log,
	}
}

// respondJSON sends a JSON response with proper content type and status code.
func (h *VerificationHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", map[string]interface{}{
			"error":   err.Error(),
			"status":  status,
			"handler": "verification",
		})
		http.Error(w, `{"error":"response encoding failed"}`, http.StatusInternalServerError)
	}
}

// respondError sends a standardized error response.
func (h *VerificationHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// parseAndValidateRequest parses and validates a JSON request body.
func (h *VerificationHandler) parseAndValidateRequest(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	// Document images ride inside the JSON body, so the ceiling is generous.
	r.Body = http.MaxBytesReader(w, r.Body, 16<<20)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}

	if err := h.validator.Validate(req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return false
	}

	return true
}

// documentPayload is one identity document in an API request.
type documentPayload struct {
	Type       string `json:"type" validate:"required,document_type"`
	FrontImage string `json:"front_image" validate:"required,base64"`
	BackImage  string `json:"back_image,omitempty" validate:"omitempty,base64"`
}

// addressPayload is the claimed address plus its proof document.
type addressPayload struct {
	Document   documentPayload `json:"document" validate:"required"`
	Line1      string          `json:"line1" validate:"required"`
	Line2      string          `json:"line2,omitempty"`
	City       string          `json:"city" validate:"required"`
	State      string          `json:"state,omitempty"`
	PostalCode string          `json:"postal_code,omitempty"`
	Country    string          `json:"country" validate:"required,len=2"`
}

// capturePayload carries liveness frames and attempted challenges.
type capturePayload struct {
	Frames     []string `json:"frames" validate:"required,min=1,dive,base64"`
	Challenges []string `json:"challenges,omitempty"`
}

// CreateVerificationRequest starts a full verification run.
type CreateVerificationRequest struct {
	Documents    []documentPayload `json:"documents" validate:"required,min=1,max=5,dive"`
	SelfieImage  string            `json:"selfie_image,omitempty" validate:"omitempty,base64"`
	Capture      *capturePayload   `json:"capture,omitempty"`
	AddressProof *addressPayload   `json:"address_proof,omitempty"`
}

// QuickVerificationRequest is the single-document convenience form.
type QuickVerificationRequest struct {
	DocumentType string `json:"document_type" validate:"required,document_type"`
	FrontImage   string `json:"front_image" validate:"required,base64"`
	BackImage    string `json:"back_image,omitempty" validate:"omitempty,base64"`
	SelfieImage  string `json:"selfie_image,omitempty" validate:"omitempty,base64"`
}

// RetryVerificationRequest resubmits a prior attempt; only the steps named in
// failed_steps (and the steps consuming their output) execute again.
type RetryVerificationRequest struct {
	RetryCount     int               `json:"retry_count" validate:"min=0"`
	PreviousStatus string            `json:"previous_status" validate:"required"`
	FailedSteps    []string          `json:"failed_steps,omitempty"`
	Documents      []documentPayload `json:"documents" validate:"required,min=1,max=5,dive"`
	SelfieImage    string            `json:"selfie_image,omitempty" validate:"omitempty,base64"`
	Capture        *capturePayload   `json:"capture,omitempty"`
	AddressProof   *addressPayload   `json:"address_proof,omitempty"`
}

func decodeImage(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func (p documentPayload) toDomain() domain.DocumentInput {
	return domain.DocumentInput{
		Type:       domain.DocumentType(p.Type),
		FrontImage: decodeImage(p.FrontImage),
		BackImage:  decodeImage(p.BackImage),
	}
}

func (p *capturePayload) toDomain() *domain.LivenessCapture {
	if p == nil {
		return nil
	}
	frames := make([][]byte, 0, len(p.Frames))
	for _, f := range p.Frames {
		frames = append(frames, decodeImage(f))
	}
	return &domain.LivenessCapture{Frames: frames, Challenges: p.Challenges}
}

func (p *addressPayload) toDomain() *domain.AddressClaim {
	if p == nil {
		return nil
	}
	return &domain.AddressClaim{
		Document: p.Document.toDomain(),
		Claimed: domain.Address{
			Line1:      p.Line1,
			Line2:      p.Line2,
			City:       p.City,
			State:      p.State,
			PostalCode: p.PostalCode,
			Country:    strings.ToUpper(p.Country),
		},
	}
}

// CreateVerification handles POST /api/v1/verifications.
func (h *VerificationHandler) CreateVerification(w http.ResponseWriter, r *http.Request) {
	var req CreateVerificationRequest
	if !h.parseAndValidateRequest(w, r, &req) {
		return
	}

	documents := make([]domain.DocumentInput, 0, len(req.Documents))
	for _, d := range req.Documents {
		documents = append(documents, d.toDomain())
	}

	result, err := h.service.Execute(r.Context(), workflow.ExecuteRequest{
		Documents:    documents,
		SelfieImage:  decodeImage(req.SelfieImage),
		Capture:      req.Capture.toDomain(),
		AddressClaim: req.AddressProof.toDomain(),
	})
	if err != nil {
		h.logger.Error("Verification run failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Verification could not be processed")
		return
	}

	h.respondJSON(w, http.StatusCreated, result)
}

// QuickVerification handles POST /api/v1/verifications/quick.
func (h *VerificationHandler) QuickVerification(w http.ResponseWriter, r *http.Request) {
	var req QuickVerificationRequest
	if !h.parseAndValidateRequest(w, r, &req) {
		return
	}

	result, err := h.service.QuickVerify(r.Context(), workflow.QuickVerifyRequest{
		DocumentType: domain.DocumentType(req.DocumentType),
		FrontImage:   decodeImage(req.FrontImage),
		BackImage:    decodeImage(req.BackImage),
		SelfieImage:  decodeImage(req.SelfieImage),
	})
	if err != nil {
		h.logger.Error("Quick verification failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Verification could not be processed")
		return
	}

	h.respondJSON(w, http.StatusCreated, result)
}

// RetryVerification handles POST /api/v1/verifications/{id}/retry.
func (h *VerificationHandler) RetryVerification(w http.ResponseWriter, r *http.Request) {
	verificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid verification ID")
		return
	}

	var req RetryVerificationRequest
	if !h.parseAndValidateRequest(w, r, &req) {
		return
	}

	documents := make([]domain.DocumentInput, 0, len(req.Documents))
	for _, d := range req.Documents {
		documents = append(documents, d.toDomain())
	}

	failedSteps := make([]domain.StepName, 0, len(req.FailedSteps))
	for _, s := range req.FailedSteps {
		failedSteps = append(failedSteps, domain.StepName(s))
	}

	result, err := h.service.Retry(r.Context(), domain.RetryContext{
		VerificationID: verificationID,
		RetryCount:     req.RetryCount,
		FailedSteps:    failedSteps,
		PreviousStatus: domain.WorkflowStatus(req.PreviousStatus),
	}, workflow.ExecuteRequest{
		VerificationID: verificationID,
		Documents:      documents,
		SelfieImage:    decodeImage(req.SelfieImage),
		Capture:        req.Capture.toDomain(),
		AddressClaim:   req.AddressProof.toDomain(),
	})
	if err != nil {
		switch {
		case kycerrors.Is(err, kycerrors.ErrWorkflowAlreadyFinal):
			h.respondError(w, http.StatusConflict, "Verification already reached a final status")
		case kycerrors.Is(err, kycerrors.ErrInvalidRetryContext):
			h.respondError(w, http.StatusBadRequest, "Invalid retry context")
		default:
			h.logger.Error("Retry failed", map[string]interface{}{
				"error":           err.Error(),
				"verification_id": verificationID.String(),
			})
			h.respondError(w, http.StatusInternalServerError, "Verification could not be processed")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

// GetVerification handles GET /api/v1/verifications/{id}. It serves the cached
// full result when present and falls back to the stored decision record.
func (h *VerificationHandler) GetVerification(w http.ResponseWriter, r *http.Request) {
	verificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid verification ID")
		return
	}

	if result, err := h.recorder.CachedResult(r.Context(), verificationID); err == nil {
		h.respondJSON(w, http.StatusOK, result)
		return
	}

	record, err := h.recorder.Decision(r.Context(), verificationID)
	if err != nil {
		if kycerrors.Is(err, kycerrors.ErrDecisionNotFound) {
			h.respondError(w, http.StatusNotFound, "Verification not found")
			return
		}
		h.logger.Error("Decision lookup failed", map[string]interface{}{
			"error":           err.Error(),
			"verification_id": verificationID.String(),
		})
		h.respondError(w, http.StatusInternalServerError, "Verification could not be retrieved")
		return
	}

	h.respondJSON(w, http.StatusOK, record)
}

func decisionFilterFromQuery(r *http.Request) domain.DecisionFilter {
	var filter domain.DecisionFilter
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.WorkflowStatus(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("risk_level"); v != "" {
		level := domain.RiskLevel(v)
		filter.RiskLevel = &level
	}
	return filter
}

// ListDecisions handles GET /api/v1/decisions with status/level filters and paging.
func (h *VerificationHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	filter := decisionFilterFromQuery(r)
	filter.Limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	records, err := h.recorder.Retrieve(r.Context(), filter)
	if err != nil {
		h.logger.Error("Decision list failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Decisions could not be listed")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": records,
		"count":     len(records),
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

// ExportDecisions handles GET /api/v1/decisions/export?format=csv|json.
func (h *VerificationHandler) ExportDecisions(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	filter := decisionFilterFromQuery(r)

	data, err := h.recorder.Export(r.Context(), filter, format)
	if err != nil {
		h.logger.Error("Decision export failed", map[string]interface{}{"error": err.Error()})
		h.respondError(w, http.StatusInternalServerError, "Export failed")
		return
	}

	if strings.EqualFold(format, "csv") {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="decisions.csv"`)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GetProgress handles GET /api/v1/verifications/{id}/status.
func (h *VerificationHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	verificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid verification ID")
		return
	}

	progress, err := h.service.Progress(verificationID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Verification not found")
		return
	}
	eta, err := h.service.EstimatedTimeRemaining(verificationID)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Verification not found")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"verification_id":  verificationID,
		"progress":         progress,
		"eta_remaining_ms": eta.Milliseconds(),
	})
}
