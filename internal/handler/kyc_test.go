package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kycflow/internal/addressproof"
	"kycflow/internal/audit"
	"kycflow/internal/biometric"
	"kycflow/internal/docauth"
	"kycflow/internal/domain"
	"kycflow/internal/liveness"
	"kycflow/internal/ocr"
	"kycflow/internal/risk"
	"kycflow/internal/screening"
	"kycflow/internal/workflow"
	"kycflow/pkg/config"
	"kycflow/pkg/logger"
	"kycflow/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*VerificationHandler, *mux.Router) {
	t.Helper()

	cfg := &config.Config{
		Verification: config.VerificationConfig{
			EnableOCR:                  true,
			EnableDocumentVerification: true,
			EnableFaceMatch:            true,
			EnableLiveness:             true,
			EnableAddressProof:         true,
			EnableComplianceChecks:     true,
			MaxRetries:                 3,
			AutoRetryOnLowQuality:      true,
			CheckTimeout:               5 * time.Second,
		},
	}
	log := logger.NewNop()

	recorder := audit.NewRecorder(audit.NewMemoryStore(), nil, log)
	svc := workflow.NewService(
		ocr.NewMockOCRService(cfg, log),
		docauth.NewMockAuthenticityService(cfg, log),
		biometric.NewMockMatcherService(cfg, log),
		liveness.NewMockDetectorService(cfg, log),
		addressproof.NewMockVerifierService(cfg, log),
		screening.NewScreeningService(screening.NewEmptyDataSource(), cfg, log),
		risk.NewEngine(),
		recorder,
		nil,
		cfg,
		log,
	)

	h := NewVerificationHandler(svc, recorder, validator.New(), log)

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/verifications", h.CreateVerification).Methods("POST")
	r.HandleFunc("/api/v1/verifications/quick", h.QuickVerification).Methods("POST")
	r.HandleFunc("/api/v1/verifications/{id}", h.GetVerification).Methods("GET")
	r.HandleFunc("/api/v1/verifications/{id}/retry", h.RetryVerification).Methods("POST")
	r.HandleFunc("/api/v1/verifications/{id}/status", h.GetProgress).Methods("GET")
	r.HandleFunc("/api/v1/decisions", h.ListDecisions).Methods("GET")
	r.HandleFunc("/api/v1/decisions/export", h.ExportDecisions).Methods("GET")
	return h, r
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func postJSON(t *testing.T, router *mux.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateVerification(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications", CreateVerificationRequest{
		Documents: []documentPayload{{
			Type:       "passport",
			FrontImage: b64("passport-front-image"),
		}},
		SelfieImage: b64("selfie-image"),
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result domain.KYCWorkflowResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.VerificationID)
}

func TestCreateVerificationRejectsInvalidBody(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications", map[string]interface{}{
		"documents": []map[string]string{{
			"type":        "library_card",
			"front_image": b64("img"),
		}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postJSON(t, router, "/api/v1/verifications", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestQuickVerification(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications/quick", QuickVerificationRequest{
		DocumentType: "passport",
		FrontImage:   b64("passport-front"),
		SelfieImage:  b64("selfie"),
	})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var result domain.KYCWorkflowResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, domain.WorkflowStatusApproved, result.Status)
}

func TestGetVerificationAfterRun(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications/quick", QuickVerificationRequest{
		DocumentType: "passport",
		FrontImage:   b64("passport-front"),
		SelfieImage:  b64("selfie"),
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var created domain.KYCWorkflowResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/"+created.VerificationID.String(), nil)
	get := httptest.NewRecorder()
	router.ServeHTTP(get, req)

	assert.Equal(t, http.StatusOK, get.Code)
	assert.Contains(t, get.Body.String(), created.VerificationID.String())
}

func TestGetVerificationNotFound(t *testing.T) {
	_, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/3f1f9cee-95a6-4de7-92c8-a53ccd5fb221", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetVerificationInvalidID(t *testing.T) {
	_, router := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/not-a-uuid", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRetryVerificationTerminalConflict(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications/3f1f9cee-95a6-4de7-92c8-a53ccd5fb221/retry", RetryVerificationRequest{
		RetryCount:     0,
		PreviousStatus: "approved",
		Documents: []documentPayload{{
			Type:       "passport",
			FrontImage: b64("passport-front"),
		}},
	})

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRetryVerificationRuns(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications/3f1f9cee-95a6-4de7-92c8-a53ccd5fb221/retry", RetryVerificationRequest{
		RetryCount:     0,
		PreviousStatus: "requires_retry",
		Documents: []documentPayload{{
			Type:       "passport",
			FrontImage: b64("passport-front"),
		}},
		SelfieImage: b64("selfie"),
	})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result domain.KYCWorkflowResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 1, result.RetryCount)
	assert.Equal(t, "3f1f9cee-95a6-4de7-92c8-a53ccd5fb221", result.VerificationID.String())
}

func TestGetProgressAfterRun(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications/quick", QuickVerificationRequest{
		DocumentType: "passport",
		FrontImage:   b64("passport-front"),
		SelfieImage:  b64("selfie"),
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var created domain.KYCWorkflowResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/verifications/"+created.VerificationID.String()+"/status", nil)
	get := httptest.NewRecorder()
	router.ServeHTTP(get, req)

	require.Equal(t, http.StatusOK, get.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &status))
	assert.Equal(t, 100.0, status["progress"])
}

func TestListAndExportDecisions(t *testing.T) {
	_, router := newTestHandler(t)

	rr := postJSON(t, router, "/api/v1/verifications/quick", QuickVerificationRequest{
		DocumentType: "passport",
		FrontImage:   b64("passport-front"),
		SelfieImage:  b64("selfie"),
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/decisions?status=approved", nil)
	list := httptest.NewRecorder()
	router.ServeHTTP(list, req)

	require.Equal(t, http.StatusOK, list.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(list.Body.Bytes(), &body))
	assert.Equal(t, 1.0, body["count"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/decisions/export?format=csv", nil)
	export := httptest.NewRecorder()
	router.ServeHTTP(export, req)

	require.Equal(t, http.StatusOK, export.Code)
	assert.Equal(t, "text/csv", export.Header().Get("Content-Type"))
	assert.Contains(t, export.Body.String(), "verification_id,subject_name")
}
