package handler

import (
	"net/http"
	"time"

	"kycflow/internal/workflow"
	"kycflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const progressWriteTimeout = 10 * time.Second

// ProgressHandler streams workflow step updates over a WebSocket.
type ProgressHandler struct {
	service  *workflow.Service
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewProgressHandler creates a ProgressHandler.
func NewProgressHandler(service *workflow.Service, log logger.Logger) *ProgressHandler {
	return &ProgressHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Browser clients live behind the API gateway; origin checks
			// happen there.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log,
	}
}

// StreamProgress handles GET /api/v1/verifications/{id}/progress. Each step
// transition is pushed as one JSON frame; the socket closes after the final
// update.
func (h *ProgressHandler) StreamProgress(w http.ResponseWriter, r *http.Request) {
	verificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid verification ID", http.StatusBadRequest)
		return
	}

	// Subscribing before the run starts is allowed; the channel delivers
	// updates as soon as steps begin transitioning.
	updates := h.service.SubscribeProgress(verificationID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", map[string]interface{}{
			"error":           err.Error(),
			"verification_id": verificationID.String(),
		})
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for update := range updates {
		_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
		if err := conn.WriteJSON(update); err != nil {
			h.logger.Debug("Progress subscriber disconnected", map[string]interface{}{
				"verification_id": verificationID.String(),
			})
			return
		}
		if update.Final {
			break
		}
	}

	_ = conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "verification finished"))
}
