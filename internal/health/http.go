package health

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPHandler serves health endpoints off the admin mux.
type HTTPHandler struct {
	manager *Manager
	logger  *zap.Logger
}

// NewHTTPHandler creates the health HTTP surface.
func NewHTTPHandler(m *Manager, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{manager: m, logger: logger}
}

// RegisterRoutes mounts /health and /health/ready.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/ready", h.handleReady)
}

type healthResponse struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp time.Time              `json:"timestamp"`
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, checks := h.manager.Snapshot()
	resp := healthResponse{Status: status, Checks: checks, Timestamp: time.Now()}

	w.Header().Set("Content-Type", "application/json")
	if status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Health response encoding failed", zap.Error(err))
	}
}

func (h *HTTPHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	status, _ := h.manager.Snapshot()
	if status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
