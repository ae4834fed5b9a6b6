package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ralphdg-dev/AI.ttorney-sub000/internal/enforcement"
	"github.com/ralphdg-dev/AI.ttorney-sub000/pkg/logging"
)

// AdminEnforcementHandler exposes operator overrides for the strike policy.
type AdminEnforcementHandler struct {
	svc    *enforcement.Service
	logger *logging.Logger
}

func NewAdminEnforcementHandler(svc *enforcement.Service, logger *logging.Logger) *AdminEnforcementHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminEnforcementHandler{svc: svc, logger: logger.Component("admin_enforcement")}
}

// GetStatus reports a user's current moderation standing.
func (h *AdminEnforcementHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	check, err := h.svc.CheckStatus(r.Context(), userID)
	if err != nil {
		h.logger.Error("status lookup failed", "user_id", userID, "error", err)
		http.Error(w, "failed to look up status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, check)
}

// ListViolations returns a user's violation history.
func (h *AdminEnforcementHandler) ListViolations(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	violations, err := h.svc.ListViolations(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error("violation lookup failed", "user_id", userID, "error", err)
		http.Error(w, "failed to list violations", http.StatusInternalServerError)
		return
	}
	if violations == nil {
		violations = []enforcement.Violation{}
	}
	writeJSON(w, map[string]any{"violations": violations})
}

// LiftSuspension reactivates a suspended account early.
func (h *AdminEnforcementHandler) LiftSuspension(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.svc.LiftSuspension(r.Context(), userID); err != nil {
		if errors.Is(err, enforcement.ErrNotSuspended) {
			http.Error(w, "user is not suspended", http.StatusConflict)
			return
		}
		h.logger.Error("lift suspension failed", "user_id", userID, "error", err)
		http.Error(w, "failed to lift suspension", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "active", "user_id": userID})
}

// LiftBan restores a banned account.
func (h *AdminEnforcementHandler) LiftBan(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.svc.LiftBan(r.Context(), userID); err != nil {
		if errors.Is(err, enforcement.ErrNotBanned) {
			http.Error(w, "user is not banned", http.StatusConflict)
			return
		}
		h.logger.Error("lift ban failed", "user_id", userID, "error", err)
		http.Error(w, "failed to lift ban", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "active", "user_id": userID})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
