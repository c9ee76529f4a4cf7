package session

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

// Handler exposes token refresh, logout and the public key set.
type Handler struct {
	svc    *Service
	load   SubjectLoader
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, load SubjectLoader, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, load: load, logger: logger}
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Refresh token is required"})
		return
	}
	tokens, err := h.svc.Refresh(r.Context(), req.RefreshToken, h.load)
	if err != nil {
		if errors.Is(err, ErrInvalidRefresh) {
			h.logger.Debugw("refresh rejected", "err", err)
			utilities.WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Session expired, please log in again"})
			return
		}
		h.logger.Errorw("refresh failed", "err", err)
		utilities.WriteJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "An error occurred"})
		return
	}
	utilities.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "tokens": tokens})
}

// Logout revokes the given refresh token. It always reports success.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := utilities.DecodeJSON(r, &req); err == nil {
		if err := h.svc.Revoke(r.Context(), req.RefreshToken); err != nil {
			h.logger.Warnw("revoke refresh token failed", "err", err)
		}
	}
	utilities.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, h.svc.JWKS())
}
