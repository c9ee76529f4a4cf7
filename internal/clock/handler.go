package clock

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/internal/session"
	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

const dateLayout = "2006-01-02"

// Directory tells the admin views whether a user account exists.
type Directory interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

type Handler struct {
	svc    *Service
	users  Directory
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, users Directory, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, users: users, logger: logger}
}

type msg map[string]any

func fail(message string) msg { return msg{"success": false, "message": message} }

type ClockInRequest struct {
	LocationID    *int64 `json:"locationId" validate:"omitempty,gt=0"`
	Notes         string `json:"notes" validate:"max=2000"`
	ForceOverride bool   `json:"forceOverride"`
}

func (h *Handler) ClockIn(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	var req ClockInRequest
	if err := utilities.DecodeJSON(r, &req); err != nil && !errors.Is(err, utilities.ErrEmptyBody) {
		h.logger.Debugw("invalid clock-in payload", "err", err)
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid request"))
		return
	}
	rec, err := h.svc.ClockIn(r.Context(), sess.UserID, req.LocationID, req.Notes, req.ForceOverride)
	switch {
	case err == nil:
		utilities.WriteJSON(w, http.StatusOK, msg{
			"success":     true,
			"message":     "Clocked in successfully",
			"recordId":    rec.ID,
			"clockInTime": rec.ClockInTime,
		})
	case errors.Is(err, ErrAlreadyClockedIn):
		utilities.WriteJSON(w, http.StatusBadRequest, fail("You are already clocked in. Please clock out first."))
	case errors.Is(err, ErrInvalidLocation):
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Unknown job location"))
	case errors.Is(err, ErrShiftCompletedToday):
		utilities.WriteJSON(w, http.StatusOK, msg{
			"success":              false,
			"requiresConfirmation": true,
			"message":              "You have already clocked out today. Do you want to start a new shift?",
			"previousClockIn":      rec.ClockInTime,
			"previousClockOut":     rec.ClockOutTime,
		})
	default:
		h.internal(w, "clock in failed", err)
	}
}

func (h *Handler) ClockOut(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	rec, err := h.svc.ClockOut(r.Context(), sess.UserID)
	switch {
	case err == nil:
		utilities.WriteJSON(w, http.StatusOK, msg{
			"success":      true,
			"message":      "Clocked out successfully",
			"clockOutTime": rec.ClockOutTime,
			"totalHours":   rec.TotalHours,
		})
	case errors.Is(err, ErrNotClockedIn):
		utilities.WriteJSON(w, http.StatusBadRequest, fail("No active clock-in found"))
	default:
		h.internal(w, "clock out failed", err)
	}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	st, err := h.svc.Status(r.Context(), sess.UserID)
	if err != nil {
		h.internal(w, "clock status failed", err)
		return
	}
	if !st.ClockedIn {
		utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "isClockedIn": false})
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success":      true,
		"isClockedIn":  true,
		"recordId":     st.Current.ID,
		"clockInTime":  st.Current.ClockInTime,
		"locationId":   st.Current.LocationID,
		"locationName": st.Current.LocationName,
		"hoursWorked":  st.HoursWorked,
	})
}

// Records takes optional startDate and endDate query parameters (YYYY-MM-DD).
func (h *Handler) Records(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return
	}
	h.writeReport(w, r, sess.UserID)
}

// EmployeeRecords is the admin view of one employee's shifts. It takes the
// same query parameters as Records.
func (h *Handler) EmployeeRecords(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid user id"))
		return
	}
	found, err := h.users.Exists(r.Context(), id)
	if err != nil {
		h.internal(w, "employee lookup failed", err)
		return
	}
	if !found {
		utilities.WriteJSON(w, http.StatusNotFound, fail("User not found"))
		return
	}
	h.writeReport(w, r, id)
}

func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, userID int64) {
	start, err := h.parseDate(r.URL.Query().Get("startDate"))
	if err != nil {
		utilities.WriteJSON(w, http.StatusBadRequest, fail("startDate must be YYYY-MM-DD"))
		return
	}
	end, err := h.parseDate(r.URL.Query().Get("endDate"))
	if err != nil {
		utilities.WriteJSON(w, http.StatusBadRequest, fail("endDate must be YYYY-MM-DD"))
		return
	}
	rep, err := h.svc.Records(r.Context(), userID, start, end)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			utilities.WriteJSON(w, http.StatusBadRequest, fail("endDate is before startDate"))
			return
		}
		h.internal(w, "clock records failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success": true,
		"userId":  userID,
		"dateRange": msg{
			"startDate": rep.From.Format(dateLayout),
			"endDate":   rep.To.Format(dateLayout),
		},
		"totalHours": rep.TotalHours,
		"records":    rep.Records,
	})
}

func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	shifts, err := h.svc.ActiveShifts(r.Context())
	if err != nil {
		h.internal(w, "active shifts failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "count": len(shifts), "shifts": shifts})
}

func (h *Handler) parseDate(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, h.svc.Location())
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *Handler) internal(w http.ResponseWriter, what string, err error) {
	h.logger.Errorw(what, "err", err)
	utilities.WriteJSON(w, http.StatusInternalServerError, fail("An internal error occurred"))
}
