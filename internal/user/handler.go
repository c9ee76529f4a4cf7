package user

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/internal/session"
	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	userrepo "github.com/ovaphlow/splashops/service-core/internal/user/repo"
	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

// SessionIssuer is the part of the session service the handlers need.
type SessionIssuer interface {
	Issue(ctx context.Context, sub session.Subject, clientID string) (*session.Tokens, error)
	RevokeAll(ctx context.Context, userID int64) error
}

// Handler exposes HTTP endpoints for the account lifecycle.
type Handler struct {
	svc      *UserService
	sessions SessionIssuer
	logger   *zap.SugaredLogger
}

func NewHandler(svc *UserService, sessions SessionIssuer, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

type msg map[string]any

func fail(message string) msg { return msg{"success": false, "message": message} }

// UserView is the JSON shape of an account returned to clients.
type UserView struct {
	UserID        int64      `json:"userId"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	FullName      string     `json:"fullName"`
	Role          string     `json:"role"`
	PhoneNumber   *string    `json:"phoneNumber,omitempty"`
	EmailVerified bool       `json:"emailVerified"`
	IsApproved    bool       `json:"isApproved"`
	IsActive      bool       `json:"isActive"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

func viewOf(c *entity.Credential) UserView {
	return UserView{
		UserID:        c.ID,
		Email:         c.Email,
		FirstName:     c.FirstName,
		LastName:      c.LastName,
		FullName:      c.FullName(),
		Role:          c.Role(),
		PhoneNumber:   c.PhoneNumber,
		EmailVerified: c.EmailVerified,
		IsApproved:    c.Approved,
		IsActive:      c.Active,
		LastLoginAt:   c.LastLoginAt,
		CreatedAt:     c.CreatedAt,
	}
}

type RegisterRequest struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	c, err := h.svc.Register(r.Context(), req.FirstName, req.LastName, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyRegistered):
			utilities.WriteJSON(w, http.StatusConflict, fail("Email already registered"))
		case errors.Is(err, ErrInvalidInput):
			utilities.WriteJSON(w, http.StatusBadRequest, fail("Email and password are required"))
		case errors.Is(err, ErrPasswordTooLong):
			utilities.WriteJSON(w, http.StatusBadRequest, fail("Password must be at most 72 bytes"))
		default:
			h.internal(w, "register failed", err)
		}
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success": true,
		"message": "Registration successful. Please check your email for the verification code.",
		"userId":  c.ID,
	})
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	ClientID string `json:"clientId" validate:"max=64"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	c, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			utilities.WriteJSON(w, http.StatusUnauthorized, fail("Invalid email or password"))
		case errors.Is(err, ErrEmailNotVerified):
			utilities.WriteJSON(w, http.StatusOK, msg{
				"success":              false,
				"requiresVerification": true,
				"message":              "Please verify your email address",
				"email":                req.Email,
			})
		case errors.Is(err, ErrPendingApproval):
			utilities.WriteJSON(w, http.StatusForbidden, msg{
				"success":          false,
				"requiresApproval": true,
				"message":          "Your account is pending approval by an administrator",
			})
		default:
			h.internal(w, "login failed", err)
		}
		return
	}
	tokens, err := h.sessions.Issue(r.Context(), SubjectOf(c), req.ClientID)
	if err != nil {
		h.internal(w, "issue session failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "user": viewOf(c), "tokens": tokens})
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SendVerificationCode answers the same way whether or not the email exists.
func (h *Handler) SendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if _, err := h.svc.SendVerificationCode(r.Context(), req.Email); err != nil {
		h.internal(w, "send verification code failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success": true,
		"message": "If the email is registered, a verification code has been sent",
	})
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required,len=7,numeric"`
}

func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyCodeRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	ok, err := h.svc.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		h.internal(w, "verify code failed", err)
		return
	}
	if !ok {
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid or expired verification code"))
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "message": "Email verified successfully"})
}

// ForgotPassword answers the same way whether or not the email exists.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if _, err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.internal(w, "password reset request failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success": true,
		"message": "If the email is registered, password reset instructions have been sent",
	})
}

type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	ok, err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			utilities.WriteJSON(w, http.StatusBadRequest, fail("Password must be at most 72 bytes"))
			return
		}
		h.internal(w, "password reset failed", err)
		return
	}
	if !ok {
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid or expired reset token"))
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "message": "Password reset successfully"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := h.current(w, r)
	if !ok {
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "user": viewOf(c)})
}

// MeStatus reports the caller's role. Only accounts that passed the login
// gate hold a session, so verification and approval are always true here
// and are not repeated.
func (h *Handler) MeStatus(w http.ResponseWriter, r *http.Request) {
	c, ok := h.current(w, r)
	if !ok {
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{
		"success":          true,
		"role":             c.Role(),
		"positionAssigned": c.Position != nil && *c.Position != "",
		"statusMessage":    c.StatusText(),
	})
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListPending(r.Context())
	if err != nil {
		h.internal(w, "list pending failed", err)
		return
	}
	out := make([]UserView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "users": out})
}

// ListUsers takes optional search, position and active query parameters.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	qv := r.URL.Query()
	f := userrepo.ListFilter{Search: qv.Get("search"), Position: qv.Get("position")}
	if v := qv.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			utilities.WriteJSON(w, http.StatusBadRequest, fail("active must be true or false"))
			return
		}
		f.Active = &active
	}
	list, err := h.svc.List(r.Context(), f)
	if err != nil {
		if errors.Is(err, ErrInvalidPosition) {
			utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid position"))
			return
		}
		h.internal(w, "list users failed", err)
		return
	}
	out := make([]UserView, 0, len(list))
	for i := range list {
		out = append(out, viewOf(&list[i]))
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "count": len(out), "users": out})
}

// UserDetail is the admin view of one account.
type UserDetail struct {
	UserView
	Position      *string `json:"position,omitempty"`
	StatusMessage string  `json:"statusMessage"`
}

func detailOf(c *entity.Credential) UserDetail {
	return UserDetail{UserView: viewOf(c), Position: c.Position, StatusMessage: c.StatusText()}
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Profile(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			utilities.WriteJSON(w, http.StatusNotFound, fail("User not found"))
			return
		}
		h.internal(w, "load user failed", err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "user": detailOf(c)})
}

type UpdateUserRequest struct {
	FirstName   *string `json:"firstName" validate:"omitempty,max=100"`
	LastName    *string `json:"lastName" validate:"omitempty,max=100"`
	Email       *string `json:"email" validate:"omitempty,email,max=255"`
	Position    *string `json:"position"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=30"`
	IsActive    *bool   `json:"isActive"`
	IsApproved  *bool   `json:"isApproved"`
}

// UpdateUser edits an account. Deactivating it also revokes its sessions.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	c, err := h.svc.Update(r.Context(), id, UserUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Position:    req.Position,
		PhoneNumber: req.PhoneNumber,
		Active:      req.IsActive,
		Approved:    req.IsApproved,
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		utilities.WriteJSON(w, http.StatusNotFound, fail("User not found"))
		return
	case errors.Is(err, ErrAlreadyRegistered):
		utilities.WriteJSON(w, http.StatusConflict, fail("Email already registered"))
		return
	case errors.Is(err, ErrInvalidPosition):
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid position"))
		return
	case errors.Is(err, ErrInvalidInput):
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Names and email cannot be empty"))
		return
	default:
		h.internal(w, "update user failed", err)
		return
	}
	if !c.Active {
		if err := h.sessions.RevokeAll(r.Context(), id); err != nil {
			h.logger.Warnw("revoke sessions failed", "user_id", id, "err", err)
		}
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "message": "User updated", "user": detailOf(c)})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "User approved", func(ctx context.Context, id int64) error {
		return h.svc.Approve(ctx, id)
	})
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "User deactivated", func(ctx context.Context, id int64) error {
		if err := h.svc.SetActive(ctx, id, false); err != nil {
			return err
		}
		if err := h.sessions.RevokeAll(ctx, id); err != nil {
			h.logger.Warnw("revoke sessions failed", "user_id", id, "err", err)
		}
		return nil
	})
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "User activated", func(ctx context.Context, id int64) error {
		return h.svc.SetActive(ctx, id, true)
	})
}

type PositionRequest struct {
	Position string `json:"position" validate:"required"`
}

func (h *Handler) AssignPosition(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	h.adminAction(w, r, "Position assigned", func(ctx context.Context, id int64) error {
		return h.svc.AssignPosition(ctx, id, req.Position)
	})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	h.adminAction(w, r, "User deleted", func(ctx context.Context, id int64) error {
		return h.svc.Delete(ctx, id)
	})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid user id"))
		return 0, false
	}
	return id, true
}

func (h *Handler) adminAction(w http.ResponseWriter, r *http.Request, done string, fn func(context.Context, int64) error) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			utilities.WriteJSON(w, http.StatusNotFound, fail("User not found"))
		case errors.Is(err, ErrInvalidPosition):
			utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid position"))
		default:
			h.internal(w, "admin action failed", err)
		}
		return
	}
	utilities.WriteJSON(w, http.StatusOK, msg{"success": true, "message": done})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) (*entity.Credential, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		utilities.WriteJSON(w, http.StatusUnauthorized, fail("Not authenticated"))
		return nil, false
	}
	c, err := h.svc.Profile(r.Context(), sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			utilities.WriteJSON(w, http.StatusNotFound, fail("User not found"))
			return nil, false
		}
		h.internal(w, "load profile failed", err)
		return nil, false
	}
	return c, true
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	h.logger.Debugw("invalid payload", "err", err)
	var ve utilities.ValidationErrors
	if errors.As(err, &ve) {
		utilities.WriteJSON(w, http.StatusBadRequest, msg{"success": false, "message": "Invalid request", "errors": ve})
		return
	}
	utilities.WriteJSON(w, http.StatusBadRequest, fail("Invalid request"))
}

func (h *Handler) internal(w http.ResponseWriter, what string, err error) {
	h.logger.Errorw(what, "err", err)
	utilities.WriteJSON(w, http.StatusInternalServerError, fail("An internal error occurred"))
}
