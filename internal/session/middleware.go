package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

type ctxKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session placed by Require, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok && s != nil
}

func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

// Require rejects requests without a valid bearer access token and puts the
// session into the request context.
func (s *Service) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r)
		if tok == "" {
			utilities.WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Not authenticated"})
			return
		}
		sess, err := s.Parse(tok)
		if err != nil {
			utilities.WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Session expired or invalid"})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
	})
}

// RequirePosition is Require plus a position check. A token whose claim
// passes is confirmed against the user's current state through load, so a
// demoted or deactivated user is refused before the token expires.
func (s *Service) RequirePosition(positions []string, load SubjectLoader, next http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		allowed[p] = struct{}{}
	}
	forbidden := func(w http.ResponseWriter) {
		utilities.WriteJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Insufficient permissions"})
	}
	return s.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := FromContext(r.Context())
		if _, ok := allowed[sess.Position]; !ok {
			forbidden(w)
			return
		}
		sub, err := load(r.Context(), sess.UserID)
		if err != nil {
			if errors.Is(err, ErrSubjectRevoked) {
				utilities.WriteJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Session expired or invalid"})
				return
			}
			utilities.WriteJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "An error occurred"})
			return
		}
		if _, ok := allowed[sub.Position]; !ok {
			forbidden(w)
			return
		}
		fresh := *sess
		fresh.Subject = sub
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), &fresh)))
	}))
}
