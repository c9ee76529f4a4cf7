package user

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	"github.com/ovaphlow/splashops/service-core/pkg/metrics"
	"github.com/ovaphlow/splashops/service-core/pkg/utilities"
)

// newResetToken returns 32 random bytes, base64url encoded.
func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// RequestPasswordReset creates a 24h reset token for email and hands it to
// the notifier. Unknown emails return false without creating anything.
// Earlier outstanding tokens stay valid.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	c, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.PasswordResets.WithLabelValues("request", "unknown").Inc()
			return false, nil
		}
		return false, fmt.Errorf("lookup email: %w", err)
	}

	token, err := newResetToken()
	if err != nil {
		return false, fmt.Errorf("generate token: %w", err)
	}
	now := s.now()
	t := &entity.ResetToken{
		ID:        utilities.NewSnowflakeID(),
		UserID:    c.ID,
		Token:     token,
		ExpiresAt: now.Add(ResetTokenTTL),
		CreatedAt: now,
	}
	if err := s.resets.Create(ctx, t); err != nil {
		return false, fmt.Errorf("store reset token: %w", err)
	}
	metrics.PasswordResets.WithLabelValues("request", "issued").Inc()
	s.logger.Infow("password reset requested", "user_id", c.ID, "token_id", t.ID)

	if err := s.notifier.SendPasswordReset(ctx, c.Email, c.FirstName, token); err != nil {
		s.logger.Warnw("password reset email failed", "user_id", c.ID, "err", err)
	}
	return true, nil
}

// ResetPassword sets newPassword for the owner of token if the token is
// unused and unexpired. The token flip and password write commit together.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	if newPassword == "" {
		return false, ErrInvalidInput
	}
	if len(newPassword) > MaxPasswordBytes {
		return false, ErrPasswordTooLong
	}

	t, err := s.resets.FindValid(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.PasswordResets.WithLabelValues("consume", "rejected").Inc()
			return false, nil
		}
		return false, fmt.Errorf("lookup reset token: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	ok, err := s.resets.Consume(ctx, token, s.now(), hash)
	if err != nil {
		return false, fmt.Errorf("consume reset token: %w", err)
	}
	if !ok {
		// another request consumed it between lookup and update
		metrics.PasswordResets.WithLabelValues("consume", "rejected").Inc()
		return false, nil
	}
	metrics.PasswordResets.WithLabelValues("consume", "ok").Inc()
	s.logger.Infow("password reset", "user_id", t.UserID, "token_id", t.ID)
	return true, nil
}
