package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	"github.com/ovaphlow/splashops/service-core/pkg/metrics"
)

// Login runs the login gate. Denials come back as ErrInvalidCredentials,
// ErrEmailNotVerified or ErrPendingApproval; any other error is a storage
// failure. Only a successful login writes (the last-login stamp).
func (s *UserService) Login(ctx context.Context, email, password string) (*entity.Credential, error) {
	c, err := s.login(ctx, email, password)
	metrics.LoginAttempts.WithLabelValues(loginResult(err)).Inc()
	return c, err
}

func (s *UserService) login(ctx context.Context, email, password string) (*entity.Credential, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	c, err := s.users.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// unknown and inactive accounts look like a bad password
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup credential: %w", err)
	}

	if !s.hasher.Verify(c.PasswordHash, password) {
		s.logger.Debugw("login denied", "user_id", c.ID, "reason", "password")
		return nil, ErrInvalidCredentials
	}
	// verification is checked before approval
	if !c.EmailVerified {
		s.logger.Debugw("login denied", "user_id", c.ID, "reason", "unverified")
		return nil, ErrEmailNotVerified
	}
	if !c.Approved {
		s.logger.Debugw("login denied", "user_id", c.ID, "reason", "unapproved")
		return nil, ErrPendingApproval
	}

	if s.hasher.NeedsRehash(c.PasswordHash) {
		s.rehash(ctx, c, password)
	}

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, c.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	c.LastLoginAt = &now
	s.logger.Infow("user logged in", "user_id", c.ID)
	return c, nil
}

// rehash upgrades a hash made with an outdated cost. Failures only log; the
// old hash keeps working.
func (s *UserService) rehash(ctx context.Context, c *entity.Credential, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warnw("rehash failed", "user_id", c.ID, "err", err)
		return
	}
	if _, err := s.users.UpdatePassword(ctx, c.ID, hash); err != nil {
		s.logger.Warnw("rehash store failed", "user_id", c.ID, "err", err)
		return
	}
	c.PasswordHash = hash
}

func loginResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrPendingApproval):
		return "pending_approval"
	default:
		return "error"
	}
}
