package user

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ovaphlow/splashops/service-core/pkg/metrics"
)

// generateCode returns n decimal digits, each drawn uniformly from 0-9.
// Leading zeros are kept.
func generateCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// IssueVerificationCode stores a fresh code for email, replacing any pending
// one, and returns it. ErrNotFound when no account has that email.
func (s *UserService) IssueVerificationCode(ctx context.Context, email string) (string, error) {
	code, err := generateCode(VerificationCodeDigits)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	ok, err := s.users.SetVerificationCode(ctx, strings.TrimSpace(email), code, s.now().Add(VerificationCodeTTL))
	if err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	return code, nil
}

// CheckVerificationCode consumes code for email. It succeeds at most once per
// issued code and only before the code's expiry.
func (s *UserService) CheckVerificationCode(ctx context.Context, email, code string) (bool, error) {
	email, code = strings.TrimSpace(email), strings.TrimSpace(code)
	if email == "" || code == "" {
		return false, nil
	}
	ok, err := s.users.ConsumeVerificationCode(ctx, email, code, s.now())
	if err != nil {
		return false, fmt.Errorf("consume code: %w", err)
	}
	return ok, nil
}

// SendVerificationCode issues a code and emails it. Unknown emails yield false.
func (s *UserService) SendVerificationCode(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	c, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup email: %w", err)
	}
	code, err := s.IssueVerificationCode(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.notifier.SendVerificationCode(ctx, c.Email, c.FirstName, code); err != nil {
		s.logger.Warnw("verification email failed", "user_id", c.ID, "err", err)
	}
	return true, nil
}

// VerifyCode confirms the caller controls email.
func (s *UserService) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	ok, err := s.CheckVerificationCode(ctx, email, code)
	switch {
	case err != nil:
		metrics.VerificationChecks.WithLabelValues("error").Inc()
		s.logger.Errorw("verification check failed", "err", err)
	case ok:
		metrics.VerificationChecks.WithLabelValues("ok").Inc()
	default:
		metrics.VerificationChecks.WithLabelValues("rejected").Inc()
	}
	return ok, err
}
