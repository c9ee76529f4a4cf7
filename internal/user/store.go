package user

import (
	"context"
	"time"

	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	userrepo "github.com/ovaphlow/splashops/service-core/internal/user/repo"
)

// CredentialStore is the persistence the service needs for user records.
// Lookups return sql.ErrNoRows when nothing matches.
type CredentialStore interface {
	Create(ctx context.Context, c *entity.Credential) (int64, error)
	GetByEmail(ctx context.Context, email string) (*entity.Credential, error)
	GetActiveByEmail(ctx context.Context, email string) (*entity.Credential, error)
	GetByID(ctx context.Context, id int64) (*entity.Credential, error)
	SetVerificationCode(ctx context.Context, email, code string, expiry time.Time) (bool, error)
	ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) (bool, error)
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) (bool, error)
	Approve(ctx context.Context, id int64) (bool, error)
	SetActive(ctx context.Context, id int64, active bool) (bool, error)
	AssignPosition(ctx context.Context, id int64, position string) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ListPending(ctx context.Context) ([]entity.Credential, error)
	List(ctx context.Context, f userrepo.ListFilter) ([]entity.Credential, error)
	Update(ctx context.Context, c *entity.Credential) (bool, error)
}

// ResetStore persists password reset tokens.
type ResetStore interface {
	Create(ctx context.Context, t *entity.ResetToken) error
	FindValid(ctx context.Context, token string, now time.Time) (*entity.ResetToken, error)
	Consume(ctx context.Context, token string, now time.Time, passwordHash string) (bool, error)
}

var (
	_ CredentialStore = (*userrepo.UserRepo)(nil)
	_ ResetStore      = (*userrepo.ResetRepo)(nil)
)

// Notifier delivers account emails. Delivery is best effort: callers log
// failures and carry on.
type Notifier interface {
	SendVerificationCode(ctx context.Context, to, name, code string) error
	SendPasswordReset(ctx context.Context, to, name, token string) error
	SendWelcome(ctx context.Context, to, name string) error
}

// Inbox receives in-app notifications about account changes. Delivery is
// best effort like Notifier.
type Inbox interface {
	Push(ctx context.Context, userID int64, title, message, kind string) error
}
