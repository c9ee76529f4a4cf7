package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	notifentity "github.com/ovaphlow/splashops/service-core/internal/notification/entity"
	"github.com/ovaphlow/splashops/service-core/internal/session"
	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	userrepo "github.com/ovaphlow/splashops/service-core/internal/user/repo"
)

const (
	VerificationCodeDigits = 7
	VerificationCodeTTL    = 15 * time.Minute
	ResetTokenTTL          = 24 * time.Hour

	// bcrypt only reads the first 72 bytes of a password.
	MaxPasswordBytes = 72
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrPendingApproval    = errors.New("pending administrator approval")
	ErrAlreadyRegistered  = errors.New("email already registered")
	ErrNotFound           = errors.New("user not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidPosition    = errors.New("invalid position")
	ErrPasswordTooLong    = errors.New("password longer than 72 bytes")
)

// IsDenial reports whether err is one of the login gate's denial reasons
// rather than an internal failure.
func IsDenial(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrEmailNotVerified) ||
		errors.Is(err, ErrPendingApproval)
}

// Config holds tunables read from the environment.
type Config struct {
	BcryptCost int
}

func ConfigFromEnv() Config {
	cost := 12
	if v, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil && v >= 4 && v <= 31 {
		cost = v
	}
	return Config{BcryptCost: cost}
}

// Deps are the collaborators of UserService. Nil fields get defaults,
// except Users and Resets which are required.
type Deps struct {
	Users    CredentialStore
	Resets   ResetStore
	Hasher   PasswordHasher
	Notifier Notifier
	Inbox    Inbox
	Clock    clockwork.Clock
	Logger   *zap.SugaredLogger
}

// UserService orchestrates registration, login and credential lifecycle flows.
type UserService struct {
	users    CredentialStore
	resets   ResetStore
	hasher   PasswordHasher
	notifier Notifier
	inbox    Inbox
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
}

func New(d Deps) *UserService {
	if d.Hasher == nil {
		d.Hasher = BcryptHasher{Cost: 12}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Inbox == nil {
		d.Inbox = nopInbox{}
	}
	return &UserService{
		users:    d.Users,
		resets:   d.Resets,
		hasher:   d.Hasher,
		notifier: d.Notifier,
		inbox:    d.Inbox,
		clock:    d.Clock,
		logger:   d.Logger,
	}
}

// NewUserService wires the postgres-backed repos.
func NewUserService(db *sqlx.DB, cfg Config, notifier Notifier, inbox Inbox, logger *zap.SugaredLogger) *UserService {
	return New(Deps{
		Users:    userrepo.NewUserRepo(db),
		Resets:   userrepo.NewResetRepo(db),
		Hasher:   BcryptHasher{Cost: cfg.BcryptCost},
		Notifier: notifier,
		Inbox:    inbox,
		Logger:   logger,
	})
}

func (s *UserService) now() time.Time { return s.clock.Now().UTC() }

// Register creates an unapproved, unverified account and emails a
// verification code. Email delivery failures do not fail registration.
func (s *UserService) Register(ctx context.Context, firstName, lastName, email, password string) (*entity.Credential, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}
	if len(password) > MaxPasswordBytes {
		return nil, ErrPasswordTooLong
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	code, err := generateCode(VerificationCodeDigits)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	expiry := s.now().Add(VerificationCodeTTL)

	c := &entity.Credential{
		FirstName:              strings.TrimSpace(firstName),
		LastName:               strings.TrimSpace(lastName),
		Email:                  email,
		PasswordHash:           hash,
		Active:                 true,
		Approved:               false,
		EmailVerified:          false,
		VerificationCode:       &code,
		VerificationCodeExpiry: &expiry,
	}
	if _, err := s.users.Create(ctx, c); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Infow("user registered", "user_id", c.ID)

	if err := s.notifier.SendVerificationCode(ctx, c.Email, c.FirstName, code); err != nil {
		s.logger.Warnw("verification email failed", "user_id", c.ID, "err", err)
	}
	return c, nil
}

// Profile loads a credential by id.
func (s *UserService) Profile(ctx context.Context, id int64) (*entity.Credential, error) {
	c, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// Exists reports whether an account with id exists.
func (s *UserService) Exists(ctx context.Context, id int64) (bool, error) {
	if _, err := s.Profile(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns the accounts matching f for the admin user list.
func (s *UserService) List(ctx context.Context, f userrepo.ListFilter) ([]entity.Credential, error) {
	if f.Position != "" && !entity.IsPosition(f.Position) {
		return nil, ErrInvalidPosition
	}
	return s.users.List(ctx, f)
}

// UserUpdate is an administrator's edit of an account. Nil fields are left
// unchanged. An empty Position or PhoneNumber clears it.
type UserUpdate struct {
	FirstName   *string
	LastName    *string
	Email       *string
	Position    *string
	PhoneNumber *string
	Active      *bool
	Approved    *bool
}

// Update applies u to the account and returns the stored result.
func (s *UserService) Update(ctx context.Context, id int64, u UserUpdate) (*entity.Credential, error) {
	c, err := s.Profile(ctx, id)
	if err != nil {
		return nil, err
	}
	required := func(dst *string, v *string) error {
		if v == nil {
			return nil
		}
		t := strings.TrimSpace(*v)
		if t == "" {
			return ErrInvalidInput
		}
		*dst = t
		return nil
	}
	if err := required(&c.FirstName, u.FirstName); err != nil {
		return nil, err
	}
	if err := required(&c.LastName, u.LastName); err != nil {
		return nil, err
	}
	if err := required(&c.Email, u.Email); err != nil {
		return nil, err
	}
	if u.Position != nil {
		p := strings.TrimSpace(*u.Position)
		switch {
		case p == "":
			c.Position = nil
		case !entity.IsPosition(p):
			return nil, ErrInvalidPosition
		default:
			c.Position = &p
		}
	}
	if u.PhoneNumber != nil {
		c.PhoneNumber = nil
		if p := strings.TrimSpace(*u.PhoneNumber); p != "" {
			c.PhoneNumber = &p
		}
	}
	if u.Active != nil {
		c.Active = *u.Active
	}
	if u.Approved != nil {
		c.Approved = *u.Approved
	}

	ok, err := s.users.Update(ctx, c)
	if err != nil {
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	s.logger.Infow("user updated", "user_id", id)
	return c, nil
}

// ListPending returns accounts awaiting administrator approval.
func (s *UserService) ListPending(ctx context.Context) ([]entity.Credential, error) {
	return s.users.ListPending(ctx)
}

// Approve marks the account approved and sends a welcome email.
func (s *UserService) Approve(ctx context.Context, id int64) error {
	ok, err := s.users.Approve(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.logger.Infow("user approved", "user_id", id)
	if c, err := s.users.GetByID(ctx, id); err == nil {
		if err := s.notifier.SendWelcome(ctx, c.Email, c.FirstName); err != nil {
			s.logger.Warnw("welcome email failed", "user_id", id, "err", err)
		}
	}
	s.push(ctx, id, "Account approved", "Your account has been approved. You can now sign in.", notifentity.KindSuccess)
	return nil
}

// SetActive activates or deactivates an account.
func (s *UserService) SetActive(ctx context.Context, id int64, active bool) error {
	ok, err := s.users.SetActive(ctx, id, active)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.logger.Infow("user active flag changed", "user_id", id, "active", active)
	return nil
}

// AssignPosition sets the employee's role.
func (s *UserService) AssignPosition(ctx context.Context, id int64, position string) error {
	if !entity.IsPosition(position) {
		return ErrInvalidPosition
	}
	ok, err := s.users.AssignPosition(ctx, id, position)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.push(ctx, id, "Position assigned", "You have been assigned the position of "+position+".", notifentity.KindInfo)
	return nil
}

func (s *UserService) push(ctx context.Context, id int64, title, message, kind string) {
	if err := s.inbox.Push(ctx, id, title, message, kind); err != nil {
		s.logger.Warnw("in-app notification failed", "user_id", id, "err", err)
	}
}

// Delete removes the account.
func (s *UserService) Delete(ctx context.Context, id int64) error {
	ok, err := s.users.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	s.logger.Infow("user deleted", "user_id", id)
	return nil
}

type nopNotifier struct{}

func (nopNotifier) SendVerificationCode(context.Context, string, string, string) error { return nil }
func (nopNotifier) SendPasswordReset(context.Context, string, string, string) error    { return nil }
func (nopNotifier) SendWelcome(context.Context, string, string) error                  { return nil }

type nopInbox struct{}

func (nopInbox) Push(context.Context, int64, string, string, string) error { return nil }

// Subject reloads the session subject for id. Accounts that are gone or
// could not pass the login gate any more come back wrapped in
// session.ErrSubjectRevoked; other errors are lookup failures.
func (s *UserService) Subject(ctx context.Context, id int64) (session.Subject, error) {
	c, err := s.Profile(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return session.Subject{}, fmt.Errorf("%w: %w", session.ErrSubjectRevoked, err)
		}
		return session.Subject{}, err
	}
	var denied error
	switch {
	case !c.Active:
		denied = ErrInvalidCredentials
	case !c.EmailVerified:
		denied = ErrEmailNotVerified
	case !c.Approved:
		denied = ErrPendingApproval
	}
	if denied != nil {
		return session.Subject{}, fmt.Errorf("%w: %w", session.ErrSubjectRevoked, denied)
	}
	return SubjectOf(c), nil
}

// SubjectOf builds the session subject of a credential.
func SubjectOf(c *entity.Credential) session.Subject {
	sub := session.Subject{UserID: c.ID, Email: c.Email}
	if c.Position != nil {
		sub.Position = *c.Position
	}
	return sub
}
