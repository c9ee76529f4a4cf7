package repo

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	"github.com/ovaphlow/splashops/service-core/pkg/database"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("email already registered")

const credentialColumns = `id, first_name, last_name, email, password_hash, position, phone_number,
		is_active, is_approved, email_verified, verification_code, verification_code_expiry,
		created_at, last_login_at`

// UserRepo provides data access for the users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new credential row and fills ID and CreatedAt.
func (r *UserRepo) Create(ctx context.Context, c *entity.Credential) (int64, error) {
	q := `INSERT INTO users (first_name,last_name,email,password_hash,is_active,is_approved,email_verified,verification_code,verification_code_expiry)
		  VALUES (:first_name,:last_name,:email,:password_hash,:is_active,:is_approved,:email_verified,:verification_code,:verification_code_expiry)
		  RETURNING id, created_at`
	params := map[string]any{
		"first_name":               c.FirstName,
		"last_name":                c.LastName,
		"email":                    c.Email,
		"password_hash":            c.PasswordHash,
		"is_active":                c.Active,
		"is_approved":              c.Approved,
		"email_verified":           c.EmailVerified,
		"verification_code":        c.VerificationCode,
		"verification_code_expiry": c.VerificationCodeExpiry,
	}
	rows, err := r.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&c.ID, &c.CreatedAt); err != nil {
			return 0, err
		}
		return c.ID, nil
	}
	if err := rows.Err(); err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, err
	}
	return 0, errors.New("no id returned")
}

// GetByEmail returns a credential matched by email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM users WHERE email=$1`
	var c entity.Credential
	if err := r.db.GetContext(ctx, &c, q, email); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetActiveByEmail is GetByEmail restricted to active accounts.
func (r *UserRepo) GetActiveByEmail(ctx context.Context, email string) (*entity.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM users WHERE email=$1 AND is_active=true`
	var c entity.Credential
	if err := r.db.GetContext(ctx, &c, q, email); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID fetches a full credential row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM users WHERE id=$1`
	var c entity.Credential
	if err := r.db.GetContext(ctx, &c, q, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetVerificationCode overwrites any pending code for email. Reports false
// when no row matched.
func (r *UserRepo) SetVerificationCode(ctx context.Context, email, code string, expiry time.Time) (bool, error) {
	const q = `UPDATE users SET verification_code=$2, verification_code_expiry=$3 WHERE email=$1`
	res, err := r.db.ExecContext(ctx, q, email, code, expiry)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ConsumeVerificationCode marks the email verified and clears the code in one
// statement, only if code matches and has not expired at now.
func (r *UserRepo) ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) (bool, error) {
	const q = `UPDATE users SET email_verified=true, verification_code=NULL, verification_code_expiry=NULL
		WHERE email=$1 AND verification_code IS NOT NULL AND verification_code=$2 AND verification_code_expiry > $3`
	res, err := r.db.ExecContext(ctx, q, email, code, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateLastLogin stamps a successful login.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE users SET last_login_at=$2 WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, at)
	return err
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) (bool, error) {
	return r.execAffected(ctx, `UPDATE users SET password_hash=$2 WHERE id=$1`, id, passwordHash)
}

// Approve sets is_approved.
func (r *UserRepo) Approve(ctx context.Context, id int64) (bool, error) {
	return r.execAffected(ctx, `UPDATE users SET is_approved=true WHERE id=$1`, id)
}

// SetActive activates or deactivates an account.
func (r *UserRepo) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	return r.execAffected(ctx, `UPDATE users SET is_active=$2 WHERE id=$1`, id, active)
}

// AssignPosition sets the employee's position.
func (r *UserRepo) AssignPosition(ctx context.Context, id int64, position string) (bool, error) {
	return r.execAffected(ctx, `UPDATE users SET position=$2 WHERE id=$1`, id, position)
}

// Delete removes a user row. Reset tokens, refresh sessions and clock
// records cascade.
func (r *UserRepo) Delete(ctx context.Context, id int64) (bool, error) {
	return r.execAffected(ctx, `DELETE FROM users WHERE id=$1`, id)
}

// ListPending returns accounts awaiting approval, newest first.
func (r *UserRepo) ListPending(ctx context.Context) ([]entity.Credential, error) {
	q := `SELECT ` + credentialColumns + ` FROM users WHERE is_approved=false ORDER BY created_at DESC`
	out := []entity.Credential{}
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Search   string
	Position string
	Active   *bool
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// List returns accounts matching f ordered by name. Search is a
// case-insensitive substring match on first name, last name or email.
func (r *UserRepo) List(ctx context.Context, f ListFilter) ([]entity.Credential, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if v := strings.TrimSpace(f.Search); v != "" {
		p := arg("%" + likeEscaper.Replace(v) + "%")
		where = append(where, "(first_name ILIKE "+p+" OR last_name ILIKE "+p+" OR email ILIKE "+p+")")
	}
	if f.Position != "" {
		where = append(where, "position = "+arg(f.Position))
	}
	if f.Active != nil {
		where = append(where, "is_active = "+arg(*f.Active))
	}
	q := `SELECT ` + credentialColumns + ` FROM users`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY last_name, first_name, id`
	out := []entity.Credential{}
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes the administrator-editable columns of c.
func (r *UserRepo) Update(ctx context.Context, c *entity.Credential) (bool, error) {
	const q = `UPDATE users SET first_name=$2, last_name=$3, email=$4, position=$5, phone_number=$6,
		is_active=$7, is_approved=$8 WHERE id=$1`
	ok, err := r.execAffected(ctx, q, c.ID, c.FirstName, c.LastName, c.Email, c.Position, c.PhoneNumber, c.Active, c.Approved)
	if database.IsUniqueViolation(err) {
		return false, ErrDuplicateEmail
	}
	return ok, err
}

func (r *UserRepo) execAffected(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
