package entity

import "time"

// Credential is one row of the `users` table: an employee's identity,
// password hash and account state flags.
type Credential struct {
	ID                     int64      `db:"id" json:"id"`
	FirstName              string     `db:"first_name" json:"first_name"`
	LastName               string     `db:"last_name" json:"last_name"`
	Email                  string     `db:"email" json:"email"`
	PasswordHash           string     `db:"password_hash" json:"-"`
	Position               *string    `db:"position" json:"position,omitempty"`
	PhoneNumber            *string    `db:"phone_number" json:"phone_number,omitempty"`
	Active                 bool       `db:"is_active" json:"is_active"`
	Approved               bool       `db:"is_approved" json:"is_approved"`
	EmailVerified          bool       `db:"email_verified" json:"email_verified"`
	VerificationCode       *string    `db:"verification_code" json:"-"`
	VerificationCodeExpiry *time.Time `db:"verification_code_expiry" json:"-"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	LastLoginAt            *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

func (c *Credential) FullName() string {
	return c.FirstName + " " + c.LastName
}

// Role returns the assigned position or "Not Assigned".
func (c *Credential) Role() string {
	if c.Position == nil || *c.Position == "" {
		return "Not Assigned"
	}
	return *c.Position
}

// StatusText describes where the account is in the onboarding lifecycle.
// Checks run in the same order the login gate uses.
func (c *Credential) StatusText() string {
	switch {
	case !c.EmailVerified:
		return "Please verify your email"
	case !c.Approved:
		return "Your account is pending approval by an administrator"
	case c.Position == nil || *c.Position == "":
		return "Role not yet assigned"
	case !c.Active:
		return "Your account is inactive"
	default:
		return "Active"
	}
}

// ResetToken is one password reset request (`password_reset_tokens`).
type ResetToken struct {
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	Token     string    `db:"token"`
	ExpiresAt time.Time `db:"expires_at"`
	Used      bool      `db:"is_used"`
	CreatedAt time.Time `db:"created_at"`
}

// Positions an administrator may assign.
var Positions = []string{
	"Lifeguard",
	"ServiceTech",
	"Manager",
	"Supervisor",
	"SafetyAudit",
	"Foreman",
	"Laborer",
	"SuperAdmin",
}

func IsPosition(p string) bool {
	for _, v := range Positions {
		if v == p {
			return true
		}
	}
	return false
}
