package user

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/splashops/service-core/internal/user/entity"
	userrepo "github.com/ovaphlow/splashops/service-core/internal/user/repo"
)

// memDB mirrors the conditional statements of the postgres repos.
type memDB struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*entity.Credential
	tokens map[string]*entity.ResetToken
	fail   error
}

func newMemDB() *memDB {
	return &memDB{users: map[int64]*entity.Credential{}, tokens: map[string]*entity.ResetToken{}}
}

type memUsers struct{ db *memDB }
type memResets struct{ db *memDB }

func (m *memDB) byEmail(email string) *entity.Credential {
	for _, u := range m.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func clone(c *entity.Credential) *entity.Credential {
	cp := *c
	return &cp
}

func (s memUsers) Create(_ context.Context, c *entity.Credential) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.fail != nil {
		return 0, s.db.fail
	}
	if s.db.byEmail(c.Email) != nil {
		return 0, userrepo.ErrDuplicateEmail
	}
	s.db.nextID++
	c.ID = s.db.nextID
	c.CreatedAt = time.Now().UTC()
	s.db.users[c.ID] = clone(c)
	return c.ID, nil
}

func (s memUsers) GetByEmail(_ context.Context, email string) (*entity.Credential, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	if u := s.db.byEmail(email); u != nil {
		return clone(u), nil
	}
	return nil, sql.ErrNoRows
}

func (s memUsers) GetActiveByEmail(ctx context.Context, email string) (*entity.Credential, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (s memUsers) GetByID(_ context.Context, id int64) (*entity.Credential, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	if u, ok := s.db.users[id]; ok {
		return clone(u), nil
	}
	return nil, sql.ErrNoRows
}

func (s memUsers) SetVerificationCode(_ context.Context, email, code string, expiry time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	u := s.db.byEmail(email)
	if u == nil {
		return false, nil
	}
	u.VerificationCode = &code
	u.VerificationCodeExpiry = &expiry
	return true, nil
}

func (s memUsers) ConsumeVerificationCode(_ context.Context, email, code string, now time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.fail != nil {
		return false, s.db.fail
	}
	u := s.db.byEmail(email)
	if u == nil || u.VerificationCode == nil || *u.VerificationCode != code || !u.VerificationCodeExpiry.After(now) {
		return false, nil
	}
	u.EmailVerified = true
	u.VerificationCode = nil
	u.VerificationCodeExpiry = nil
	return true, nil
}

func (s memUsers) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	return s.update(id, func(u *entity.Credential) { u.LastLoginAt = &at })
}

func (s memUsers) UpdatePassword(_ context.Context, id int64, hash string) (bool, error) {
	return s.updated(id, func(u *entity.Credential) { u.PasswordHash = hash })
}

func (s memUsers) Approve(_ context.Context, id int64) (bool, error) {
	return s.updated(id, func(u *entity.Credential) { u.Approved = true })
}

func (s memUsers) SetActive(_ context.Context, id int64, active bool) (bool, error) {
	return s.updated(id, func(u *entity.Credential) { u.Active = active })
}

func (s memUsers) AssignPosition(_ context.Context, id int64, position string) (bool, error) {
	return s.updated(id, func(u *entity.Credential) { u.Position = &position })
}

func (s memUsers) Delete(_ context.Context, id int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[id]; !ok {
		return false, nil
	}
	delete(s.db.users, id)
	return true, nil
}

func (s memUsers) ListPending(_ context.Context) ([]entity.Credential, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []entity.Credential{}
	for _, u := range s.db.users {
		if !u.Approved {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s memUsers) List(_ context.Context, f userrepo.ListFilter) ([]entity.Credential, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.fail != nil {
		return nil, s.db.fail
	}
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := []entity.Credential{}
	for _, u := range s.db.users {
		hay := strings.ToLower(u.FirstName + "\x00" + u.LastName + "\x00" + u.Email)
		if needle != "" && !strings.Contains(hay, needle) {
			continue
		}
		if f.Position != "" && (u.Position == nil || *u.Position != f.Position) {
			continue
		}
		if f.Active != nil && u.Active != *f.Active {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memUsers) Update(_ context.Context, c *entity.Credential) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.fail != nil {
		return false, s.db.fail
	}
	u, ok := s.db.users[c.ID]
	if !ok {
		return false, nil
	}
	if other := s.db.byEmail(c.Email); other != nil && other.ID != c.ID {
		return false, userrepo.ErrDuplicateEmail
	}
	u.FirstName, u.LastName, u.Email = c.FirstName, c.LastName, c.Email
	u.Position, u.PhoneNumber = c.Position, c.PhoneNumber
	u.Active, u.Approved = c.Active, c.Approved
	return true, nil
}

func (s memUsers) update(id int64, fn func(*entity.Credential)) error {
	ok, err := s.updated(id, fn)
	if err == nil && !ok {
		return errors.New("no row")
	}
	return err
}

func (s memUsers) updated(id int64, fn func(*entity.Credential)) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.fail != nil {
		return false, s.db.fail
	}
	u, ok := s.db.users[id]
	if !ok {
		return false, nil
	}
	fn(u)
	return true, nil
}

func (s memResets) Create(_ context.Context, t *entity.ResetToken) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	cp := *t
	s.db.tokens[t.Token] = &cp
	return nil
}

func (s memResets) FindValid(_ context.Context, token string, now time.Time) (*entity.ResetToken, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[token]
	if !ok || t.Used || !t.ExpiresAt.After(now) {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (s memResets) Consume(_ context.Context, token string, now time.Time, hash string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[token]
	if !ok || t.Used || !t.ExpiresAt.After(now) {
		return false, nil
	}
	u, ok := s.db.users[t.UserID]
	if !ok {
		return false, nil
	}
	t.Used = true
	u.PasswordHash = hash
	return true, nil
}

type sentMail struct {
	kind, to, secret string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) record(kind, to, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, to: to, secret: secret})
	return n.err
}

func (n *recordingNotifier) SendVerificationCode(_ context.Context, to, _, code string) error {
	return n.record("code", to, code)
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, to, _, token string) error {
	return n.record("reset", to, token)
}

func (n *recordingNotifier) SendWelcome(_ context.Context, to, _ string) error {
	return n.record("welcome", to, "")
}

func (n *recordingNotifier) last(kind string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i].secret
		}
	}
	return ""
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.kind == kind {
			c++
		}
	}
	return c
}

type pushed struct {
	userID      int64
	title, kind string
}

type recordingInbox struct {
	mu   sync.Mutex
	msgs []pushed
	err  error
}

func (b *recordingInbox) Push(_ context.Context, userID int64, title, _, kind string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, pushed{userID: userID, title: title, kind: kind})
	return b.err
}
