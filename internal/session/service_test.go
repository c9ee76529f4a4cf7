package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	repo "github.com/ovaphlow/splashops/service-core/internal/session/repo"
)

type memRefresh struct {
	mu   sync.Mutex
	next int64
	rows map[string]repo.RefreshSession
}

func newMemRefresh() *memRefresh { return &memRefresh{rows: map[string]repo.RefreshSession{}} }

func (m *memRefresh) Save(_ context.Context, token string, userID int64, clientID string, expiresAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.rows[token] = repo.RefreshSession{ID: m.next, UserID: userID, ClientID: clientID, ExpiresAt: expiresAt}
	return m.next, nil
}

func (m *memRefresh) Find(_ context.Context, token string, now time.Time) (*repo.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rows[token]
	if !ok || !rs.ExpiresAt.After(now) {
		return nil, sql.ErrNoRows
	}
	return &rs, nil
}

func (m *memRefresh) Take(_ context.Context, token string, now time.Time) (*repo.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.rows[token]
	if !ok || !rs.ExpiresAt.After(now) {
		return nil, sql.ErrNoRows
	}
	delete(m.rows, token)
	return &rs, nil
}

func (m *memRefresh) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, token)
	return nil
}

func (m *memRefresh) DeleteForUser(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.rows {
		if v.UserID == userID {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *memRefresh) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, v := range m.rows {
		if !v.ExpiresAt.After(now) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func newTestService(t *testing.T) (*Service, *memRefresh, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	store := newMemRefresh()
	svc, err := NewService(Config{Issuer: "test", AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour}, store, clock)
	require.NoError(t, err)
	return svc, store, clock
}

func TestIssueAndParse(t *testing.T) {
	svc, store, _ := newTestService(t)
	tokens, err := svc.Issue(context.Background(), Subject{UserID: 7, Email: "a@x.com", Position: "Manager"}, "mobile")
	require.NoError(t, err)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.Equal(t, int64(900), tokens.ExpiresIn)
	require.Len(t, store.rows, 1)

	sess, err := svc.Parse(tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(7), sess.UserID)
	require.Equal(t, "a@x.com", sess.Email)
	require.Equal(t, "Manager", sess.Position)
}

func TestParse_Expired(t *testing.T) {
	svc, _, clock := newTestService(t)
	tokens, err := svc.Issue(context.Background(), Subject{UserID: 1}, "")
	require.NoError(t, err)
	clock.Advance(16 * time.Minute)
	_, err = svc.Parse(tokens.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_ForeignKey(t *testing.T) {
	a, _, _ := newTestService(t)
	b, _, _ := newTestService(t)
	tokens, err := a.Issue(context.Background(), Subject{UserID: 1}, "")
	require.NoError(t, err)
	_, err = b.Parse(tokens.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_RotatesOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	first, err := svc.Issue(ctx, Subject{UserID: 3, Email: "old@x.com"}, "mobile")
	require.NoError(t, err)

	load := func(context.Context, int64) (Subject, error) {
		return Subject{UserID: 3, Email: "new@x.com", Position: "Foreman"}, nil
	}
	second, err := svc.Refresh(ctx, first.RefreshToken, load)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	sess, err := svc.Parse(second.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "Foreman", sess.Position)

	_, err = svc.Refresh(ctx, first.RefreshToken, load)
	require.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestRefresh_ExpiredOrRejectedSubject(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	tokens, err := svc.Issue(ctx, Subject{UserID: 3}, "")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, tokens.RefreshToken, func(context.Context, int64) (Subject, error) {
		return Subject{}, fmt.Errorf("%w: deactivated", ErrSubjectRevoked)
	})
	require.ErrorIs(t, err, ErrInvalidRefresh)
	require.ErrorIs(t, err, ErrSubjectRevoked)

	tokens, err = svc.Issue(ctx, Subject{UserID: 3}, "")
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)
	_, err = svc.Refresh(ctx, tokens.RefreshToken, func(context.Context, int64) (Subject, error) {
		return Subject{UserID: 3}, nil
	})
	require.ErrorIs(t, err, ErrInvalidRefresh)
	n, err := svc.PurgeExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestRevokeAll(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Issue(ctx, Subject{UserID: 1}, "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, Subject{UserID: 1}, "")
	require.NoError(t, err)
	_, err = svc.Issue(ctx, Subject{UserID: 2}, "")
	require.NoError(t, err)
	require.NoError(t, svc.RevokeAll(ctx, 1))
	require.Len(t, store.rows, 1)
}

func TestRequire(t *testing.T) {
	svc, _, _ := newTestService(t)
	tokens, err := svc.Issue(context.Background(), Subject{UserID: 9, Position: "Lifeguard"}, "")
	require.NoError(t, err)

	var got *Session
	h := svc.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer "+tokens.AccessToken)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, int64(9), got.UserID)
}

func TestRequirePosition(t *testing.T) {
	svc, _, _ := newTestService(t)
	current := map[int64]Subject{
		1: {UserID: 1, Position: "Manager"},
		2: {UserID: 2, Position: "Lifeguard"},
	}
	var loads int
	load := func(_ context.Context, id int64) (Subject, error) {
		loads++
		switch id {
		case 3:
			return Subject{}, fmt.Errorf("%w: deactivated", ErrSubjectRevoked)
		case 4:
			return Subject{}, errors.New("db down")
		}
		return current[id], nil
	}
	var got *Session
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := svc.RequirePosition([]string{"Manager"}, load, ok)

	call := func(sub Subject) int {
		tokens, err := svc.Issue(context.Background(), sub, "")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusNoContent, call(Subject{UserID: 1, Position: "Manager"}))
	require.Equal(t, "Manager", got.Position)

	loads = 0
	require.Equal(t, http.StatusForbidden, call(Subject{UserID: 1, Position: "Lifeguard"}))
	require.Equal(t, http.StatusForbidden, call(Subject{UserID: 1}))
	require.Zero(t, loads)

	// claim still says Manager but the user has been demoted
	require.Equal(t, http.StatusForbidden, call(Subject{UserID: 2, Position: "Manager"}))
	require.Equal(t, http.StatusUnauthorized, call(Subject{UserID: 3, Position: "Manager"}))
	require.Equal(t, http.StatusInternalServerError, call(Subject{UserID: 4, Position: "Manager"}))
}

func TestRefresh_LookupFailureKeepsToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()
	tokens, err := svc.Issue(ctx, Subject{UserID: 3}, "mobile")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, tokens.RefreshToken, func(context.Context, int64) (Subject, error) {
		return Subject{}, errors.New("db down")
	})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidRefresh)
	require.Len(t, store.rows, 1)

	next, err := svc.Refresh(ctx, tokens.RefreshToken, func(context.Context, int64) (Subject, error) {
		return Subject{UserID: 3}, nil
	})
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, next.RefreshToken)
	require.Len(t, store.rows, 1)
}

func TestHandler_RefreshLookupFailure(t *testing.T) {
	svc, store, _ := newTestService(t)
	tokens, err := svc.Issue(context.Background(), Subject{UserID: 5}, "")
	require.NoError(t, err)
	h := NewHandler(svc, func(context.Context, int64) (Subject, error) { return Subject{}, errors.New("db down") }, zap.NewNop().Sugar())

	rr := httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/token/refresh", strings.NewReader(`{"refreshToken":"`+tokens.RefreshToken+`"}`)))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Len(t, store.rows, 1)
}

func TestHandler_RefreshAndLogout(t *testing.T) {
	svc, store, _ := newTestService(t)
	tokens, err := svc.Issue(context.Background(), Subject{UserID: 5}, "")
	require.NoError(t, err)
	h := NewHandler(svc, func(context.Context, int64) (Subject, error) { return Subject{UserID: 5}, nil }, zap.NewNop().Sugar())

	rr := httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/token/refresh", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/token/refresh", strings.NewReader(`{"refreshToken":"`+tokens.RefreshToken+`"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, store.rows, 1)

	rr = httptest.NewRecorder()
	h.Refresh(rr, httptest.NewRequest(http.MethodPost, "/token/refresh", strings.NewReader(`{"refreshToken":"`+tokens.RefreshToken+`"}`)))
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	var live string
	for k := range store.rows {
		live = k
	}
	rr = httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(`{"refreshToken":"`+live+`"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Empty(t, store.rows)
}
