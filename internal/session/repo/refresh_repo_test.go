package repo

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*RefreshRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewRefreshRepo(sqlx.NewDb(db, "postgres")), mock
}

func TestRefreshRepo_Save(t *testing.T) {
	r, mock := newMock(t)
	exp := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO refresh_sessions (token, user_id, client_id, expires_at)`)).
		WithArgs("tok", int64(1), "mobile", exp).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(10)))
	id, err := r.Save(context.Background(), "tok", 1, "mobile", exp)
	require.NoError(t, err)
	require.Equal(t, int64(10), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRepo_Take(t *testing.T) {
	r, mock := newMock(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE token = $1 AND expires_at > $2 RETURNING`)).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "client_id", "expires_at"}).AddRow(int64(1), int64(2), "mobile", exp))
	mock.ExpectQuery(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE token = $1`)).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "client_id", "expires_at"}))

	rs, err := r.Take(context.Background(), "tok", now)
	require.NoError(t, err)
	require.Equal(t, int64(2), rs.UserID)
	require.Equal(t, "mobile", rs.ClientID)

	_, err = r.Take(context.Background(), "tok", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRepo_Deletes(t *testing.T) {
	r, mock := newMock(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE token = $1`)).WithArgs("tok").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE user_id = $1`)).WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM refresh_sessions WHERE expires_at <= $1`)).WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	ctx := context.Background()
	require.NoError(t, r.Delete(ctx, "tok"))
	require.NoError(t, r.DeleteForUser(ctx, 4))
	n, err := r.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshRepo_Find(t *testing.T) {
	r, mock := newMock(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, client_id, expires_at FROM refresh_sessions WHERE token = $1 AND expires_at > $2`)).
		WithArgs("tok", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "client_id", "expires_at"}).AddRow(int64(1), int64(2), "mobile", now.Add(time.Hour)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, client_id, expires_at FROM refresh_sessions`)).
		WithArgs("gone", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "client_id", "expires_at"}))

	rs, err := r.Find(context.Background(), "tok", now)
	require.NoError(t, err)
	require.Equal(t, int64(2), rs.UserID)

	_, err = r.Find(context.Background(), "gone", now)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
