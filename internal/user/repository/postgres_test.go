package repository

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swpuclaylee/APIFlask/internal/autherr"
	"github.com/swpuclaylee/APIFlask/internal/user/domain"
)

var userCols = []string{"id", "username", "email", "password_hash", "is_active", "is_admin",
	"password_changed_at", "last_login_at", "created_at", "updated_at"}

func newMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

func TestPostgresRepository_GetByID(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	changed := now.Add(time.Hour)

	mock.ExpectQuery("from users where id = \\$1").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "alice", "alice@example.com", "hash", true, false, changed, nil, now, now))

	u, err := repo.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)
	assert.True(t, u.IsActive)
	require.NotNil(t, u.PasswordChangedAt)
	assert.True(t, u.PasswordChangedAt.Equal(changed))
	assert.Nil(t, u.LastLoginAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByUsername_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("from users where username = \\$1").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(userCols))

	u, err := repo.GetByUsername(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_GetByEmail_DriverError(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("from users where email = \\$1").
		WillReturnError(errors.New("connection reset by peer"))

	u, err := repo.GetByEmail(context.Background(), "a@example.com")
	assert.Nil(t, u)
	assert.ErrorIs(t, err, autherr.ErrStoreUnavailable)
}

func TestPostgresRepository_Create(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	u := &domain.User{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: "h", IsActive: true, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("insert into users").
		WithArgs("u1", "alice", "alice@example.com", "h", true, false, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Create_UniqueViolation(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: ConstraintEmail})

	err := repo.Create(context.Background(), &domain.User{ID: "u1"})
	assert.ErrorIs(t, err, autherr.ErrConstraintViolation)
	assert.Equal(t, ConstraintEmail, autherr.Constraint(err))
}

func TestPostgresRepository_UpdatePassword(t *testing.T) {
	repo, mock := newMock(t)
	at := time.Now().UTC()
	mock.ExpectExec("update users\\s+set password_hash = \\$2").
		WithArgs("u1", "newhash", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword(context.Background(), "u1", "newhash", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Delete(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("delete from users where id = \\$1").WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from users where id = \\$1").WithArgs("u2").WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Delete(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(context.Background(), "u2")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_List(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	active := true

	mock.ExpectQuery("select count\\(\\*\\) from users where \\(username ilike \\$1 or email ilike \\$1\\) and is_active = \\$2").
		WithArgs("%ali\\_ce%", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery("from users where .* order by created_at, id limit \\$3 offset \\$4").
		WithArgs("%ali\\_ce%", true, 10, 20).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("u1", "ali_ce", "a@example.com", "h", true, false, nil, nil, now, now))

	page, err := repo.List(context.Background(), domain.ListFilter{Page: 3, PerPage: 10, Query: " ali_ce ", IsActive: &active})
	require.NoError(t, err)
	assert.Equal(t, 21, page.Total)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "ali_ce", page.Users[0].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_List_NoFilter(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("select count\\(\\*\\) from users$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("from users order by created_at, id limit \\$1 offset \\$2").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(userCols))

	page, err := repo.List(context.Background(), domain.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Users)
	assert.Empty(t, page.Users)
}

func TestPostgresRepository_List_HugePageClamped(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("select count\\(\\*\\) from users$").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery("from users order by created_at, id limit \\$1 offset \\$2").
		WithArgs(100, (domain.MaxPage-1)*100).
		WillReturnRows(sqlmock.NewRows(userCols))

	page, err := repo.List(context.Background(), domain.ListFilter{Page: math.MaxInt, PerPage: 100})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Empty(t, page.Users)
	assert.NoError(t, mock.ExpectationsWereMet())
}
