package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secureapi/internal/domain"
	"secureapi/internal/repository"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(mock.Close)
	return mock
}

func TestUserRepository_Init(t *testing.T) {
	mock := newMock(t)
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS users`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, NewUserRepository(mock).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   error
		errMsg    string
	}{
		{
			name: "inserts user with default role",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs("alice", "digest", "user", pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation maps to duplicate user",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs("alice", "digest", "user", pgxmock.AnyArg()).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr: repository.ErrDuplicateUser,
		},
		{
			name: "other failures are wrapped",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs("alice", "digest", "user", pgxmock.AnyArg()).
					WillReturnError(errors.New("connection refused"))
			},
			errMsg: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setupMock(mock)

			user := &domain.User{Username: "alice", PasswordHash: "digest"}
			err := NewUserRepository(mock).Create(context.Background(), user)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.errMsg != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.NotErrorIs(t, err, repository.ErrDuplicateUser)
			default:
				require.NoError(t, err)
				assert.Equal(t, domain.RoleUser, user.Role)
			}
			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestUserRepository_GetByUsername(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT username, hashed_password, role, created_at\s+FROM users\s+WHERE username = \$1`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"username", "hashed_password", "role", "created_at"}).
				AddRow("alice", "digest", "admin", created))

		user, err := NewUserRepository(mock).GetByUsername(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, domain.RoleAdmin, user.Role)
		assert.Equal(t, created, user.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT username`).
			WithArgs("ghost").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewUserRepository(mock).GetByUsername(context.Background(), "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		oopsErr, ok := oops.AsOops(err)
		require.True(t, ok)
		assert.Equal(t, "USER_NOT_FOUND", oopsErr.Code())
	})

	t.Run("query failure", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT username`).
			WithArgs("alice").
			WillReturnError(errors.New("timeout"))

		_, err := NewUserRepository(mock).GetByUsername(context.Background(), "alice")
		require.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestUserRepository_List(t *testing.T) {
	mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT username, hashed_password, role, created_at\s+FROM users\s+ORDER BY username`).
		WillReturnRows(pgxmock.NewRows([]string{"username", "hashed_password", "role", "created_at"}).
			AddRow("amy", "d1", "admin", now).
			AddRow("bob", "d2", "user", now))

	users, err := NewUserRepository(mock).List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "amy", users[0].Username)
	assert.Equal(t, domain.RoleUser, users[1].Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Delete(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM users WHERE username = \$1`).
			WithArgs("bob").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, NewUserRepository(mock).Delete(context.Background(), "bob"))
	})

	t.Run("missing", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectExec(`DELETE FROM users`).
			WithArgs("ghost").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := NewUserRepository(mock).Delete(context.Background(), "ghost")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}
