package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"secureapi/internal/auth"
	"secureapi/internal/domain"
)

const testSecret = "test-signing-secret"

type testEnv struct {
	users *fakeUserRepo
	codec *auth.TokenCodec
	svc   AuthService
	hook  *test.Hook
	clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		users: newFakeUserRepo(),
		clock: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	codec, err := auth.NewTokenCodec(testSecret, auth.WithClock(func() time.Time { return env.clock }))
	require.NoError(t, err)
	env.codec = codec

	logger, hook := test.NewNullLogger()
	env.hook = hook

	env.svc = NewAuthService(env.users, auth.NewBcryptHasher(bcrypt.MinCost), codec, AuthOptions{
		StoreTimeout: 50 * time.Millisecond,
		Logger:       logrus.NewEntry(logger),
	})
	return env
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, "alice", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Empty(t, user.PasswordHash)

	stored, err := env.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "pw", stored.PasswordHash)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$2"))
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		role     domain.Role
		want     error
	}{
		{name: "unknown role", username: "carol", password: "pw", role: "superuser", want: ErrInvalidRole},
		{name: "blank username", username: "  ", password: "pw", want: ErrInvalidInput},
		{name: "empty password", username: "carol", password: "", want: ErrInvalidInput},
		{name: "password too long", username: "carol", password: strings.Repeat("x", 73), want: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.Register(context.Background(), tt.username, tt.password, tt.role)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRegister_Duplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw", domain.RoleUser)
	require.NoError(t, err)

	_, err = env.svc.Register(ctx, "alice", "other", domain.RoleAdmin)
	assert.ErrorIs(t, err, ErrUserExists)

	stored, err := env.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, stored.Role)
}

func TestRegister_ConcurrentDuplicate(t *testing.T) {
	env := newTestEnv(t)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		exists    int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Register(context.Background(), "dave", "pw", domain.RoleUser)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrUserExists):
				exists++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, exists)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw", domain.RoleAdmin)
	require.NoError(t, err)

	token, err := env.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	claims, err := env.codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject())
	assert.Equal(t, "admin", claims.String(RoleClaim))
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw", domain.RoleUser)
	require.NoError(t, err)

	_, wrongPassword := env.svc.Login(ctx, "alice", "nope")
	_, unknownUser := env.svc.Login(ctx, "ghost", "pw")

	require.Error(t, wrongPassword)
	require.Error(t, unknownUser)
	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestLogin_RejectsSuffixBeyondHashedLength(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	password := strings.Repeat("p", 72)
	_, err := env.svc.Register(ctx, "alice", password, domain.RoleUser)
	require.NoError(t, err)

	_, err = env.svc.Login(ctx, "alice", password+"extra")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, "alice", password)
	assert.NoError(t, err)
}

func TestLogin_EmptyCredentials(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Login(context.Background(), "", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(context.Background(), "alice", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_DoesNotLogSecrets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "hunter2", domain.RoleUser)
	require.NoError(t, err)

	token, err := env.svc.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	_, err = env.svc.Login(ctx, "alice", "wrong-guess")
	require.Error(t, err)

	require.NotEmpty(t, env.hook.AllEntries())
	for _, entry := range env.hook.AllEntries() {
		line, err := entry.String()
		require.NoError(t, err)
		assert.NotContains(t, line, "hunter2")
		assert.NotContains(t, line, "wrong-guess")
		assert.NotContains(t, line, token)
	}
}

func TestLogin_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.users.err = errBackend

	_, err := env.svc.Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBackend)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok)
	assert.Equal(t, "STORE_UNAVAILABLE", oopsErr.Code())
}

func TestLogin_StoreTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.users.block = true

	start := time.Now()
	_, err := env.svc.Login(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw", domain.RoleUser)
	require.NoError(t, err)
	token, err := env.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	user, err := env.svc.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, domain.RoleUser, user.Role)
	assert.Empty(t, user.PasswordHash)
}

func TestResolve_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "alice", "pw", domain.RoleUser)
	require.NoError(t, err)
	token, err := env.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	t.Run("malformed", func(t *testing.T) {
		_, err := env.svc.Resolve(ctx, "not-a-token")
		assert.ErrorIs(t, err, auth.ErrTokenMalformed)
	})

	t.Run("missing subject", func(t *testing.T) {
		// the codec refuses to issue without a subject, so sign one by hand
		raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			auth.ExpiryClaim: env.clock.Add(time.Minute).Unix(),
		})
		signed, err := raw.SignedString([]byte(testSecret))
		require.NoError(t, err)
		_, err = env.svc.Resolve(ctx, signed)
		assert.ErrorIs(t, err, auth.ErrMissingSubject)
	})

	t.Run("user deleted", func(t *testing.T) {
		require.NoError(t, env.users.Delete(ctx, "alice"))
		_, err := env.svc.Resolve(ctx, token)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		env.clock = env.clock.Add(auth.DefaultTokenTTL)
		_, err := env.svc.Resolve(ctx, token)
		assert.ErrorIs(t, err, auth.ErrTokenExpired)
	})
}

func TestRequireRole(t *testing.T) {
	env := newTestEnv(t)

	admin := &domain.User{Username: "root", Role: domain.RoleAdmin}
	user := &domain.User{Username: "bob", Role: domain.RoleUser}

	assert.NoError(t, env.svc.RequireRole(admin, domain.RoleAdmin))
	assert.NoError(t, env.svc.RequireRole(user, domain.RoleUser))
	assert.ErrorIs(t, env.svc.RequireRole(user, domain.RoleAdmin), ErrForbidden)
	assert.ErrorIs(t, env.svc.RequireRole(admin, domain.RoleUser), ErrForbidden)
	assert.ErrorIs(t, env.svc.RequireRole(nil, domain.RoleUser), ErrForbidden)
}

func TestAuthFlow_UserCannotActAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Register(ctx, "bob", "pw", domain.RoleUser)
	require.NoError(t, err)

	token, err := env.svc.Login(ctx, "bob", "pw")
	require.NoError(t, err)

	user, err := env.svc.Resolve(ctx, token)
	require.NoError(t, err)

	assert.ErrorIs(t, env.svc.RequireRole(user, domain.RoleAdmin), ErrForbidden)
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := env.svc.Register(ctx, name, "pw", domain.RoleUser)
		require.NoError(t, err)
	}

	users, err := env.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Username)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}

	env.users.err = errBackend
	_, err = env.svc.ListUsers(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
