package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"secureapi/internal/auth"
	"secureapi/internal/domain"
	"secureapi/internal/repository"
)

// RoleClaim carries the user's role inside issued tokens. It is informational;
// authorization always uses the role stored with the user.
const RoleClaim = "role"

// DefaultStoreTimeout bounds every identity store call.
const DefaultStoreTimeout = 5 * time.Second

// TokenCodec issues and decodes bearer tokens.
type TokenCodec interface {
	Issue(claims auth.Claims, ttl time.Duration) (string, error)
	Decode(token string) (auth.Claims, error)
}

// AuthService describes registration, login and token resolution.
type AuthService interface {
	Register(ctx context.Context, username, password string, role domain.Role) (*domain.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	Resolve(ctx context.Context, token string) (*domain.User, error)
	RequireRole(user *domain.User, role domain.Role) error
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// AuthOptions tunes an AuthService.
type AuthOptions struct {
	StoreTimeout time.Duration
	Logger       *logrus.Entry
}

type authService struct {
	users        repository.UserRepository
	hasher       auth.PasswordHasher
	tokens       TokenCodec
	storeTimeout time.Duration
	log          *logrus.Entry

	dummyOnce sync.Once
	dummy     string
}

func NewAuthService(users repository.UserRepository, hasher auth.PasswordHasher, tokens TokenCodec, opts AuthOptions) AuthService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultStoreTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.New())
	}
	return &authService{
		users:        users,
		hasher:       hasher,
		tokens:       tokens,
		storeTimeout: opts.StoreTimeout,
		log:          opts.Logger.WithField("component", "auth"),
	}
}

func (s *authService) Register(ctx context.Context, username, password string, role domain.Role) (*domain.User, error) {
	username = strings.TrimSpace(username)

	if role == "" {
		role = domain.RoleUser
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrEmptyPassword) || errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.users.Create(storeCtx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			return nil, ErrUserExists
		}
		return nil, storeUnavailable("create user", err)
	}

	s.log.WithFields(logrus.Fields{"event": "user_registered", "username": username, "role": role}).Info("user registered")
	return sanitizeUser(user), nil
}

func (s *authService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	user, err := s.findUser(ctx, username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return "", err
	}

	// unknown users are checked against a throwaway digest so both failure
	// paths pay for one hash comparison
	digest := s.dummyDigest()
	if user != nil {
		digest = user.PasswordHash
	}
	valid := s.hasher.Verify(password, digest)

	if user == nil || !valid {
		s.log.WithFields(logrus.Fields{"event": "login_failed", "username": username}).Info("login rejected")
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(auth.Claims{
		auth.SubjectClaim: user.Username,
		RoleClaim:         string(user.Role),
	}, 0)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	s.log.WithFields(logrus.Fields{"event": "login_succeeded", "username": username}).Info("login accepted")
	return token, nil
}

func (s *authService) Resolve(ctx context.Context, token string) (*domain.User, error) {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, claims.Subject())
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *authService) RequireRole(user *domain.User, role domain.Role) error {
	if user == nil || user.Role != role {
		return ErrForbidden
	}
	return nil
}

func (s *authService) ListUsers(ctx context.Context) ([]domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	users, err := s.users.List(storeCtx)
	if err != nil {
		return nil, storeUnavailable("list users", err)
	}

	out := make([]domain.User, len(users))
	for i := range users {
		out[i] = *sanitizeUser(&users[i])
	}
	return out, nil
}

func (s *authService) findUser(ctx context.Context, username string) (*domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.users.GetByUsername(storeCtx, username)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	default:
		return nil, storeUnavailable("find user", err)
	}
}

func (s *authService) dummyDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.log.WithError(err).Warn("generate dummy digest")
			return
		}
		s.dummy = digest
	})
	return s.dummy
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}
