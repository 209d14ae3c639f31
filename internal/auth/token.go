package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of a token issued without an explicit duration.
const DefaultTokenTTL = 30 * time.Minute

// Registered claim names carried by every token.
const (
	SubjectClaim  = "sub"
	ExpiryClaim   = "exp"
	IssuedAtClaim = "iat"
	TokenIDClaim  = "jti"
)

var (
	// ErrInvalidClaims is returned when asked to issue a token without a subject.
	ErrInvalidClaims = errors.New("token claims must include a subject")
	// ErrTokenExpired is returned when the token's embedded expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned when the token does not parse or its signature does not verify.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrMissingSubject is returned when a verified token carries no subject.
	ErrMissingSubject = errors.New("token subject missing")
	// ErrEmptySecret is returned when constructing a codec without a signing secret.
	ErrEmptySecret = errors.New("token signing secret is required")
)

// Claims is the decoded claim set of a token.
type Claims map[string]any

// Subject returns the subject claim, or "" when absent or not a string.
func (c Claims) Subject() string {
	sub, _ := c[SubjectClaim].(string)
	return sub
}

// String returns the named claim when it is a string.
func (c Claims) String(name string) string {
	v, _ := c[name].(string)
	return v
}

// TokenCodec issues and validates HS256 signed bearer tokens. The secret is
// read-only after construction so a codec is safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption customises a TokenCodec.
type TokenOption func(*TokenCodec)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) TokenOption {
	return func(c *TokenCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDefaultTTL overrides DefaultTokenTTL.
func WithDefaultTTL(ttl time.Duration) TokenOption {
	return func(c *TokenCodec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewTokenCodec creates a codec signing with secret.
func NewTokenCodec(secret string, opts ...TokenOption) (*TokenCodec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	c := &TokenCodec{
		secret: []byte(secret),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the default lifetime of issued tokens.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Issue signs claims into a token expiring after ttl, or after the codec's
// default TTL when ttl is not positive. claims must carry a non-empty subject.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if claims.Subject() == "" {
		return "", ErrInvalidClaims
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.now().UTC()
	mc := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		mc[k] = v
	}
	mc[ExpiryClaim] = now.Add(ttl).Unix()
	mc[IssuedAtClaim] = now.Unix()
	if _, ok := mc[TokenIDClaim]; !ok {
		mc[TokenIDClaim] = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature, then the expiry, then the subject of
// tokenString and returns its claims. The expiry lives inside the signed
// payload so a rewritten expiry fails as ErrTokenMalformed.
func (c *TokenCodec) Decode(tokenString string) (Claims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, mapJWTError(err)
	}

	decoded := Claims(claims)
	if decoded.Subject() == "" {
		return nil, ErrMissingSubject
	}
	return decoded, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
}
