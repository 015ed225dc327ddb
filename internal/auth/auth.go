package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin = "admin"
	issuer    = "medbook"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Email     string    `json:"email"`
}

// Authenticator exchanges credentials for a signed session and verifies
// the resulting tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, c Credentials) (*Session, error)
	Verify(token string) (*Claims, error)
}

type Config struct {
	AdminEmail        string
	AdminPasswordHash string // bcrypt
	Secret            []byte
	TokenTTL          time.Duration
}

// adminAuthenticator knows a single administrator configured through the
// environment.
type adminAuthenticator struct {
	email string
	hash  []byte
	key   []byte
	ttl   time.Duration
	now   func() time.Time
}

// NewAdminAuthenticator returns an Authenticator for the configured admin.
// An empty secret is replaced by a random one, which invalidates tokens on
// restart.
func NewAdminAuthenticator(cfg Config) (Authenticator, error) {
	key := cfg.Secret
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	return &adminAuthenticator{
		email: strings.ToLower(strings.TrimSpace(cfg.AdminEmail)),
		hash:  []byte(cfg.AdminPasswordHash),
		key:   key,
		ttl:   ttl,
		now:   time.Now,
	}, nil
}

func (a *adminAuthenticator) Authenticate(ctx context.Context, c Credentials) (*Session, error) {
	if a.email == "" || len(a.hash) == 0 {
		return nil, ErrInvalidCredentials
	}

	email := strings.ToLower(strings.TrimSpace(c.Email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(a.email)) == 1

	// bcrypt runs even when the email is wrong
	pwErr := bcrypt.CompareHashAndPassword(a.hash, []byte(c.Password))
	if !emailOK || pwErr != nil {
		return nil, ErrInvalidCredentials
	}

	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   a.email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: a.email,
		Roles: []string{RoleAdmin},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{Token: signed, ExpiresAt: expires.UTC(), Email: a.email}, nil
}

func (a *adminAuthenticator) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
