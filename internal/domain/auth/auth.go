// Package auth implements the identity guard: credential verification,
// token issuance, and the Identity consumed by administrative operations.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/duyanhad/shop-api/internal/domain/user"
)

var (
	// ErrUnauthenticated is returned when no usable credential is presented.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidCredential is returned when the presented credential does not
	// match any account. Blocked accounts fail with the same error plus
	// ErrBlocked so callers can distinguish the message.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrBlocked is returned for accounts flagged as blocked.
	ErrBlocked = errors.New("account blocked")
)

// Identity is the authenticated actor consumed by the order engine and the
// administrative endpoints.
type Identity struct {
	UserID int64
	Email  string
	Role   user.Role
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == user.RoleAdmin
}

// Service authenticates accounts and issues access tokens. Passwords are
// stored as hex-encoded HMAC-SHA256 with a server-side pepper; verification
// uses a constant-time comparison.
type Service struct {
	users  user.Repository
	tokens *TokenIssuer
	pepper []byte
}

// NewService creates an auth Service.
func NewService(users user.Repository, tokens *TokenIssuer, pepper []byte) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		pepper: pepper,
	}
}

// HashPassword computes the stored form of a raw password.
func (s *Service) HashPassword(raw string) string {
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

// Register creates a customer account. The email must not be in use.
func (s *Service) Register(ctx context.Context, name, email, password string) (*user.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || password == "" {
		return nil, errors.New("name, email, and password are required")
	}

	u := &user.User{
		Name:         name,
		Email:        email,
		PasswordHash: s.HashPassword(password),
		Role:         user.RoleCustomer,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies the credential and returns the account plus a signed token.
// Blocked accounts are rejected even with a correct password.
func (s *Service) Login(ctx context.Context, email, password string) (*user.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, "", ErrInvalidCredential
		}
		return nil, "", errors.Wrap(err, "lookup user")
	}

	want, err := hex.DecodeString(u.PasswordHash)
	if err != nil {
		return nil, "", ErrInvalidCredential
	}
	mac := hmac.New(sha256.New, s.pepper)
	mac.Write([]byte(password))
	if subtle.ConstantTimeCompare(mac.Sum(nil), want) != 1 {
		return nil, "", ErrInvalidCredential
	}

	if u.Blocked {
		return nil, "", ErrBlocked
	}

	token, err := s.tokens.Issue(Identity{UserID: u.ID, Email: u.Email, Role: u.Role}, time.Now())
	if err != nil {
		return nil, "", errors.Wrap(err, "issue token")
	}
	return u, token, nil
}

// Authenticate resolves a bearer token into an Identity, re-checking the
// blocked flag against the account store so revocation takes effect before
// token expiry.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	id, err := s.tokens.Verify(token, time.Now())
	if err != nil {
		return Identity{}, ErrInvalidCredential
	}

	u, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Identity{}, ErrInvalidCredential
		}
		return Identity{}, errors.Wrap(err, "lookup user")
	}
	if u.Blocked {
		return Identity{}, ErrBlocked
	}

	// Role comes from the store, not the token, so demotions apply immediately.
	id.Role = u.Role
	return id, nil
}
