package auth

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/duyanhad/shop-api/internal/domain/user"
)

// DefaultTokenTTL is used when the issuer is constructed with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// claims is the JWT payload carried by access tokens.
type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer with the given signing secret and
// token lifetime.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue signs a token for the identity.
func (t *TokenIssuer) Issue(id Identity, now time.Time) (string, error) {
	c := claims{
		Email: id.Email,
		Role:  string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Verify parses and validates a token, returning the embedded identity.
func (t *TokenIssuer) Verify(token string, now time.Time) (Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Identity{}, errors.Wrap(err, "parse token")
	}
	if !parsed.Valid {
		return Identity{}, errors.New("invalid token")
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return Identity{}, errors.Wrap(err, "parse subject")
	}

	return Identity{
		UserID: userID,
		Email:  c.Email,
		Role:   user.Role(c.Role),
	}, nil
}
