package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Role determines which operations an account may perform.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrEmailTaken is returned on registration with an already-used email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is an account that can place orders or, with the admin role, manage
// the catalog and order lifecycle. PasswordHash is a keyed hash, never the
// raw credential.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Blocked      bool
	CreatedAt    time.Time
}

// Repository defines persistence operations for user accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	SetBlocked(ctx context.Context, id int64, blocked bool) error
}
