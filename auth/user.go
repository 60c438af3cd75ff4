/*
Package auth provides user accounts, password hashing and bearer tokens.

PURPOSE:
  The back office needs to know who is calling and whether they are staff.
  This package registers users, verifies passwords with bcrypt and issues
  short-lived HS256 JWTs carrying the user id and role.

ROLES:
  employee: full back-office access (catalog, invoices, history, reports)
  customer: may browse products and buy

SEE ALSO:
  - token.go: JWT issuing and verification
  - api/middleware.go: bearer parsing and role checks
*/
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/backoffice/commerce"
)

type Role string

const (
	RoleEmployee Role = "employee"
	RoleCustomer Role = "customer"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleEmployee:
		return RoleEmployee, nil
	case RoleCustomer, "":
		return RoleCustomer, nil
	}
	return "", &commerce.ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", s)}
}

type User struct {
	ID           commerce.UserID
	Username     string
	Email        string
	Role         Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserStore persists users. Email is unique: CreateUser and UpdateUser
// return an error wrapping commerce.ErrDuplicateEntity on a clash.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id commerce.UserID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id commerce.UserID) error
}

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
