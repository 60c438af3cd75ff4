package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/warp/backoffice/commerce"
	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is enforced at registration.
const MinPasswordLength = 6

type Service struct {
	Users  UserStore
	Tokens *TokenIssuer
	Now    func() time.Time
	NewID  func() string

	// Cost is the bcrypt cost. Zero means bcrypt.DefaultCost.
	Cost int
}

// RegisterInput carries a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// Register creates a user. Email is unique.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, &commerce.ValidationError{Field: "username", Message: "username is required"}
	}
	email := NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, &commerce.ValidationError{Field: "email", Message: "a valid email is required"}
	}
	if len(in.Password) < MinPasswordLength {
		return nil, &commerce.ValidationError{Field: "password", Message: "password is too short"}
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}

	if _, err := s.Users.GetUserByEmail(ctx, email); err == nil {
		return nil, &duplicateEmailError{email: email}
	} else if !errors.Is(err, commerce.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost())
	if err != nil {
		return nil, commerce.Internal("hash password", err)
	}

	now := s.now()
	u := User{
		ID:           commerce.UserID(s.newID()),
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// Login checks credentials and issues a token. Unknown email and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.Users.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, commerce.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, errBadCredentials
		}
		return nil, commerce.Internal("compare password", err)
	}

	token, expires, err := s.Tokens.Issue(*u)
	if err != nil {
		return nil, commerce.Internal("issue token", err)
	}
	return &Session{Token: token, ExpiresAt: expires, User: *u}, nil
}

// Authenticate verifies a bearer token and confirms the user still exists.
func (s *Service) Authenticate(ctx context.Context, token string) (Identity, error) {
	id, err := s.Tokens.Verify(token)
	if err != nil {
		return Identity{}, err
	}
	u, err := s.Users.GetUser(ctx, id.UserID)
	if errors.Is(err, commerce.ErrNotFound) {
		return Identity{}, errors.Join(commerce.ErrUnauthorized, err)
	}
	if err != nil {
		return Identity{}, err
	}
	// The stored role wins over the one baked into the token.
	return Identity{UserID: u.ID, Role: u.Role}, nil
}

func (s *Service) Get(ctx context.Context, id commerce.UserID) (*User, error) {
	return s.Users.GetUser(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.Users.ListUsers(ctx)
}

// UpdateInput holds optional changes; empty fields are left alone.
type UpdateInput struct {
	Username string
	Email    string
	Role     string
}

func (s *Service) Update(ctx context.Context, id commerce.UserID, in UpdateInput) (*User, error) {
	u, err := s.Users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(in.Username); name != "" {
		u.Username = name
	}
	if in.Email != "" {
		email := NormalizeEmail(in.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, &commerce.ValidationError{Field: "email", Message: "a valid email is required"}
		}
		if email != u.Email {
			other, err := s.Users.GetUserByEmail(ctx, email)
			switch {
			case err == nil && other.ID != u.ID:
				return nil, &duplicateEmailError{email: email}
			case err != nil && !errors.Is(err, commerce.ErrNotFound):
				return nil, err
			}
			u.Email = email
		}
	}
	if in.Role != "" {
		role, err := ParseRole(in.Role)
		if err != nil {
			return nil, err
		}
		u.Role = role
	}
	u.UpdatedAt = s.now()

	if err := s.Users.UpdateUser(ctx, *u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id commerce.UserID) error {
	return s.Users.DeleteUser(ctx, id)
}

// =============================================================================
// ERRORS
// =============================================================================

var errBadCredentials = errors.Join(commerce.ErrUnauthorized, errors.New("invalid email or password"))

type duplicateEmailError struct {
	email string
}

func (e *duplicateEmailError) Error() string {
	return "email " + e.email + " is already registered"
}

func (e *duplicateEmailError) Unwrap() error {
	return commerce.ErrDuplicateEntity
}

func (s *Service) cost() int {
	if s.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return s.Cost
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) newID() string {
	if s.NewID == nil {
		return commerce.NewID()
	}
	return s.NewID()
}
