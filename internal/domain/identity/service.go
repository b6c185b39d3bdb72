package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carebridge/carebridge/internal/platform/auth"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Service provides business logic for user accounts and doubles as the
// identity provider the messaging core resolves connection subjects against.
type Service struct {
	users  UserRepository
	tokens *auth.TokenIssuer
}

// NewService creates a new identity service.
func NewService(users UserRepository, tokens *auth.TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

// Register creates a new account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, name, email, password, role string) (*User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q", role)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Name: name, Email: email, PasswordHash: string(hash), Role: role}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return u, token, nil
}

// ResolveUser returns the account for a subject id. The messaging core calls
// this during the websocket handshake to confirm the credential's subject
// still exists.
func (s *Service) ResolveUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile changes name and email on the caller's own account.
func (s *Service) UpdateProfile(ctx context.Context, id uuid.UUID, name, email string) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name != "" {
		u.Name = name
	}
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing.ID != id {
			return nil, ErrEmailTaken
		}
		u.Email = email
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListByRole returns accounts with the given role, paginated.
func (s *Service) ListByRole(ctx context.Context, role string, limit, offset int) ([]*User, int, error) {
	if !ValidRole(role) {
		return nil, 0, fmt.Errorf("unknown role %q", role)
	}
	return s.users.ListByRole(ctx, role, limit, offset)
}
