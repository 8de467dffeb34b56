package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/nomina/internal/shared"
)

// Service wraps authentication business rules. It is the Provider used by Policy.
type Service struct {
	repo   Repository
	issuer *Issuer
}

// NewService constructs a new Service.
func NewService(repo Repository, issuer *Issuer) *Service {
	return &Service{repo: repo, issuer: issuer}
}

// Authenticate validates email/password credentials and issues a signed credential.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Grant, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Grant{}, shared.ErrInvalidCredentials
		}
		return Grant{}, err
	}
	if !user.IsActive || user.DeletedAt != nil || !user.Role.Valid() {
		return Grant{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Grant{}, shared.ErrInvalidCredentials
	}
	principal := user.Principal()
	credential, _, err := s.issuer.Issue(principal)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Credential: credential, Principal: principal}, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, sess *Session, ip, ua string) error {
	return s.repo.CreateSession(ctx, sess.ID, sess.Principal.ID, sess.ExpiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// HashPassword produces a bcrypt hash suitable for users.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

var _ Provider = (*Service)(nil)
