// Package auth manages teacher accounts and bearer tokens for the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"classrelay/internal/logging"
	"classrelay/pkg/interfaces"
	"classrelay/pkg/types"
)

var (
	// ErrInvalidCredentials covers unknown users and wrong passwords alike,
	// so login responses don't leak which usernames exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken covers missing, unknown, and expired tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
)

const minPasswordLength = 8

// UserStore is the slice of the repository the auth service needs.
type UserStore interface {
	CreateUser(ctx context.Context, user *types.User) error
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
}

type token struct {
	userID    string
	expiresAt time.Time
}

// Service issues opaque bearer tokens against bcrypt-hashed accounts.
// Tokens live in memory; a server restart invalidates them, which is
// acceptable because teachers simply log in again.
type Service struct {
	store    UserStore
	tokenTTL time.Duration

	mu     sync.Mutex
	tokens map[string]token

	log zerolog.Logger
	now func() time.Time
}

// NewService creates the auth service.
func NewService(store UserStore, tokenTTL time.Duration) *Service {
	return &Service{
		store:    store,
		tokenTTL: tokenTTL,
		tokens:   make(map[string]token),
		log:      logging.WithComponent("auth"),
		now:      time.Now,
	}
}

// Register creates a teacher account.
func (s *Service) Register(ctx context.Context, username, password string) (*types.User, error) {
	if !types.IsValidUsername(username) {
		return nil, types.ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &types.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info().Str("username", username).Msg("teacher account created")
	return user, nil
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *types.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, interfaces.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	tok := uuid.New().String()
	s.mu.Lock()
	s.tokens[tok] = token{userID: user.ID, expiresAt: s.now().Add(s.tokenTTL)}
	s.mu.Unlock()

	s.log.Info().Str("username", username).Msg("teacher logged in")
	return tok, user, nil
}

// Verify resolves a bearer token to its user ID.
func (s *Service) Verify(tok string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tok]
	if !ok {
		return "", ErrInvalidToken
	}
	if s.now().After(t.expiresAt) {
		delete(s.tokens, tok)
		return "", ErrInvalidToken
	}
	return t.userID, nil
}

// Revoke invalidates a token on logout.
func (s *Service) Revoke(tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tok)
}
