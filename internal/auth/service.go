package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Store is the persistence the auth service needs.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByUsername(ctx context.Context, username string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	ListByRole(ctx context.Context, role Role) ([]User, error)
	SaveRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, token string) (bool, error)
}

// Session is what a successful login or refresh returns.
type Session struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// Service registers users and issues sessions.
type Service struct {
	store  Store
	signer *Signer
}

// NewService creates a service backed by a store.
func NewService(store Store, signer *Signer) *Service {
	return &Service{store: store, signer: signer}
}

// Signer exposes the token signer for middleware.
func (s *Service) Signer() *Signer { return s.signer }

// Register creates a new account.
func (s *Service) Register(ctx context.Context, username, password, name string, role Role) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, ErrUsernameRequired
	}
	if role != RoleStudent && role != RoleTeacher {
		return User{}, ErrInvalidRole
	}
	u := User{Username: username, Name: strings.TrimSpace(name), Role: role}
	if err := u.SetPassword(password); err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, u)
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := s.store.UserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !u.CheckPassword(password) {
		return Session{}, ErrInvalidCredentials
	}
	return s.open(ctx, u)
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.signer.ParseRefresh(refreshToken)
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	live, err := s.store.ConsumeRefreshToken(ctx, refreshToken)
	if err != nil {
		return Session{}, err
	}
	if !live {
		return Session{}, ErrInvalidToken
	}
	u, err := s.store.UserByID(ctx, claims.UserID())
	if err != nil {
		return Session{}, err
	}
	return s.open(ctx, u)
}

// Profile returns the user behind an id.
func (s *Service) Profile(ctx context.Context, userID string) (User, error) {
	return s.store.UserByID(ctx, userID)
}

// UsersByRole lists accounts holding role, ordered by username.
func (s *Service) UsersByRole(ctx context.Context, role Role) ([]User, error) {
	if role != RoleStudent && role != RoleTeacher {
		return nil, ErrInvalidRole
	}
	return s.store.ListByRole(ctx, role)
}

func (s *Service) open(ctx context.Context, u User) (Session, error) {
	tokens, err := s.signer.Issue(u.ID, u.Role)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.SaveRefreshToken(ctx, u.ID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		return Session{}, err
	}
	return Session{User: u, Tokens: tokens}, nil
}
