package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"etlrepo/internal/domain"
	"etlrepo/internal/repository"
)

// UserStore reads repository accounts
type UserStore interface {
	LoadUser(ctx context.Context, login string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]*domain.User, error)
	Authenticate(ctx context.Context, login, password string) (*domain.User, error)
}

// UserService manages repository accounts
type UserService struct {
	repo     repository.Repository
	users    UserStore
	eventBus *EventBus
	logger   *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(repo repository.Repository, users UserStore, eventBus *EventBus, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, users: users, eventBus: eventBus, logger: logger}
}

// Save creates or updates an account. A non-empty Password replaces the
// stored hash.
func (s *UserService) Save(ctx context.Context, u *domain.User) error {
	if strings.TrimSpace(u.Login) == "" {
		return fmt.Errorf("user login required")
	}
	if strings.ContainsAny(u.Login, " \t/") {
		return fmt.Errorf("user login %q must not contain spaces or slashes", u.Login)
	}
	if u.ID.IsZero() {
		if existing, err := s.users.LoadUser(ctx, u.Login); err == nil {
			u.ID = existing.ID
			if u.Password == "" {
				u.PasswordHash = existing.PasswordHash
			}
		}
	}
	if u.ID.IsZero() && u.Password == "" {
		return fmt.Errorf("user %s: password required for a new user", u.Login)
	}

	if _, err := s.repo.Save(ctx, u, "save user "+u.Login); err != nil {
		return err
	}

	s.eventBus.Publish(Event{
		Type:    EventUserSaved,
		Payload: ObjectPayload{Kind: domain.KindUser.String(), ID: int64(u.ID), Name: u.Login},
	})

	return nil
}

// Get returns the account with the given login
func (s *UserService) Get(ctx context.Context, login string) (*domain.User, error) {
	return s.users.LoadUser(ctx, login)
}

// List returns every account
func (s *UserService) List(ctx context.Context) ([]*domain.User, error) {
	return s.users.ListUsers(ctx)
}

// SetEnabled enables or disables an account
func (s *UserService) SetEnabled(ctx context.Context, login string, enabled bool) error {
	u, err := s.users.LoadUser(ctx, login)
	if err != nil {
		return err
	}
	u.Enabled = enabled
	return s.Save(ctx, u)
}

// Authenticate verifies a login and password
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*domain.User, error) {
	u, err := s.users.Authenticate(ctx, login, password)
	if err != nil {
		s.logger.Info("authentication failed", zap.String("login", login))
		return nil, err
	}
	return u, nil
}

// Delete removes an account
func (s *UserService) Delete(ctx context.Context, login string) error {
	u, err := s.users.LoadUser(ctx, login)
	if err != nil {
		return err
	}
	return s.repo.DelAll(ctx, domain.KindUser, u.ID)
}
