package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"expensebook/internal/models"
)

// DefaultSessionTTL is how long sessions last (30 days).
const DefaultSessionTTL = 30 * 24 * time.Hour

// Store is the persistence the auth service needs: credentials and sessions.
type Store interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)

	CreateSession(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	ValidateSessionWithInfo(ctx context.Context, token string) (*models.SessionInfo, error)
	RenewSession(ctx context.Context, token string, newExpiresAt time.Time) error
	DeleteSession(ctx context.Context, token string) error
	CleanExpiredSessions(ctx context.Context) (int64, error)
}

// Options tunes the auth service.
type Options struct {
	SessionTTL time.Duration
	BcryptCost int
	Logger     logrus.FieldLogger
}

// Service registers users, verifies credentials and tracks sessions.
type Service struct {
	store  Store
	ttl    time.Duration
	cost   int
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewService creates a Service backed by store.
func NewService(store Store, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Service{
		store:  store,
		ttl:    opts.SessionTTL,
		cost:   opts.BcryptCost,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// SessionTTL returns the lifetime of a fresh session.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Register creates a user with a bcrypt-hashed password. It never starts a session.
func (s *Service) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &models.ValidationError{Field: "username", Err: models.ErrMissingField}
	}
	if password == "" {
		return nil, &models.ValidationError{Field: "password", Err: models.ErrMissingField}
	}

	hash, err := HashPasswordCost(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, username, hash)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return sanitizeUser(user), nil
}

// Authenticate returns the user matching username and password, or
// ErrInvalidCredentials when either is wrong.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}
	return sanitizeUser(user), nil
}

// StartSession issues a new opaque session token for user.
func (s *Service) StartSession(ctx context.Context, user *models.User) (*models.Session, error) {
	if user == nil || user.ID <= 0 {
		return nil, models.ErrAuthenticationRequired
	}

	if n, err := s.store.CleanExpiredSessions(ctx); err != nil {
		s.logger.WithError(err).Warn("clean expired sessions")
	} else if n > 0 {
		s.logger.WithField("count", n).Debug("expired sessions removed")
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	now := s.now()
	sess := &models.Session{
		Token:        token,
		UserID:       user.ID,
		ExpiresAt:    now.Add(s.ttl),
		LastActivity: now,
	}
	if err := s.store.CreateSession(ctx, sess.Token, sess.UserID, sess.ExpiresAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// EndSession invalidates token. Ending an unknown session is not an error.
func (s *Service) EndSession(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSession(ctx, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CurrentIdentity resolves the identity behind a session token.
// Sessions past the halfway point of their lifetime are extended, and the
// returned identity reports Renewed so the caller can refresh the cookie.
func (s *Service) CurrentIdentity(ctx context.Context, token string) (*models.SessionIdentity, error) {
	if token == "" {
		return nil, models.ErrAuthenticationRequired
	}

	info, err := s.store.ValidateSessionWithInfo(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrAuthenticationRequired
		}
		return nil, err
	}

	identity := &models.SessionIdentity{
		ID:       info.User.ID,
		Username: info.User.Username,
		Token:    token,
	}

	now := s.now()
	if info.ExpiresAt.Sub(now) < s.ttl/2 {
		if err := s.store.RenewSession(ctx, token, now.Add(s.ttl)); err != nil {
			// keep serving on the current session
			s.logger.WithError(err).Warn("renew session")
		} else {
			identity.Renewed = true
		}
	}
	return identity, nil
}

// GetUser returns the user with the given id, without its password hash.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func sanitizeUser(user *models.User) *models.User {
	if user == nil {
		return nil
	}
	return &models.User{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt,
	}
}
