package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mstfa13/asura-backend/internal/auth"
	"github.com/mstfa13/asura-backend/internal/common"
	"github.com/mstfa13/asura-backend/internal/observability"
	"github.com/mstfa13/asura-backend/internal/queue"
	"github.com/mstfa13/asura-backend/internal/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer signs bearer tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID int64, username string) (string, error)
}

type UserServiceInterface interface {
	CreateUser(ctx context.Context, username, password string) (*Identity, error)
	Register(ctx context.Context, username, password string) (*AuthResponse, error)
	Login(ctx context.Context, username, password string) (*AuthResponse, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
}

type UserService struct {
	repo    UserRepositoryInterface
	db      *sql.DB
	tokens  TokenIssuer
	events  queue.Publisher
	metrics *observability.Metrics
	now     func() time.Time
}

func NewUserService(
	repo UserRepositoryInterface,
	db *sql.DB,
	tokens TokenIssuer,
	events queue.Publisher,
	metrics *observability.Metrics,
) *UserService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &UserService{
		repo:    repo,
		db:      db,
		tokens:  tokens,
		events:  events,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateUser stores a new user with a hashed password and returns its identity.
func (s *UserService) CreateUser(ctx context.Context, username, password string) (*Identity, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password required", common.ErrInvalidInput)
	}

	hashedPassword, err := auth.GeneratePasswordHash(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: password too long", common.ErrInvalidInput)
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		Username:  username,
		Password:  hashedPassword,
		CreatedAt: s.now(),
	}

	var id int64
	err = utils.WithTransaction(ctx, s.db, nil, func(tx *sql.Tx) error {
		var err error
		id, err = s.repo.Create(ctx, tx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrDuplicateKey) {
			return nil, common.ErrDuplicateUsername
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.UsersRegisteredTotal.Inc()
	}

	if err := s.events.Publish(ctx, queue.EventUserRegistered, queue.UserRegisteredPayload{
		UserID:   id,
		Username: username,
	}); err != nil {
		logrus.WithError(err).WithField("user_id", id).Warn("Failed to publish user registered event")
	}

	return &Identity{ID: id, Username: username}, nil
}

// Register creates the user and signs them in.
func (s *UserService) Register(ctx context.Context, username, password string) (*AuthResponse, error) {
	identity, err := s.CreateUser(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.authResponse(*identity)
}

func (s *UserService) Login(ctx context.Context, username, password string) (*AuthResponse, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password required", common.ErrInvalidInput)
	}

	user, err := s.repo.GetByUsername(ctx, s.db, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.recordLogin("unknown_user")
		} else {
			s.recordLogin("error")
		}
		return nil, err
	}

	if !auth.VerifyPassword(password, user.Password) {
		s.recordLogin("bad_password")
		return nil, common.ErrInvalidCredentials
	}

	resp, err := s.authResponse(Identity{ID: user.ID, Username: user.Username})
	if err != nil {
		s.recordLogin("error")
		return nil, err
	}

	s.recordLogin("success")
	return resp, nil
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.repo.GetByUsername(ctx, s.db, username)
}

func (s *UserService) authResponse(identity Identity) (*AuthResponse, error) {
	token, err := s.tokens.Issue(identity.ID, identity.Username)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResponse{Token: token, User: identity}, nil
}

func (s *UserService) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.LoginAttemptsTotal.WithLabelValues(result).Inc()
	}
}
