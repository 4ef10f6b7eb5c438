package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mstfa13/asura-backend/internal/common"
	"github.com/mstfa13/asura-backend/internal/config"
	"github.com/mstfa13/asura-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

type UserRepositoryInterface interface {
	// Create inserts the user and returns its id, or common.ErrDuplicateKey
	// when the username is taken.
	Create(ctx context.Context, q utils.DBTX, user *User) (int64, error)
	GetByUsername(ctx context.Context, q utils.DBTX, username string) (*User, error)
	List(ctx context.Context, q utils.DBTX) ([]*User, error)
	Count(ctx context.Context, q utils.DBTX) (int64, error)
}

// NewUserRepository returns the repository for the given database driver.
func NewUserRepository(driver string) (UserRepositoryInterface, error) {
	switch driver {
	case config.DriverPostgres:
		return NewPostgresRepository(), nil
	case config.DriverSQLite:
		return NewSQLiteRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// queries holds the dialect specific SQL; the scanning code is shared.
type queries struct {
	create        string
	getByUsername string
	list          string
	count         string
}

type repository struct {
	q queries
}

func (r *repository) Create(ctx context.Context, q utils.DBTX, user *User) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, r.q.create,
		user.Username,
		user.Password,
		user.CreatedAt,
	).Scan(&id)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithField("username", user.Username).Warn("Username already exists")
			return 0, common.ErrDuplicateKey
		}
		logrus.WithError(err).Error("Failed to create user")
		return 0, fmt.Errorf("create user: %w: %v", common.ErrStorageFailure, err)
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  id,
		"username": user.Username,
	}).Info("User created successfully")

	return id, nil
}

func (r *repository) GetByUsername(ctx context.Context, q utils.DBTX, username string) (*User, error) {
	user := &User{}
	err := q.QueryRowContext(ctx, r.q.getByUsername, username).Scan(
		&user.ID,
		&user.Username,
		&user.Password,
		&user.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithField("username", username).Debug("User not found")
			return nil, common.ErrNotFound
		}
		logrus.WithError(err).Error("Failed to get user by username")
		return nil, fmt.Errorf("get user: %w: %v", common.ErrStorageFailure, err)
	}

	return user, nil
}

func (r *repository) List(ctx context.Context, q utils.DBTX) ([]*User, error) {
	rows, err := q.QueryContext(ctx, r.q.list)
	if err != nil {
		logrus.WithError(err).Error("Failed to list users")
		return nil, fmt.Errorf("list users: %w: %v", common.ErrStorageFailure, err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w: %v", common.ErrStorageFailure, err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w: %v", common.ErrStorageFailure, err)
	}

	return users, nil
}

func (r *repository) Count(ctx context.Context, q utils.DBTX) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, r.q.count).Scan(&n); err != nil {
		logrus.WithError(err).Error("Failed to count users")
		return 0, fmt.Errorf("count users: %w: %v", common.ErrStorageFailure, err)
	}
	return n, nil
}
