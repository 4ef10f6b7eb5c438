package userdata

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

type UserDataRepositoryInterface interface {
	Get(ctx context.Context, q utils.DBTX, userID int64, key string) (*Entry, error)
	// Upsert inserts or replaces the entry in a single statement.
	Upsert(ctx context.Context, q utils.DBTX, entry *Entry) error
	ListByUser(ctx context.Context, q utils.DBTX, userID int64) ([]*Entry, error)
	Count(ctx context.Context, q utils.DBTX) (int64, error)
}

func NewUserDataRepository(driver string) (UserDataRepositoryInterface, error) {
	switch driver {
	case config.DriverPostgres:
		return NewPostgresRepository(), nil
	case config.DriverSQLite:
		return NewSQLiteRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

type queries struct {
	get        string
	upsert     string
	listByUser string
	count      string
}

type repository struct {
	q queries
}

func (r *repository) Get(ctx context.Context, q utils.DBTX, userID int64, key string) (*Entry, error) {
	entry := &Entry{}
	err := q.QueryRowContext(ctx, r.q.get, userID, key).Scan(
		&entry.UserID,
		&entry.Key,
		&entry.Value,
		&entry.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"key":     key,
		}).Error("Failed to get user data")
		return nil, fmt.Errorf("get user data: %w: %v", common.ErrStorageFailure, err)
	}

	return entry, nil
}

func (r *repository) Upsert(ctx context.Context, q utils.DBTX, entry *Entry) error {
	_, err := q.ExecContext(ctx, r.q.upsert,
		entry.UserID,
		entry.Key,
		entry.Value,
		entry.UpdatedAt,
	)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": entry.UserID,
			"key":     entry.Key,
		}).Error("Failed to upsert user data")
		return fmt.Errorf("upsert user data: %w: %v", common.ErrStorageFailure, err)
	}

	return nil
}

func (r *repository) ListByUser(ctx context.Context, q utils.DBTX, userID int64) ([]*Entry, error) {
	rows, err := q.QueryContext(ctx, r.q.listByUser, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list user data")
		return nil, fmt.Errorf("list user data: %w: %v", common.ErrStorageFailure, err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.UserID, &e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user data: %w: %v", common.ErrStorageFailure, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user data: %w: %v", common.ErrStorageFailure, err)
	}

	return entries, nil
}

func (r *repository) Count(ctx context.Context, q utils.DBTX) (int64, error) {
	var n int64
	if err := q.QueryRowContext(ctx, r.q.count).Scan(&n); err != nil {
		logrus.WithError(err).Error("Failed to count user data")
		return 0, fmt.Errorf("count user data: %w: %v", common.ErrStorageFailure, err)
	}
	return n, nil
}
