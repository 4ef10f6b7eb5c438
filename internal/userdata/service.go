package userdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstfa13/asura-backend/internal/common"
	"github.com/mstfa13/asura-backend/internal/observability"
	"github.com/mstfa13/asura-backend/internal/queue"

	"github.com/sirupsen/logrus"
)

// Cache is a read-through cache of serialized entry values. A fill carries
// the version observed by the lookup that missed and is dropped if a write
// invalidated the entry in between.
type Cache interface {
	Get(ctx context.Context, userID int64, key string) (value string, version int64, found bool, err error)
	Fill(ctx context.Context, userID int64, key, value string, version int64) (bool, error)
	Invalidate(ctx context.Context, userID int64, key string) error
}

type UserDataServiceInterface interface {
	// Get returns the stored value, or nil when nothing was stored under key.
	Get(ctx context.Context, userID int64, key string) (json.RawMessage, error)
	// Put replaces the value stored under key.
	Put(ctx context.Context, userID int64, key string, value json.RawMessage) error
}

type UserDataService struct {
	repo    UserDataRepositoryInterface
	db      *sql.DB
	cache   Cache
	events  queue.Publisher
	metrics *observability.Metrics
	now     func() time.Time
}

// NewUserDataService wires the store. cache may be nil to disable caching.
func NewUserDataService(
	repo UserDataRepositoryInterface,
	db *sql.DB,
	cache Cache,
	events queue.Publisher,
	metrics *observability.Metrics,
) *UserDataService {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &UserDataService{
		repo:    repo,
		db:      db,
		cache:   cache,
		events:  events,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserDataService) Get(ctx context.Context, userID int64, key string) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: key required", common.ErrInvalidInput)
	}

	text, version, ok, fillable := s.cachedValue(ctx, userID, key)
	if !ok {
		start := time.Now()
		entry, err := s.repo.Get(ctx, s.db, userID, key)
		s.observeQuery("user_data_get", start)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				s.recordRead("absent")
				return nil, nil
			}
			s.recordRead("error")
			return nil, err
		}
		text = entry.Value
		if fillable {
			s.fillCache(ctx, userID, key, text, version)
		}
	}

	if !json.Valid([]byte(text)) {
		s.recordRead("corrupt")
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"key":     key,
		}).Error("Stored value is not valid JSON")
		return nil, common.ErrCorruptValue
	}

	s.recordRead("found")
	return json.RawMessage(text), nil
}

func (s *UserDataService) Put(ctx context.Context, userID int64, key string, value json.RawMessage) error {
	if key == "" {
		return fmt.Errorf("%w: key required", common.ErrInvalidInput)
	}

	text, err := Canonicalize(value)
	if err != nil {
		return err
	}

	entry := &Entry{
		UserID:    userID,
		Key:       key,
		Value:     text,
		UpdatedAt: s.now(),
	}

	start := time.Now()
	err = s.repo.Upsert(ctx, s.db, entry)
	s.observeQuery("user_data_upsert", start)
	if err != nil {
		s.recordWrite("error")
		return err
	}
	s.recordWrite("success")

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID, key); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("Failed to invalidate cached user data")
		}
	}

	if err := s.events.Publish(ctx, queue.EventUserDataUpdated, queue.UserDataUpdatedPayload{
		UserID:    userID,
		Key:       key,
		UpdatedAt: entry.UpdatedAt,
	}); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to publish user data updated event")
	}

	return nil
}

// cachedValue looks the entry up in the cache. fillable reports whether a
// miss may be filled afterwards, which needs a successfully read version.
func (s *UserDataService) cachedValue(ctx context.Context, userID int64, key string) (text string, version int64, found, fillable bool) {
	if s.cache == nil {
		return "", 0, false, false
	}
	text, version, found, err := s.cache.Get(ctx, userID, key)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to read cached user data")
		return "", 0, false, false
	}
	return text, version, found, true
}

func (s *UserDataService) fillCache(ctx context.Context, userID int64, key, text string, version int64) {
	stored, err := s.cache.Fill(ctx, userID, key, text, version)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to cache user data")
		return
	}
	if !stored {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"key":     key,
		}).Debug("Skipped cache fill, entry changed during read")
	}
}

func (s *UserDataService) recordRead(result string) {
	if s.metrics != nil {
		s.metrics.DataReadsTotal.WithLabelValues(result).Inc()
	}
}

func (s *UserDataService) recordWrite(result string) {
	if s.metrics != nil {
		s.metrics.DataWritesTotal.WithLabelValues(result).Inc()
	}
}

func (s *UserDataService) observeQuery(queryType string, start time.Time) {
	if s.metrics != nil {
		s.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(start).Seconds())
	}
}
