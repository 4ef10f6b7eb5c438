package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mstfa13/asura-backend/internal/config"
	"github.com/mstfa13/asura-backend/internal/user"
	"github.com/mstfa13/asura-backend/internal/userdata"
	"github.com/mstfa13/asura-backend/internal/utils"

	"github.com/sirupsen/logrus"
)

type UserSummary struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type DataItem struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Stats struct {
	Users       int64 `json:"users"`
	DataEntries int64 `json:"dataEntries"`
}

type AdminServiceInterface interface {
	ListUsers(ctx context.Context) ([]UserSummary, error)
	DumpUserData(ctx context.Context, userID int64) (map[string]DataItem, error)
	Stats(ctx context.Context) (*Stats, error)
}

type AdminService struct {
	users  user.UserRepositoryInterface
	data   userdata.UserDataRepositoryInterface
	db     *sql.DB
	txOpts *sql.TxOptions
}

func NewAdminService(
	users user.UserRepositoryInterface,
	data userdata.UserDataRepositoryInterface,
	db *sql.DB,
	driver string,
) *AdminService {
	var txOpts *sql.TxOptions
	if driver == config.DriverPostgres {
		txOpts = &sql.TxOptions{ReadOnly: true}
	}
	return &AdminService{users: users, data: data, db: db, txOpts: txOpts}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]UserSummary, error) {
	users, err := s.users.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, UserSummary{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt})
	}
	return summaries, nil
}

// DumpUserData returns every entry of the user keyed by entry key. Entries
// whose stored text is not valid JSON are returned as the raw string.
func (s *AdminService) DumpUserData(ctx context.Context, userID int64) (map[string]DataItem, error) {
	entries, err := s.data.ListByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	dump := make(map[string]DataItem, len(entries))
	for _, e := range entries {
		dump[e.Key] = DataItem{Value: decodeOrRaw(userID, e), UpdatedAt: e.UpdatedAt}
	}
	return dump, nil
}

// Stats reads both counts in one transaction so they describe the same snapshot.
func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := utils.WithTransaction(ctx, s.db, s.txOpts, func(tx *sql.Tx) error {
		var err error
		if stats.Users, err = s.users.Count(ctx, tx); err != nil {
			return err
		}
		stats.DataEntries, err = s.data.Count(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func decodeOrRaw(userID int64, e *userdata.Entry) json.RawMessage {
	if json.Valid([]byte(e.Value)) {
		return json.RawMessage(e.Value)
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"key":     e.Key,
	}).Warn("Stored value is not valid JSON, returning raw text")

	raw, _ := json.Marshal(e.Value)
	return raw
}
