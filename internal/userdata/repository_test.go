package userdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/mstfa13/asura-backend/internal/common"
	"github.com/mstfa13/asura-backend/internal/config"
	"github.com/mstfa13/asura-backend/internal/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// insertUser creates a user row directly and returns its id.
func insertUser(t *testing.T, conn *sql.DB, username string) int64 {
	t.Helper()
	res, err := conn.Exec(`INSERT INTO users (username, password) VALUES (?, 'hash')`, username)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func entry(userID int64, key, value string) *Entry {
	return &Entry{UserID: userID, Key: key, Value: value, UpdatedAt: time.Now().UTC()}
}

func TestNewUserDataRepository(t *testing.T) {
	repo, err := NewUserDataRepository(config.DriverSQLite)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteRepository{}, repo)

	repo, err = NewUserDataRepository(config.DriverPostgres)
	require.NoError(t, err)
	assert.IsType(t, &PostgresRepository{}, repo)

	_, err = NewUserDataRepository("")
	assert.Error(t, err)
}

func TestSQLiteRepository_UpsertAndGet(t *testing.T) {
	conn := newTestDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()
	uid := insertUser(t, conn, "alice")

	_, err := repo.Get(ctx, conn, uid, "profile")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, repo.Upsert(ctx, conn, entry(uid, "profile", `{"a":1}`)))

	got, err := repo.Get(ctx, conn, uid, "profile")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got.Value)
	assert.Equal(t, uid, got.UserID)
	assert.Equal(t, "profile", got.Key)
}

func TestSQLiteRepository_UpsertReplaces(t *testing.T) {
	conn := newTestDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()
	uid := insertUser(t, conn, "alice")

	first := entry(uid, "k", `{"v":1}`)
	first.UpdatedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, conn, first))

	second := entry(uid, "k", `{"v":2}`)
	second.UpdatedAt = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, conn, second))

	got, err := repo.Get(ctx, conn, uid, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, got.Value)
	assert.True(t, got.UpdatedAt.Equal(second.UpdatedAt))

	n, err := repo.Count(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteRepository_ConcurrentUpsertsLeaveOneRow(t *testing.T) {
	conn := newTestDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()
	uid := insertUser(t, conn, "alice")

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.Upsert(ctx, conn, entry(uid, "k", fmt.Sprintf(`{"v":%d}`, i)))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := repo.ListByUser(ctx, conn, uid)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^\{"v":\d\}$`, entries[0].Value)
}

func TestSQLiteRepository_ScopedPerUser(t *testing.T) {
	conn := newTestDB(t)
	repo := NewSQLiteRepository()
	ctx := context.Background()
	alice := insertUser(t, conn, "alice")
	bob := insertUser(t, conn, "bob")

	require.NoError(t, repo.Upsert(ctx, conn, entry(alice, "k", `"alice"`)))
	require.NoError(t, repo.Upsert(ctx, conn, entry(bob, "k", `"bob"`)))
	require.NoError(t, repo.Upsert(ctx, conn, entry(alice, "a", `1`)))

	got, err := repo.Get(ctx, conn, bob, "k")
	require.NoError(t, err)
	assert.Equal(t, `"bob"`, got.Value)

	entries, err := repo.ListByUser(ctx, conn, alice)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Key)
	assert.Equal(t, "k", entries[1].Key)

	n, err := repo.Count(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLiteRepository_UpsertUnknownUser(t *testing.T) {
	conn := newTestDB(t)

	err := NewSQLiteRepository().Upsert(context.Background(), conn, entry(999, "k", `1`))
	assert.ErrorIs(t, err, common.ErrStorageFailure)
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mock
}

func TestPostgresRepository_Upsert(t *testing.T) {
	conn, mock := newMock(t)
	e := entry(1, "k", `{"a":1}`)

	mock.ExpectExec(regexp.QuoteMeta(
		"ON CONFLICT (user_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at")).
		WithArgs(int64(1), "k", `{"a":1}`, e.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgresRepository().Upsert(context.Background(), conn, e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpsertError(t *testing.T) {
	conn, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO user_data")).
		WillReturnError(errors.New("deadlock detected"))

	err := NewPostgresRepository().Upsert(context.Background(), conn, entry(1, "k", `1`))
	assert.ErrorIs(t, err, common.ErrStorageFailure)
}

func TestPostgresRepository_Get(t *testing.T) {
	conn, mock := newMock(t)
	updated := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND key = $2")).
		WithArgs(int64(1), "k").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "key", "value", "updated_at"}).
			AddRow(int64(1), "k", `[1,2]`, updated))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 AND key = $2")).
		WithArgs(int64(1), "missing").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "key", "value", "updated_at"}))

	repo := NewPostgresRepository()
	got, err := repo.Get(context.Background(), conn, 1, "k")
	require.NoError(t, err)
	assert.Equal(t, &Entry{UserID: 1, Key: "k", Value: `[1,2]`, UpdatedAt: updated}, got)

	_, err = repo.Get(context.Background(), conn, 1, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_ListByUserAndCount(t *testing.T) {
	conn, mock := newMock(t)
	updated := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 ORDER BY key")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "key", "value", "updated_at"}).
			AddRow(int64(2), "a", `1`, updated).
			AddRow(int64(2), "b", `2`, updated))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM user_data")).
		WillReturnError(errors.New("boom"))

	repo := NewPostgresRepository()
	entries, err := repo.ListByUser(context.Background(), conn, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = repo.Count(context.Background(), conn)
	assert.ErrorIs(t, err, common.ErrStorageFailure)
	assert.NoError(t, mock.ExpectationsWereMet())
}
