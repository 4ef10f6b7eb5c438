package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mstfa13/asura-backend/internal/auth"
	"github.com/mstfa13/asura-backend/internal/config"
	"github.com/mstfa13/asura-backend/internal/db"
	"github.com/mstfa13/asura-backend/internal/observability"
	"github.com/mstfa13/asura-backend/internal/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret   = "test-jwt-secret"
	testAdminSecret = "test-admin-secret"
)

// recordingPublisher keeps published event types in memory.
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

type testServer struct {
	router    *gin.Engine
	publisher *recordingPublisher
	redis     *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		DB:    config.DBConfig{Driver: config.DriverSQLite},
		Redis: config.RedisConfig{CacheTTL: time.Minute},
		JWT:   config.JWTConfig{Secret: testJWTSecret, TTL: time.Hour},
		Admin: config.AdminConfig{Secret: testAdminSecret},
	}

	reg := prometheus.NewRegistry()
	publisher := &recordingPublisher{}

	router, err := SetupHandler(Dependencies{
		DB:       conn,
		Config:   cfg,
		Redis:    rdb,
		Events:   publisher,
		Metrics:  observability.NewMetrics(reg),
		Gatherer: reg,
	})
	require.NoError(t, err)

	return &testServer{router: router, publisher: publisher, redis: mr}
}

func (s *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func adminKey(key string) map[string]string {
	return map[string]string{"X-Admin-Key": key}
}

type authBody struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

func decodeAuth(t *testing.T, w *httptest.ResponseRecorder) authBody {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body authBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAliceScenario(t *testing.T) {
	s := newTestServer(t)
	verifier := auth.NewTokenService(testJWTSecret, time.Hour)

	reg := decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"pw1"}`, nil))
	login := decodeAuth(t, s.do(http.MethodPost, "/api/login", `{"username":"alice","password":"pw1"}`, nil))

	assert.Equal(t, "alice", reg.User.Username)
	assert.Equal(t, reg.User, login.User)
	for _, token := range []string{reg.Token, login.Token} {
		claims, err := verifier.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, reg.User.ID, claims.UserID)
	}

	w := s.do(http.MethodPost, "/api/data/profile", `{"age":30}`, bearer(login.Token))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/data/profile", "", bearer(login.Token))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"age":30}}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/data/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Equal(t, []string{queue.EventUserRegistered, queue.EventUserDataUpdated}, s.publisher.events)
}

func TestDataIsScopedPerUser(t *testing.T) {
	s := newTestServer(t)

	alice := decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"pw1"}`, nil))
	bob := decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"bob","password":"pw2"}`, nil))

	s.do(http.MethodPost, "/api/data/notes", `["alice"]`, bearer(alice.Token))

	w := s.do(http.MethodGet, "/api/data/notes", "", bearer(bob.Token))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":null}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/data/notes", "", bearer(alice.Token))
	assert.JSONEq(t, `{"data":["alice"]}`, w.Body.String())
}

func TestSecondWriteReplacesAndCacheIsInvalidated(t *testing.T) {
	s := newTestServer(t)
	alice := decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"pw1"}`, nil))

	s.do(http.MethodPost, "/api/data/k", `{"a":1,"b":2}`, bearer(alice.Token))
	s.do(http.MethodGet, "/api/data/k", "", bearer(alice.Token)) // fills the cache
	s.do(http.MethodPost, "/api/data/k", `{"c":3}`, bearer(alice.Token))

	w := s.do(http.MethodGet, "/api/data/k", "", bearer(alice.Token))
	assert.JSONEq(t, `{"data":{"c":3}}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/admin/stats", "", adminKey(testAdminSecret))
	assert.JSONEq(t, `{"users":1,"dataEntries":1}`, w.Body.String())
}

func TestRegistrationErrors(t *testing.T) {
	s := newTestServer(t)

	decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"pw1"}`, nil))

	w := s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"other"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Username exists"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api/register", `{"username":"carol"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/login", `{"username":"nobody","password":"x"}`, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/login", `{"username":"alice","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTamperedTokenIsForbidden(t *testing.T) {
	s := newTestServer(t)
	alice := decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"pw1"}`, nil))

	tampered := alice.Token[:len(alice.Token)-2] + "xx"
	w := s.do(http.MethodGet, "/api/data/profile", "", bearer(tampered))

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"pw1"}`, nil))
	s.do(http.MethodPost, "/api/data/profile", `{"age":30}`, bearer(alice.Token))

	w := s.do(http.MethodGet, "/api/admin/users", "", adminKey(testAdminSecret))
	require.Equal(t, http.StatusOK, w.Code)
	var users struct {
		Users []map[string]any `json:"users"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	assert.Equal(t, 1, users.Total)
	assert.Equal(t, "alice", users.Users[0]["username"])
	assert.NotContains(t, users.Users[0], "password")

	w = s.do(http.MethodGet, "/api/admin/users/1/data", "", adminKey(testAdminSecret))
	require.Equal(t, http.StatusOK, w.Code)
	var dump struct {
		UserID int64 `json:"userId"`
		Data   map[string]struct {
			Value json.RawMessage `json:"value"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dump))
	assert.Equal(t, alice.User.ID, dump.UserID)
	assert.JSONEq(t, `{"age":30}`, string(dump.Data["profile"].Value))
}

func TestAdminEndpointsRejectMissingOrWrongSecret(t *testing.T) {
	s := newTestServer(t)
	alice := decodeAuth(t, s.do(http.MethodPost, "/api/register", `{"username":"alice","password":"pw1"}`, nil))

	paths := []string{"/api/admin/users", "/api/admin/users/1/data", "/api/admin/stats"}
	headerSets := []map[string]string{
		nil,
		adminKey("wrong"),
		bearer(alice.Token),
	}

	for _, path := range paths {
		for _, headers := range headerSets {
			w := s.do(http.MethodGet, path, "", headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code, path)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		w := s.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	}

	w := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `http_requests_total{endpoint="/health",method="GET",status="200"} 1`)
}

func TestSetupHandler_UnsupportedDriver(t *testing.T) {
	_, err := SetupHandler(Dependencies{Config: &config.Config{DB: config.DBConfig{Driver: "oracle"}}})
	assert.Error(t, err)
}

func TestSetupHandler_WithoutOptionalDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	conn, err := db.OpenInMemory(context.Background())
	require.NoError(t, err)
	defer conn.Close()

	router, err := SetupHandler(Dependencies{
		DB: conn,
		Config: &config.Config{
			DB:    config.DBConfig{Driver: config.DriverSQLite},
			JWT:   config.JWTConfig{Secret: testJWTSecret, TTL: time.Hour},
			Admin: config.AdminConfig{Secret: testAdminSecret},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(`{"username":"alice","password":"pw1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
