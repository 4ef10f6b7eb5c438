package handler

import (
	"database/sql"
	"net/http"

	"github.com/mstfa13/asura-backend/internal/admin"
	"github.com/mstfa13/asura-backend/internal/auth"
	"github.com/mstfa13/asura-backend/internal/cache"
	"github.com/mstfa13/asura-backend/internal/config"
	"github.com/mstfa13/asura-backend/internal/middleware"
	"github.com/mstfa13/asura-backend/internal/observability"
	"github.com/mstfa13/asura-backend/internal/queue"
	"github.com/mstfa13/asura-backend/internal/user"
	"github.com/mstfa13/asura-backend/internal/userdata"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the process resources the HTTP layer is built from.
// Redis, Events and Gatherer are optional.
type Dependencies struct {
	DB       *sql.DB
	Config   *config.Config
	Redis    *redis.Client
	Events   queue.Publisher
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
}

// SetupHandler initializes all dependencies and routes
func SetupHandler(deps Dependencies) (*gin.Engine, error) {
	cfg := deps.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	if deps.Metrics != nil {
		r.Use(middleware.PrometheusMiddleware(deps.Metrics))
	}

	// Initialize repositories
	userRepo, err := user.NewUserRepository(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}
	dataRepo, err := userdata.NewUserDataRepository(cfg.DB.Driver)
	if err != nil {
		return nil, err
	}

	var dataCache userdata.Cache
	if deps.Redis != nil {
		dataCache = cache.NewDataCache(deps.Redis, cfg.Redis.CacheTTL, deps.Metrics)
	}

	// Initialize services
	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL)
	userService := user.NewUserService(userRepo, deps.DB, tokens, deps.Events, deps.Metrics)
	dataService := userdata.NewUserDataService(dataRepo, deps.DB, dataCache, deps.Events, deps.Metrics)
	adminService := admin.NewAdminService(userRepo, dataRepo, deps.DB, cfg.DB.Driver)

	// Initialize controllers
	userController := user.NewUserController(userService)
	dataController := userdata.NewUserDataController(dataService)
	adminController := admin.NewAdminController(adminService)

	setupRoutes(r, routes{
		users:       userController,
		data:        dataController,
		admin:       adminController,
		tokens:      tokens,
		adminSecret: cfg.Admin.Secret,
		gatherer:    deps.Gatherer,
	})

	return r, nil
}

type routes struct {
	users       *user.UserController
	data        *userdata.UserDataController
	admin       *admin.AdminController
	tokens      middleware.TokenVerifier
	adminSecret string
	gatherer    prometheus.Gatherer
}

// setupRoutes configures all application routes
func setupRoutes(r *gin.Engine, rt routes) {
	r.GET("/health", health)

	if rt.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.GET("/health", health)

	// Public routes - Authentication
	api.POST("/register", rt.users.Register)
	api.POST("/login", rt.users.Login)

	// Protected routes - per-user data
	data := api.Group("/data")
	data.Use(middleware.AuthMiddleware(rt.tokens))
	{
		data.GET("/:key", rt.data.GetData)
		data.POST("/:key", rt.data.PutData)
	}

	// Admin routes - shared secret, no bearer token
	adminGroup := api.Group("/admin")
	adminGroup.Use(middleware.AdminMiddleware(rt.adminSecret))
	{
		adminGroup.GET("/users", rt.admin.ListUsers)
		adminGroup.GET("/users/:userId/data", rt.admin.UserData)
		adminGroup.GET("/stats", rt.admin.Stats)
	}
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
