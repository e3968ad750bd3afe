package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/config"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/database"
	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/observability"

	"github.com/redis/go-redis/v9"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Stores        *database.Stores
	Redis         redis.UniversalClient

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, stores *database.Stores, redisClient redis.UniversalClient) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Stores:                       stores,
		Redis:                        redisClient,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
	}
}
