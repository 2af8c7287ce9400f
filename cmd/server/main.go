package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/business/chat"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/business/search"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/backend"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/config"
	firestoreclient "github.com/caniparkhere/caniparkhere/apps/api/internal/platform/firestore"
	apirouter "github.com/caniparkhere/caniparkhere/apps/api/internal/platform/http"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/logging"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/maps"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/metrics"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/preferences"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const sweepInterval = 5 * time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load(".env.local", ".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load")
	}

	logger := logging.Setup(cfg.LogLevel, cfg.AppEnv)
	gin.SetMode(cfg.GinMode)
	m := metrics.Global()

	// Path drift against the backend is a startup error, not a runtime 404.
	paths, err := backend.NewPaths(cfg.Backend.APIPrefix, cfg.Backend.PathOverrides)
	if err != nil {
		logger.Fatal().Err(err).Msg("backend paths")
	}
	logger.Info().Str("base_url", cfg.Backend.BaseURL).Strs("paths", paths.Describe()).Msg("backend configured")

	firestoreClient, credsSource, err := firestoreclient.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("firestore init")
	}
	defer firestoreClient.Close()

	if err := firestoreclient.Ping(ctx, firestoreClient); err != nil {
		logger.Fatal().Err(err).Msg("firestore ping")
	}
	logger.Info().Str("project", cfg.Firebase.ProjectID).Str("creds", credsSource).Msg("connected to Firestore")

	var prefs preferences.Store = preferences.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, keeping preferences in memory")
		} else {
			prefs = preferences.NewRedisStore(rdb, preferences.DefaultTTL)
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("preferences stored in redis")
		}
	}

	backendClient := backend.New(nil, backend.Config{
		BaseURL: cfg.Backend.BaseURL,
		Paths:   paths,
		Timeout: cfg.Backend.Timeout,
		Metrics: m,
	})
	mapsClient := maps.New(nil, maps.Config{APIKey: cfg.Maps.APIKey})

	presets, err := search.LoadPresets(cfg.MapViewPresetsFile, cfg.Maps.Locality)
	if err != nil {
		logger.Fatal().Err(err).Msg("map view presets")
	}

	historyRepo := repository.NewHistoryRepository(firestoreClient)
	userRepo := repository.NewUserRepository(firestoreClient, backendClient)
	ticketRepo := repository.NewTicketRepository(firestoreClient)
	pinRepo := repository.NewPinRepository(firestoreClient)

	chatLog := logging.Component("chat")
	chats := chat.NewService(backendClient, userRepo, chat.Options{TTL: cfg.ChatSessionTTL, Metrics: m, Logger: &chatLog})
	go chats.Run(ctx, sweepInterval)

	mapLog := logging.Component("map")
	views := search.NewService(mapsClient, backendClient, prefs, userRepo, search.Options{Presets: presets, Metrics: m, Logger: &mapLog})
	go views.Run(ctx, sweepInterval)

	router := apirouter.NewRouter(apirouter.Deps{
		Chat:           chats,
		Maps:           views,
		History:        historyRepo,
		Users:          userRepo,
		Tickets:        ticketRepo,
		Pins:           pinRepo,
		Backend:        backendClient,
		Metrics:        m,
		Logger:         logging.Component("http"),
		AllowedOrigins: cfg.AllowedOrigins,
		Client: apirouter.ClientConfig{
			AnalyticsKey:  cfg.Analytics.Key,
			AnalyticsHost: cfg.Analytics.Host,
			Locality:      cfg.Maps.Locality,
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("server listening")

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().Msg("server exited")
}
