package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/psds-microservice/onair-service/internal/config"
	"github.com/psds-microservice/onair-service/internal/database"
	"github.com/psds-microservice/onair-service/internal/handler"
	"github.com/psds-microservice/onair-service/internal/identity"
	"github.com/psds-microservice/onair-service/internal/livekit"
	"github.com/psds-microservice/onair-service/internal/realtime"
	"github.com/psds-microservice/onair-service/internal/router"
	"github.com/psds-microservice/onair-service/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

// TokenIssuer is the issuer name of bearer tokens this service accepts.
const TokenIssuer = "onair-service"

// API is the HTTP + WebSocket API application.
type API struct {
	cfg    *config.Config
	srv    *http.Server
	db     *gorm.DB
	logger *zap.Logger
	hub    *realtime.Hub
	bridge *realtime.ValkeyBridge
}

// NewLogger builds the process logger: development encoder outside
// production, level from LOG_LEVEL.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.AppEnv == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		lvl, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}

// OpenDatabase brings the schema up to date and opens the store:
// golang-migrate for PostgreSQL, AutoMigrate for SQLite.
func OpenDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	if cfg.DBDriver == config.DriverPostgres {
		if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := database.Open(cfg.DBDriver, cfg.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if cfg.DBDriver == config.DriverSQLite {
		if err := database.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}
	return db, nil
}

// NewAPI creates the API application: validates config, runs migrations, opens DB, builds router.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	db, err := OpenDatabase(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := service.NewMetrics(registry)

	hub := realtime.NewHub(cfg.WSReadBufferSize, cfg.WSWriteBufferSize, logger.Named("hub"))
	var transport realtime.Transport = hub
	var bridge *realtime.ValkeyBridge
	if cfg.ValkeyAddr != "" {
		client, err := realtime.DialValkey(cfg.ValkeyAddr)
		if err != nil {
			return nil, fmt.Errorf("valkey: %w", err)
		}
		bridge = realtime.NewValkeyBridge(client, cfg.ValkeyChannelPrefix, hub, logger.Named("valkey"))
		transport = bridge
	}

	opts := []service.Option{service.WithMetrics(metrics), service.WithHistoryLimit(cfg.RoomHistoryLimit)}
	profiles := identity.NewProfileStore(db)
	catalog := service.NewRoomCatalog(db, profiles, logger.Named("rooms"), opts...)
	members := service.NewMembershipService(db, catalog, profiles, transport, logger.Named("members"), opts...)
	ledger := service.NewAirtimeLedger(db, logger.Named("airtime"), opts...)
	issuer := livekit.NewIssuer(livekit.Config{
		APIKey:      cfg.LiveKitAPIKey,
		APISecret:   cfg.LiveKitAPISecret,
		URL:         cfg.LiveKitURL,
		PlaybackURL: cfg.LiveKitPlaybackURL,
	})
	if !cfg.LiveKitConfigured() {
		logger.Warn("livekit credentials missing: token endpoints will answer 400")
	}
	live := service.NewLiveService(db, ledger, issuer, transport, cfg.LiveKitBroadcastRoom, logger.Named("live"), opts...)

	handlerLog := logger.Named("http")
	r := router.New(router.Handlers{
		Rooms:    handler.NewRoomHandler(catalog, members, cfg.WSBaseURL, handlerLog),
		Messages: handler.NewMessageHandler(members, handlerLog),
		Airtime:  handler.NewAirtimeHandler(ledger, handlerLog),
		LiveKit:  handler.NewLiveKitHandler(issuer, handlerLog),
		Live:     handler.NewLiveHandler(live, cfg.WSBaseURL, handlerLog),
		Profile:  handler.NewProfileHandler(profiles, ledger, handlerLog),
		Realtime: handler.NewRealtimeWSHandler(hub, members, cfg.WSMaxMessageSize, handlerLog),
		Health:   handler.NewHealthHandler(pingDB(db)),
	}, handler.RequireUser(identity.NewJWTProvider(cfg.AuthJWTSecret, TokenIssuer)), registry)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, logger: logger, hub: hub, bridge: bridge}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled; then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	defer func() { _ = a.logger.Sync() }()

	addr := a.srv.Addr
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Metrics:       %s/metrics", base)
	log.Printf("  Rooms:         %s/room?type=alumni|year", base)
	log.Printf("  Live:          %s/live/start", base)
	log.Printf("  WebSocket:     ws://%s:%s/ws/rooms/:id", host, a.cfg.HTTPPort)

	if a.bridge != nil {
		go func() {
			if err := a.bridge.Run(ctx); err != nil {
				a.logger.Error("valkey bridge stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		a.close()
		return fmt.Errorf("http: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.hub.Close()
	err := a.srv.Shutdown(shutdownCtx)
	a.close()
	if err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (a *API) close() {
	if a.bridge != nil {
		a.bridge.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func pingDB(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
