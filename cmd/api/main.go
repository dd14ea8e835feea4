package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telephony-orchestrator/internal/audit"
	"telephony-orchestrator/internal/auth"
	"telephony-orchestrator/internal/carrier"
	"telephony-orchestrator/internal/config"
	"telephony-orchestrator/internal/onboarding"
	"telephony-orchestrator/internal/secrets"
	"telephony-orchestrator/internal/session"
	"telephony-orchestrator/internal/sipbridge"
	"telephony-orchestrator/internal/webhook"
	"telephony-orchestrator/pkg/logger"
	"telephony-orchestrator/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Mgmt)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	box, err := secrets.NewBox(cfg.Secrets.Key)
	if err != nil {
		log.Error("secretbox init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	trail := audit.NewService(audit.NewMemoryRepo())

	// Platform SIP provisioning.
	sipControl := sipbridge.NewHTTPControl(cfg.SIP.ControlURL, cfg.SIP.APIKey, cfg.SIP.APISecret, cfg.Carrier.HTTPTimeout)
	sipSvc := sipbridge.NewService(sipControl, cfg.SIP.TrunkName, cfg.SIP.DispatchRuleName, cfg.SIP.RoomPrefix)

	// Carrier onboarding.
	onboardingStore := onboarding.NewPostgresStore(db)
	engine := onboarding.NewEngine(
		[]carrier.Client{
			carrier.NewTwilio(cfg.Carrier.HTTPTimeout),
			carrier.NewTelnyx(cfg.Carrier.HTTPTimeout),
			carrier.NewPlivo(cfg.Carrier.HTTPTimeout),
		},
		onboardingStore,
		box,
		sipSvc,
		trail,
		cfg.Carrier.TrunkName,
		cfg.SIP.InboundURI,
	)

	// Call-time pipeline: webhook -> session service -> dispatch.
	callStore := session.NewPostgresStore(db)
	eventStore := session.NewRedisEventStore(rdb, cfg.Webhook.EventTTL)
	sessionSvc := session.NewService(
		callStore,
		eventStore,
		onboarding.NewRouter(onboardingStore, cfg.App.DefaultAgentID),
		session.NewHTTPDispatcher(cfg.SIP.ControlURL, cfg.SIP.APIKey, cfg.SIP.APISecret, cfg.Carrier.HTTPTimeout),
		audit.NewCallNotifier(trail),
		session.Options{
			IdentityPrefix: cfg.SIP.IdentityPrefix,
			AcceptAllJoins: cfg.SIP.AcceptAllJoins,
		},
	)
	webhookHandler := webhook.NewHandler(
		webhook.NewVerifier(cfg.Webhook.Keys),
		sessionSvc,
		cfg.Webhook.Enabled,
		!cfg.IsProduction(),
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, auth.RequireToken(authManager), routeDeps{
		webhook: webhookHandler,
		mgmt:    onboarding.NewHandler(engine),
		calls:   callStore,
		db:      db,
		rdb:     rdb,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
