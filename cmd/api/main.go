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

	"callrouter-platform/internal/analysis"
	"callrouter-platform/internal/auth"
	"callrouter-platform/internal/availability"
	"callrouter-platform/internal/config"
	"callrouter-platform/internal/customer"
	"callrouter-platform/internal/escalation"
	"callrouter-platform/internal/ledger"
	"callrouter-platform/internal/routing"
	"callrouter-platform/internal/telephony"
	"callrouter-platform/internal/tenant"
	"callrouter-platform/pkg/logger"
	"callrouter-platform/pkg/utils"

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

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
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

	// Ledger: Postgres rows, optional AMQP fan-out, async recorder.
	var pub ledger.Publisher
	if cfg.Broker.URL != "" {
		amqpPub, err := ledger.NewAMQPPublisher(cfg.Broker.URL, cfg.Broker.Exchange, log)
		if err != nil {
			log.Error("broker init failed", "err", err)
			os.Exit(1)
		}
		defer amqpPub.Close()
		pub = amqpPub
	}
	ledgerSvc := ledger.NewService(ledger.NewPostgresRepo(db), pub, log)
	recorder := ledger.NewRecorder(ledgerSvc, 0, log)
	defer recorder.Close()

	// Routing core.
	directory := tenant.NewDirectory(tenant.NewRedisRepo(rdb), cfg.Routing.TenantCacheTTL, log)
	customers := customer.NewResolver(customer.NewRedisStore(rdb, 0), log)
	analyzer := analysis.NewAnalyzer()
	agents := availability.NewResolver(availability.NewRedisCounters(rdb, cfg.Routing.AgentHoldTTL), log)
	evaluator := routing.NewEvaluator(agents, log)

	transport := telephony.NewTwilioTransport(
		cfg.Telephony.TwilioAccountSID,
		cfg.Telephony.TwilioAuthToken,
		cfg.Telephony.CallerID,
		cfg.Telephony.WebhookBaseURL,
	)
	engine := escalation.NewEngine(
		transport,
		agents,
		routing.NewLedgerSink(recorder),
		cfg.Routing.EscalationAttemptTimeout,
		log,
	)

	router := routing.NewRouter(
		directory, customers, analyzer, evaluator, agents,
		engine, recorder,
		routing.Config{
			MaxEscalationLevel: cfg.Routing.MaxEscalationLevel,
			PlatformVoicemail:  cfg.Routing.PlatformVoicemail,
		},
		log,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		auth:      authManager,
		authMW:    auth.RequireAccessToken(authManager),
		router:    router,
		directory: directory,
		ledger:    ledgerSvc,
		transport: transport,
		db:        db,
		redis:     rdb,
		log:       log,
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

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
