package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/radiology-portal/internal/config"
	"github.com/iliyamo/radiology-portal/internal/database"
	"github.com/iliyamo/radiology-portal/internal/handler"
	"github.com/iliyamo/radiology-portal/internal/jobs"
	"github.com/iliyamo/radiology-portal/internal/logger"
	"github.com/iliyamo/radiology-portal/internal/queue"
	"github.com/iliyamo/radiology-portal/internal/repository"
	"github.com/iliyamo/radiology-portal/internal/router"
	"github.com/iliyamo/radiology-portal/internal/service"
	"github.com/iliyamo/radiology-portal/internal/tracing"
	"github.com/iliyamo/radiology-portal/internal/utils"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.New(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, log, "radiology-portal", cfg.Env)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// 3. Database: pool, schema, optional seed data
	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	if err := seed(ctx, cfg, db, log); err != nil {
		return err
	}

	// 4. Redis backs rate limiting and the reference-data cache; optional
	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		log.Warn("redis unavailable, using in-process rate limits and no cache", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// 5. Repositories
	users := repository.NewUserRepo(db)
	units := repository.NewUnitRepo(db)
	studies := repository.NewStudyRepo(db)
	reports := repository.NewReportRepo(db)
	templates := repository.NewTemplateRepo(db)
	audits := repository.NewAuditRepo(db)
	tokens := repository.NewTokenRepo(db)

	// 6. Services
	issuer, err := utils.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}
	auth := service.NewAuthService(users, issuer, tokens)

	var pub service.EventPublisher
	if cfg.AMQPURL != "" {
		p := queue.NewPublisher(cfg.AMQPURL, cfg.AuditQueue)
		defer p.Close()
		pub = p

		go func() {
			if err := queue.StartAuditConsumer(ctx, cfg.AMQPURL, cfg.AuditQueue, audits, log); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", zap.Error(err))
			}
		}()
	}
	auditor := service.NewAuditService(pub, audits, log)

	sched, err := jobs.NewScheduler(tokens, cfg.PurgeSchedule, cfg.DBTimeout, log)
	if err != nil {
		return fmt.Errorf("purge schedule: %w", err)
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	// 7. Handlers and routes
	handler.StorageTimeout = cfg.DBTimeout
	e, err := router.New(router.Handlers{
		Auth:      handler.NewAuthHandler(auth, users, auditor, cfg.Production(), cfg.BcryptCost),
		Dashboard: handler.NewDashboardHandler(studies, audits),
		Studies:   handler.NewStudyHandler(studies, auditor),
		Reports:   handler.NewReportHandler(reports, auditor),
		Templates: handler.NewTemplateHandler(templates),
		Units:     handler.NewUnitHandler(units, auditor),
		Users:     handler.NewUserHandler(users, units, auditor, cfg.BcryptCost),
		Audit:     handler.NewAuditHandler(audits),
	}, router.Deps{
		Verifier:    issuer,
		Revocations: tokens,
		Timeout:     cfg.DBTimeout,
		RateLimit:   config.LoadRateLimitConfig(),
		Cache:       config.LoadCacheConfig(),
		Redis:       rdb,
		Log:         log,
		Production:  cfg.Production(),
		CORSOrigins: cfg.CORSOrigins,
	})
	if err != nil {
		return err
	}

	// 8. Serve until a signal arrives, then drain
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, "radiology-portal"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// seed creates the bootstrap admin and, outside production, the demo data.
// Both only touch an empty users table.
func seed(ctx context.Context, cfg config.Config, db *sql.DB, log *zap.Logger) error {
	if cfg.SeedDemo {
		hash, err := utils.HashPassword(database.DemoPassword, cfg.BcryptCost)
		if err != nil {
			return err
		}
		loaded, err := database.SeedDemo(ctx, db, hash, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		if loaded {
			log.Info("demo dataset loaded")
		}
	}

	if cfg.SeedEmail == "" || cfg.SeedPassword == "" {
		return nil
	}
	hash, err := utils.HashPassword(cfg.SeedPassword, cfg.BcryptCost)
	if err != nil {
		return err
	}
	created, err := database.SeedAdmin(ctx, db, uuid.NewString(), repository.NormalizeEmail(cfg.SeedEmail), hash)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info("bootstrap admin created", zap.String("email", cfg.SeedEmail))
	}
	return nil
}
