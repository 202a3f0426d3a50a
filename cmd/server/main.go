package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/iliyamo/senhas/internal/config"
	"github.com/iliyamo/senhas/internal/database"
	"github.com/iliyamo/senhas/internal/handler"
	"github.com/iliyamo/senhas/internal/jobs"
	"github.com/iliyamo/senhas/internal/middleware"
	"github.com/iliyamo/senhas/internal/numbering"
	"github.com/iliyamo/senhas/internal/queue"
	"github.com/iliyamo/senhas/internal/repository"
	"github.com/iliyamo/senhas/internal/repository/memory"
	mysqlrepo "github.com/iliyamo/senhas/internal/repository/mysql"
	"github.com/iliyamo/senhas/internal/repository/postgres"
	"github.com/iliyamo/senhas/internal/router"
	"github.com/iliyamo/senhas/internal/service"
	"github.com/iliyamo/senhas/internal/telemetry"
)

const serviceName = "senhas"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := newLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(env string) *slog.Logger {
	if env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

type store struct {
	tickets repository.TicketRepository
	tenants repository.TenantRepository
	pinger  repository.Pinger
	close   func()
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, error) {
	switch cfg.DBDriver {
	case "memory":
		log.Warn("using the in-memory store; data is lost on restart")
		m := memory.New()
		return store{tickets: m.Tickets(), tenants: m.Tenants(), pinger: m, close: func() {}}, nil

	case "postgres":
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return store{}, fmt.Errorf("postgres: %w", err)
		}
		if cfg.DBAutoMigrate {
			if err := database.MigratePostgres(ctx, pool); err != nil {
				pool.Close()
				return store{}, err
			}
		}
		s := postgres.NewStore(pool)
		return store{tickets: s.Tickets(), tenants: s.Tenants(), pinger: s, close: pool.Close}, nil

	default:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return store{}, fmt.Errorf("mysql: %w", err)
		}
		if cfg.DBAutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return store{}, err
			}
		}
		tickets := mysqlrepo.NewTicketRepo(db)
		return store{
			tickets: tickets,
			tenants: mysqlrepo.NewTenantRepo(db),
			pinger:  tickets,
			close:   func() { _ = db.Close() },
		}, nil
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownTracing := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint, log)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", "err", err)
		}
	}()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()
	log.Info("store ready", "driver", cfg.DBDriver)

	// Redis is optional: without it rate limiting and caching are skipped.
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	} else {
		log.Warn("redis unavailable; rate limiting and stats cache disabled")
	}

	var alloc numbering.Allocator = numbering.NewLocal(st.tickets)
	if cfg.NumberingBackend == "redis" {
		if rdb == nil {
			return errors.New("NUMBERING_BACKEND=redis but redis is unavailable")
		}
		alloc = numbering.NewRedis(rdb, st.tickets, "seq")
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled && cfg.AMQPURL != "" {
		pub := service.NewAMQPPublisher(cfg.AMQPURL, log)
		defer pub.Close()
		events = pub

		consumer := &queue.AuditConsumer{URL: cfg.AMQPURL, LogPath: cfg.TicketAuditLog, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit consumer stopped", "err", err)
			}
		}()
	}

	tenants := service.NewTenantService(st.tenants, cfg.BcryptCost, log)
	tickets := service.NewTicketService(st.tickets, tenants, alloc, events, log, service.TicketOptions{
		PerTicket:   cfg.EstimatePerTicket,
		ExpireAfter: cfg.ExpireAfter,
		Location:    cfg.Timezone,
	})

	if cfg.PurgeCron != "" {
		addr := config.RedisAddr()
		if addr == "" {
			addr = "localhost:6379"
		}
		w, err := jobs.NewWorker(
			asynq.RedisClientOpt{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")},
			cfg.PurgeCron,
			&jobs.Handlers{Purger: tickets, Log: log},
			log,
		)
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Shutdown()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(
		echomw.Recover(),
		echomw.RequestID(),
		middleware.RequestLogger(log),
		echomw.CORS(),
		echomw.BodyLimit("1M"),
	)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)
	statsCache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb, log)

	router.RegisterRoutes(e, st.pinger, log)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, tenants, log), cfg.JWTSecret, limiter)
	router.RegisterTickets(e, handler.NewTicketHandler(tickets, log, cfg.RequestTimeout, cfg.Timezone),
		cfg.JWTSecret, limiter, statsCache)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(e, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			return err
		}
	}

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
