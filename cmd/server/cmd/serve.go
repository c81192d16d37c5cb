package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jobboard/server/internal/api"
	"github.com/jobboard/server/internal/api/handlers"
	"github.com/jobboard/server/internal/audit"
	"github.com/jobboard/server/internal/auth"
	"github.com/jobboard/server/internal/config"
	"github.com/jobboard/server/internal/domain/jobs"
	"github.com/jobboard/server/internal/domain/users"
	"github.com/jobboard/server/internal/email"
	"github.com/jobboard/server/internal/events"
	"github.com/jobboard/server/internal/metrics"
	"github.com/jobboard/server/internal/notify"
	"github.com/jobboard/server/internal/ratelimit"
	"github.com/jobboard/server/internal/storage"
	"github.com/jobboard/server/internal/tasks"
	"github.com/jobboard/server/internal/telemetry"
)

const (
	shutdownTimeout     = 10 * time.Second
	poolCollectInterval = 15 * time.Second
	startupTimeout      = 30 * time.Second
)

func newServeCommand(root *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the job board HTTP and notification servers",
		Long: `Start the JSON API and the websocket notification listener.

Examples:
  # Start with configuration from the environment
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Load a dotenv file and a YAML config
  server serve --env-file .env --config /etc/jobboard/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			logger := config.NewLogger(cfg.Logging)
			backend, err := storage.BackendFor(cfg.Database.URL)
			if err != nil {
				return err
			}
			metrics.Init(Version, GitCommit, BuildDate, string(backend))

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cfg, buildInfo(), logger)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "server host address (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "server port (default: 3000)")
	return cmd
}

// runServer starts every component and blocks until ctx is cancelled or one
// of them fails, then shuts the rest down.
func runServer(ctx context.Context, cfg config.Config, build api.BuildInfo, logger zerolog.Logger) error {
	logger.Info().Str("version", build.Version).Str("environment", cfg.Environment).Msg("starting job board server")

	startCtx, cancelStart := context.WithTimeout(ctx, startupTimeout)
	defer cancelStart()

	shutdownTracing, err := telemetry.InitTracing(startCtx, cfg.Tracing, build.Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("flush traces")
		}
	}()

	store, err := storage.Open(startCtx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn().Err(err).Msg("close store")
		}
	}()

	limiter, err := ratelimit.New(cfg.RateLimit, cfg.Redis)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer func() { _ = limiter.Close() }()

	health := handlers.NewHealthChecker(build.Version, build.GitCommit)
	health.Add("store", store.Ping)
	if pinger, ok := limiter.(interface{ Ping(context.Context) error }); ok {
		health.Add("redis", pinger.Ping)
	}

	hub := notify.NewHub(cfg.Notify.Interval, logger)

	fanout := events.NewFanout(logger)
	fanout.Add("log", events.NewLogPublisher(logger.With().Str("component", "events").Logger()))
	fanout.Add("notify", hub)

	if cfg.NATS.URL != "" {
		conn, err := events.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		fanout.Add("nats", events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix))
		health.Add("nats", func(context.Context) error {
			if !conn.IsConnected() {
				return errors.New("nats not connected")
			}
			return nil
		})
	}

	pool, isPostgres := storage.PostgresPool(store)

	var taskClient *river.Client[pgx.Tx]
	if cfg.Tasks.Enabled {
		if !isPostgres {
			logger.Warn().Msg("background tasks need the postgres store; TASKS_ENABLED ignored")
		} else {
			sender, err := email.New(cfg.Email, logger)
			if err != nil {
				return fmt.Errorf("email: %w", err)
			}
			workers := tasks.NewWorkers(store.Jobs(), store.Users(), sender, logger)
			riverLogger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			taskClient, err = tasks.NewClient(pool, workers, riverLogger, tasks.NewErrorHandler(logger),
				[]rivertype.Hook{metrics.NewTaskMetricsHook()}, cfg.Tasks.MaxWorkers)
			if err != nil {
				return fmt.Errorf("create task client: %w", err)
			}
			fanout.Add("tasks", tasks.NewEnqueuer(taskClient))
		}
	}

	userService := users.NewService(store.Users(), cfg.Auth.BcryptCost, cfg.Database.Timeout, logger)
	jobService := jobs.NewService(store.Jobs(), store.Users(), fanout, cfg.Database.Timeout, logger)
	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)

	apiServer := &http.Server{
		Handler: api.NewRouter(api.Deps{
			Config:  cfg,
			Logger:  logger,
			Users:   userService,
			Jobs:    jobService,
			Tokens:  tokens,
			Limiter: limiter,
			Health:  health,
			Audit:   audit.NewLogger(logger),
			Build:   build,
		}),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	notifyServer := notify.NewServer("", hub)

	apiListener, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
	if err != nil {
		return fmt.Errorf("listen api: %w", err)
	}
	notifyListener, err := net.Listen("tcp", net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Notify.Port)))
	if err != nil {
		_ = apiListener.Close()
		return fmt.Errorf("listen notify: %w", err)
	}

	if taskClient != nil {
		// Workers drain on Stop rather than being cancelled with ctx.
		if err := taskClient.Start(context.WithoutCancel(ctx)); err != nil {
			_ = apiListener.Close()
			_ = notifyListener.Close()
			return fmt.Errorf("start task workers: %w", err)
		}
		logger.Info().Int("max_workers", cfg.Tasks.MaxWorkers).Msg("task workers started")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", apiListener.Addr().String()).Msg("api listening")
		return serveHTTP(apiServer, apiListener)
	})
	g.Go(func() error {
		logger.Info().Str("addr", notifyListener.Addr().String()).Msg("notification channel listening")
		return serveHTTP(notifyServer, notifyListener)
	})
	g.Go(func() error { return hub.Run(gctx) })

	if isPostgres {
		g.Go(func() error { return metrics.NewPoolCollector(pool).Run(gctx, poolCollectInterval) })
	}

	if taskClient != nil {
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return taskClient.Stop(stopCtx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), notifyServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func serveHTTP(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
