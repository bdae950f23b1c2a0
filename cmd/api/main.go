package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	"github.com/jany-pan/packwise/internal/config"
	"github.com/jany-pan/packwise/internal/db"
	"github.com/jany-pan/packwise/internal/insight"
	"github.com/jany-pan/packwise/internal/logger"
	"github.com/jany-pan/packwise/internal/server"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadEnv         func() error
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	migrate         func(context.Context, string) error
	connectRedis    func(config.Config) *redis.Client
	newModel        func(context.Context, config.Config) (insight.Model, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc, ...server.Option) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadEnv:         func() error { return godotenv.Load() },
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
		connectRedis:    db.ConnectRedis,
		newModel:        newGeminiModel,
		notify:          signal.Notify,
		run:             Run,
	}
}

func newGeminiModel(ctx context.Context, cfg config.Config) (insight.Model, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, nil
	}
	return insight.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
}

func realMain(deps mainDeps) {
	// .env is optional; the process environment always wins.
	_ = deps.loadEnv()

	cfg := deps.loadConfig()
	log := logger.New(logger.Options{Service: "packwise-api", Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := context.Background()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Error().Err(err).Msg("postgres connection failed")
	}
	if pg != nil && cfg.AutoMigrate {
		if err := deps.migrate(ctx, cfg.PostgresURL); err != nil {
			log.Error().Err(err).Msg("migrations failed")
		}
	}

	rdb := deps.connectRedis(cfg)

	opts := []server.Option{server.WithLogger(log)}
	model, err := deps.newModel(ctx, cfg)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("insight model unavailable")
	case model != nil:
		opts = append(opts, server.WithInsightModel(model))
	default:
		log.Warn().Msg("GEMINI_API_KEY not set, insights disabled")
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(ctx, cfg, pg, rdb, signals, nil, opts...); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc, opts ...server.Option) error {
	var querier db.Querier
	if pg != nil {
		querier = pg
	}
	srv := server.NewServer(cfg, querier, rdb, opts...)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		srv.Log.Info().Str("addr", cfg.ServerPort).Msg("listening")
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return multierr.Append(err, closeResources(srv, pg, rdb))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := shutdownFn(srv.App, shutdownCtx)
	return multierr.Append(err, closeResources(srv, pg, rdb))
}

func closeResources(srv *server.Server, pg *pgxpool.Pool, rdb *redis.Client) error {
	err := srv.Close()
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		err = multierr.Append(err, rdb.Close())
	}
	if err != nil {
		srv.Log.Warn().Err(err).Msg("closing resources")
	}
	return err
}
