package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/jany-pan/packwise/internal/config"
	"github.com/jany-pan/packwise/internal/gateway"
	"github.com/jany-pan/packwise/internal/insight"
	"github.com/jany-pan/packwise/internal/localstore"
	"github.com/jany-pan/packwise/internal/logger"
	"github.com/jany-pan/packwise/internal/pack"
	"github.com/jany-pan/packwise/internal/session"
)

const apiTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	tripRef := flag.String("trip", "", "shared trip identity or share link")
	flag.Parse()

	// Logs go to stderr so they never interleave with shell output.
	log := logger.New(logger.Options{Service: "packwise", Level: cfg.LogLevel, Format: "console", Output: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *tripRef, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("packwise exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger, tripRef string, in io.Reader, out io.Writer) error {
	store, err := localstore.OpenSQLite(cfg.LocalStorePath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}

	opts := session.Options{
		Debounce:       cfg.SaveDebounce,
		NotFoundPolicy: session.ParseNotFoundPolicy(cfg.NotFoundPolicy),
		Logger:         log,
	}
	if cfg.GeminiAPIKey != "" {
		model, err := insight.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			log.Warn().Err(err).Msg("insights disabled")
		} else {
			opts.Insights = insight.NewService(model, insight.WithRatePerMinute(cfg.InsightRatePerMin), insight.WithLogger(log))
		}
	}

	var sess *session.Session
	remote, err := gateway.New(cfg.APIURL,
		gateway.WithLogger(log),
		gateway.WithHTTPClient(&http.Client{Timeout: apiTimeout}),
		gateway.WithDialer(&websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: apiTimeout}),
	)
	if err != nil {
		log.Warn().Err(err).Msg("remote gateway disabled, working locally")
		sess = session.New(nil, store, opts)
	} else {
		sess = session.New(remote, store, opts)
	}

	err = serve(ctx, sess, cfg.ShareURL, tripID(tripRef), in, out)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = multierr.Append(err, sess.Close(closeCtx))
	return multierr.Append(err, store.Close())
}

// tripID accepts either a bare identity or a share link.
func tripID(ref string) string {
	if id := pack.SharedID(ref); id != "" {
		return id
	}
	return ref
}
