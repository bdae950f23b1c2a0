package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jany-pan/packwise/internal/config"
	"github.com/jany-pan/packwise/internal/db"
	"github.com/jany-pan/packwise/internal/insight"
	"github.com/jany-pan/packwise/internal/metrics"
	"github.com/jany-pan/packwise/internal/stream"
	"github.com/jany-pan/packwise/internal/trip"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       db.Querier
	Redis    *redis.Client
	Stream   *stream.Hub
	Registry *prometheus.Registry
	Metrics  *metrics.Sync
	Log      zerolog.Logger

	model insight.Model
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) { s.Log = log }
}

// WithInsightModel backs the insight endpoint with model. Without it the
// endpoint answers every request with a generation failure.
func WithInsightModel(model insight.Model) Option {
	return func(s *Server) { s.model = model }
}

func NewServer(cfg config.Config, querier db.Querier, redisClient *redis.Client, opts ...Option) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(logger.New())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       querier,
		Redis:    redisClient,
		Registry: reg,
		Metrics:  metrics.NewSync(reg),
		Log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Stream = stream.NewHub(redisClient, stream.WithLogger(s.Log), stream.WithMetrics(s.Metrics))

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{})))

	svc := trip.NewService(s.DB,
		trip.WithHub(s.Stream),
		trip.WithMetrics(s.Metrics),
		trip.WithLogger(s.Log),
	)
	insights := insight.NewService(s.model,
		insight.WithRatePerMinute(s.Cfg.InsightRatePerMin),
		insight.WithMetrics(s.Metrics),
		insight.WithLogger(s.Log),
	)
	trip.RegisterRoutes(s.App.Group("/trips"), svc, insights)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Close releases the server's own resources. The database and Redis clients
// belong to the caller.
func (s *Server) Close() error {
	return s.Stream.Close()
}
