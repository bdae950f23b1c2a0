package insight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jany-pan/packwise/internal/metrics"
	"github.com/jany-pan/packwise/internal/pack"
)

// Model is a single-shot text generator.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Generator is what callers depend on to obtain insights.
type Generator interface {
	Generate(ctx context.Context, items []pack.GearItem, stats pack.Stats, lang string) ([]Insight, error)
}

// Service calls the model once per request: no cache, no retry.
type Service struct {
	model   Model
	limiter *rate.Limiter
	metrics *metrics.Sync
	log     zerolog.Logger
}

type Option func(*Service)

// WithRatePerMinute caps model calls across all callers. Zero disables the cap.
func WithRatePerMinute(n int) Option {
	return func(s *Service) {
		if n <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
}

func WithMetrics(m *metrics.Sync) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(model Model, opts ...Option) *Service {
	s := &Service{model: model, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Generate(ctx context.Context, items []pack.GearItem, stats pack.Stats, lang string) ([]Insight, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return nil, ErrRateLimited
	}
	out, err := s.generate(ctx, items, stats, lang)
	s.metrics.Insight(err)
	if err != nil {
		s.log.Warn().Err(err).Int("items", len(items)).Str("lang", normalizeLang(lang)).Msg("insight generation failed")
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return out, nil
}

func (s *Service) generate(ctx context.Context, items []pack.GearItem, stats pack.Stats, lang string) ([]Insight, error) {
	if s.model == nil {
		return nil, errors.New("no model configured")
	}
	text, err := s.model.Generate(ctx, BuildPrompt(items, stats, lang))
	if err != nil {
		return nil, err
	}
	return Parse(text)
}
