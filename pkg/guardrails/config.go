package guardrails

import (
	"errors"

	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultChunkBatchSize is the number of streamed fragments between re-validations
	DefaultChunkBatchSize = 200

	// DefaultBaseURL is the production guardrails endpoint
	DefaultBaseURL = aporia.DefaultBaseURL

	// DefaultOverrideMessage replaces blocked content when the service sends no revision
	DefaultOverrideMessage = "Response overridden by Aporia Guardrails"

	// ContentFilterMessage replaces a response the model provider refused to produce
	ContentFilterMessage = "I'm sorry, but I can't assist with that request."
)

// ErrNilModel is returned by Wrap when no model is given
var ErrNilModel = errors.New("guardrails: model is nil")

// Config identifies the guardrails project protecting a model. It is copied
// unchanged into every model derived from a guarded one.
type Config struct {
	ProjectID      string `yaml:"project_id"`
	APIKey         string `yaml:"api_key"`
	ChunkBatchSize int    `yaml:"chunk_batch_size"`
	BaseURL        string `yaml:"base_url"`
}

func (c Config) withDefaults() Config {
	if c.ChunkBatchSize <= 0 {
		c.ChunkBatchSize = DefaultChunkBatchSize
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	return c
}

// Option configures how a model is guarded
type Option func(*settings)

type settings struct {
	validator Validator
	logger    logging.Logger
	tracer    trace.Tracer
}

// WithValidator replaces the HTTP validation client, e.g. with a local filter
func WithValidator(validator Validator) Option {
	return func(s *settings) {
		s.validator = validator
	}
}

// WithLogger sets the logger used by the guard and its validation client
func WithLogger(logger logging.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithTracer records a span for every validation
func WithTracer(tracer trace.Tracer) Option {
	return func(s *settings) {
		s.tracer = tracer
	}
}

func newSettings(cfg Config, options ...Option) (*settings, error) {
	s := &settings{}
	for _, option := range options {
		option(s)
	}

	if s.logger == nil {
		s.logger = logging.New()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/run-bigpig/llm-guardrails/pkg/guardrails")
	}
	if s.validator == nil {
		client, err := aporia.NewClient(cfg.ProjectID, cfg.APIKey,
			aporia.WithBaseURL(cfg.BaseURL),
			aporia.WithLogger(s.logger),
		)
		if err != nil {
			return nil, err
		}
		s.validator = client
	}

	return s, nil
}
