package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/tracing"
	"gopkg.in/yaml.v3"
)

// Supported chat model providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the application configuration loaded from YAML and the environment
type Config struct {
	// Provider selects the chat model: "openai" or "anthropic"
	Provider   string            `yaml:"provider"`
	Guardrails guardrails.Config `yaml:"guardrails"`
	OpenAI     OpenAIConfig      `yaml:"openai"`
	Anthropic  AnthropicConfig   `yaml:"anthropic"`
	Logging    LoggingConfig     `yaml:"logging"`
	Tracing    TracingConfig     `yaml:"tracing"`
}

// OpenAIConfig configures the chat model
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// MaxAttempts enables retries of model calls when greater than one
	MaxAttempts int32 `yaml:"max_attempts"`
}

// AnthropicConfig configures the Anthropic chat model
type AnthropicConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	MaxAttempts int32  `yaml:"max_attempts"`
}

// LoggingConfig configures the logger
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TracingConfig groups the tracing backends
type TracingConfig struct {
	OTel     tracing.OTelConfig     `yaml:"otel"`
	Langfuse tracing.LangfuseConfig `yaml:"langfuse"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Provider: ProviderOpenAI,
		Guardrails: guardrails.Config{
			ChunkBatchSize: guardrails.DefaultChunkBatchSize,
			BaseURL:        guardrails.DefaultBaseURL,
		},
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			MaxAttempts: 1,
		},
		Anthropic: AnthropicConfig{
			Model:       "claude-3-5-haiku-latest",
			MaxAttempts: 1,
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{
			OTel: tracing.OTelConfig{ServiceName: "llm-guardrails", CollectorEndpoint: "localhost:4317"},
		},
	}
}

// LoadEnvFiles loads .env style files into the process environment.
// Missing files are skipped; variables already set are not overridden.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// Load reads the YAML file at path (optional) over the defaults and then
// applies environment overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Guardrails.ProjectID, "APORIA_PROJECT_ID")
	setString(&c.Guardrails.APIKey, "APORIA_API_KEY")
	setString(&c.Guardrails.BaseURL, "APORIA_BASE_URL")
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.OpenAI.Model, "OPENAI_MODEL")
	setString(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	setString(&c.Anthropic.Model, "ANTHROPIC_MODEL")
	setString(&c.Provider, "LLM_PROVIDER")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Tracing.OTel.ServiceName, "OTEL_SERVICE_NAME")
	setString(&c.Tracing.OTel.CollectorEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&c.Tracing.Langfuse.Environment, "LANGFUSE_ENVIRONMENT")

	if v := os.Getenv("APORIA_CHUNK_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid APORIA_CHUNK_BATCH_SIZE %q", v)
		}
		c.Guardrails.ChunkBatchSize = n
	}

	for key, target := range map[string]*bool{
		"OTEL_ENABLED":     &c.Tracing.OTel.Enabled,
		"LANGFUSE_ENABLED": &c.Tracing.Langfuse.Enabled,
	} {
		if v := os.Getenv(key); v != "" {
			enabled, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*target = enabled
		}
	}

	return nil
}

// Validate checks that the settings needed to run are present
func (c *Config) Validate() error {
	if c.Guardrails.ProjectID == "" {
		return errors.New("guardrails project ID is required (APORIA_PROJECT_ID)")
	}
	if c.Guardrails.APIKey == "" {
		return errors.New("guardrails API key is required (APORIA_API_KEY)")
	}
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("OpenAI API key is required (OPENAI_API_KEY)")
		}
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return errors.New("Anthropic API key is required (ANTHROPIC_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}
