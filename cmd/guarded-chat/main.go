package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/config"
	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm/anthropic"
	"github.com/run-bigpig/llm-guardrails/pkg/llm/openai"
	"github.com/run-bigpig/llm-guardrails/pkg/logging"
	"github.com/run-bigpig/llm-guardrails/pkg/retry"
	"github.com/run-bigpig/llm-guardrails/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	envFile := flag.String("env-file", ".env", "Path to .env file")
	prompt := flag.String("prompt", "", "Prompt to send to the model")
	system := flag.String("system", "", "Optional system message")
	stream := flag.Bool("stream", false, "Stream the response")
	local := flag.Bool("local", false, "Use the local content and PII filters instead of the validation service")
	blockedWords := flag.String("blocked-words", "", "Comma separated words for the local content filter")
	maxWords := flag.Int("max-words", 0, "Truncate prompts and responses longer than this many words (local mode)")
	flag.Parse()

	if *prompt == "" {
		fmt.Fprintln(os.Stderr, "a prompt is required (-prompt)")
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadEnvFiles(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.WithLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, uuid.NewString())

	if err := run(ctx, cfg, logger, runOptions{
		prompt:       *prompt,
		system:       *system,
		stream:       *stream,
		local:        *local,
		blockedWords: splitWords(*blockedWords),
		maxWords:     *maxWords,
	}); err != nil {
		logger.Error(ctx, "Guarded chat failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

type runOptions struct {
	prompt       string
	system       string
	stream       bool
	local        bool
	blockedWords []string
	maxWords     int
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger, opts runOptions) error {
	if opts.local {
		// The validation service credentials are not needed offline
		cfg.Guardrails.ProjectID = "local"
		cfg.Guardrails.APIKey = "local"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	otelTracer, err := tracing.NewOTelTracer(cfg.Tracing.OTel)
	if err != nil {
		return err
	}
	defer func() {
		if err := otelTracer.Shutdown(context.Background()); err != nil {
			logger.Warn(ctx, "Failed to shut down tracer", map[string]interface{}{"error": err.Error()})
		}
	}()
	langfuseTracer := tracing.NewLangfuseTracer(cfg.Tracing.Langfuse, logger)
	defer langfuseTracer.Flush(context.Background())

	model := newModel(cfg, logger)
	if langfuseTracer.Enabled() {
		model = tracing.NewChatModelLangfuseMiddleware(model, langfuseTracer)
	}
	model = tracing.NewChatModelOTelMiddleware(model, otelTracer)

	guardOptions := []guardrails.Option{
		guardrails.WithLogger(logger),
		guardrails.WithTracer(otelTracer.Tracer()),
	}
	if opts.local {
		chain := guardrails.Chain{
			guardrails.NewContentFilter(opts.blockedWords, aporia.ActionModify),
			guardrails.NewPiiFilter(aporia.ActionModify),
		}
		if opts.maxWords > 0 {
			chain = append(chain, guardrails.NewTokenLimit(opts.maxWords, nil, aporia.ActionModify, guardrails.TruncateEnd))
		}
		guardOptions = append(guardOptions, guardrails.WithValidator(chain))
	}

	guarded, err := guardrails.Wrap(model, cfg.Guardrails, guardOptions...)
	if err != nil {
		return err
	}

	var messages []interfaces.Message
	if opts.system != "" {
		messages = append(messages, interfaces.Message{Role: interfaces.RoleSystem, Content: opts.system})
	}
	messages = append(messages, interfaces.Message{Role: interfaces.RoleUser, Content: opts.prompt})

	if !opts.stream {
		response, err := guarded.Invoke(ctx, messages)
		if err != nil {
			return describe(err)
		}
		fmt.Println(response.Content)
		return nil
	}

	for chunk, err := range guarded.Stream(ctx, messages) {
		if err != nil {
			fmt.Println()
			return describe(err)
		}
		fmt.Print(chunk.Content)
	}
	fmt.Println()
	return nil
}

func newModel(cfg *config.Config, logger logging.Logger) interfaces.ChatModel {
	if cfg.Provider == config.ProviderAnthropic {
		options := []anthropic.Option{
			anthropic.WithModel(cfg.Anthropic.Model),
			anthropic.WithLogger(logger),
		}
		if cfg.Anthropic.BaseURL != "" {
			options = append(options, anthropic.WithBaseURL(cfg.Anthropic.BaseURL))
		}
		if cfg.Anthropic.MaxAttempts > 1 {
			options = append(options, anthropic.WithRetry(retry.WithMaxAttempts(cfg.Anthropic.MaxAttempts)))
		}
		return anthropic.NewClient(cfg.Anthropic.APIKey, options...)
	}

	options := []openai.Option{
		openai.WithModel(cfg.OpenAI.Model),
		openai.WithLogger(logger),
	}
	if cfg.OpenAI.BaseURL != "" {
		options = append(options, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.OpenAI.MaxAttempts > 1 {
		options = append(options, openai.WithRetry(retry.WithMaxAttempts(cfg.OpenAI.MaxAttempts)))
	}
	return openai.NewClient(cfg.OpenAI.APIKey, options...)
}

// describe adds the failing component to validation errors
func describe(err error) error {
	var transportErr *aporia.TransportError
	if errors.As(err, &transportErr) {
		return fmt.Errorf("validation service unavailable: %w", err)
	}
	var schemaErr *aporia.SchemaError
	if errors.As(err, &schemaErr) {
		return fmt.Errorf("validation service returned an unexpected reply: %w", err)
	}
	return err
}

func splitWords(list string) []string {
	var words []string
	for _, word := range strings.Split(list, ",") {
		if word = strings.TrimSpace(word); word != "" {
			words = append(words, word)
		}
	}
	return words
}
