package guardrails

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/run-bigpig/llm-guardrails/pkg/aporia"
	"github.com/run-bigpig/llm-guardrails/pkg/interfaces"
	"github.com/run-bigpig/llm-guardrails/pkg/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GuardedModel wraps a ChatModel so that every prompt and response is
// validated. All other behaviour is delegated to the wrapped model.
type GuardedModel struct {
	model    interfaces.ChatModel
	config   Config
	settings *settings
}

var _ interfaces.ChatModel = (*GuardedModel)(nil)

// Wrap returns a guarded stand-in for model
func Wrap(model interfaces.ChatModel, cfg Config, options ...Option) (*GuardedModel, error) {
	if model == nil {
		return nil, ErrNilModel
	}

	cfg = cfg.withDefaults()
	s, err := newSettings(cfg, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create guardrails: %w", err)
	}

	return &GuardedModel{model: model, config: cfg, settings: s}, nil
}

// rewrap guards a model derived from this one with the same config and validator
func (g *GuardedModel) rewrap(model interfaces.ChatModel) *GuardedModel {
	return &GuardedModel{model: model, config: g.config, settings: g.settings}
}

// Config returns the configuration the model is guarded with
func (g *GuardedModel) Config() Config {
	return g.config
}

// Unwrap returns the unguarded model
func (g *GuardedModel) Unwrap() interfaces.ChatModel {
	return g.model
}

// Name implements interfaces.ChatModel.Name
func (g *GuardedModel) Name() string {
	return g.model.Name()
}

// ToMessages implements interfaces.ChatModel.ToMessages
func (g *GuardedModel) ToMessages(input any) ([]interfaces.Message, error) {
	return g.model.ToMessages(input)
}

// Invoke validates the prompt, calls the model and validates its answer
func (g *GuardedModel) Invoke(ctx context.Context, input any, options ...interfaces.CallOption) (*interfaces.Message, error) {
	messages, err := g.model.ToMessages(input)
	if err != nil {
		return nil, fmt.Errorf("failed to convert input to messages: %w", err)
	}

	promptCheck, err := g.check(ctx, messages, "", aporia.TargetPrompt)
	if err != nil {
		return nil, err
	}
	if promptCheck.ShouldBlock() {
		return overrideMessage(promptCheck.Revised(DefaultOverrideMessage)), nil
	}

	result, err := g.model.Invoke(ctx, input, options...)
	if err != nil {
		if llm.IsContentFilter(err) {
			g.settings.logger.Info(ctx, "Model content filter rejected the request", map[string]interface{}{
				"model": g.model.Name(),
				"error": err.Error(),
			})
			return overrideMessage(ContentFilterMessage), nil
		}
		return nil, err
	}

	var content string
	if result != nil {
		content = result.Content
	}

	responseCheck, err := g.check(ctx, messages, content, aporia.TargetResponse)
	if err != nil {
		return nil, err
	}
	if responseCheck.ShouldBlock() {
		return overrideMessage(responseCheck.Revised(DefaultOverrideMessage)), nil
	}

	return result, nil
}

// BindTools binds tools on the wrapped model and guards the result
func (g *GuardedModel) BindTools(tools []interfaces.Tool, options ...interfaces.CallOption) (interfaces.ChatModel, error) {
	bound, err := g.model.BindTools(tools, options...)
	if err != nil {
		return nil, err
	}
	return g.rewrap(bound), nil
}

// WithConfig reconfigures the wrapped model and guards the result
func (g *GuardedModel) WithConfig(config interfaces.RunConfig) interfaces.ChatModel {
	return g.rewrap(g.model.WithConfig(config))
}

// check sends one validation request
func (g *GuardedModel) check(ctx context.Context, messages []interfaces.Message, response string, target aporia.Target) (*aporia.ValidationResponse, error) {
	ctx, span := g.settings.tracer.Start(ctx, "guardrails.validate", trace.WithAttributes(
		attribute.String("guardrails.target", string(target)),
		attribute.Int("guardrails.messages", len(messages)),
		attribute.Int("guardrails.response_length", len(response)),
	))
	defer span.End()

	resp, err := g.settings.validator.Validate(ctx, &aporia.ValidationRequest{
		Messages:         toWireMessages(messages),
		Response:         response,
		ValidationTarget: target,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.settings.logger.Error(ctx, "Guardrails validation failed", map[string]interface{}{
			"target": target,
			"error":  err.Error(),
		})
		return nil, err
	}

	span.SetAttributes(attribute.String("guardrails.action", string(resp.Action)))
	if resp.ShouldBlock() {
		g.settings.logger.Info(ctx, "Guardrails replaced content", map[string]interface{}{
			"target":  target,
			"action":  resp.Action,
			"revised": resp.RevisedResponse != nil,
		})
	} else {
		g.settings.logger.Debug(ctx, "Guardrails passed content", map[string]interface{}{
			"target": target,
		})
	}

	return resp, nil
}

func overrideMessage(content string) *interfaces.Message {
	return &interfaces.Message{
		ID:      uuid.NewString(),
		Role:    interfaces.RoleAssistant,
		Content: content,
	}
}
