// Package generation sequences the end-to-end pipeline: prompt composition,
// the breaker-guarded streaming provider call, structured extraction with the
// fallback protocol, advisory validation, and observability-event emission.
package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DmitrySonora/chimera/breaker"
	"github.com/DmitrySonora/chimera/events"
	"github.com/DmitrySonora/chimera/prompt"
	"github.com/DmitrySonora/chimera/provider"
	"github.com/DmitrySonora/chimera/provider/deepseek"
	"github.com/DmitrySonora/chimera/structured"
	"github.com/fogfish/opts"
)

// Config is the externally owned pipeline configuration. Construct it
// through New's options; the pipeline never mutates it.
type Config struct {
	Model                 string
	UseJSONMode           bool
	FallbackEnabled       bool
	ValidationEnabled     bool
	LogValidationFailures bool
	MaxValidationErrors   int
	LogParamsUsage        bool
	LogResponseLength     bool
	DebugModeSelection    bool
	CacheHitLogInterval   uint64
	Params                prompt.Table
	Prompts               prompt.Library
}

// DefaultConfig mirrors the stock deployment: structured mode with fallback,
// advisory validation with logging, parameter-usage telemetry on.
func DefaultConfig() Config {
	return Config{
		Model:                 deepseek.ModelChat,
		UseJSONMode:           true,
		FallbackEnabled:       true,
		ValidationEnabled:     true,
		LogValidationFailures: true,
		MaxValidationErrors:   5,
		LogParamsUsage:        true,
		LogResponseLength:     true,
		CacheHitLogInterval:   10,
		Params:                prompt.DefaultTable(),
		Prompts:               prompt.DefaultLibrary(structured.Instructions()),
	}
}

var (
	WithModel                 = opts.ForName[Config, string]("Model")
	WithJSONMode              = opts.ForName[Config, bool]("UseJSONMode")
	WithFallback              = opts.ForName[Config, bool]("FallbackEnabled")
	WithValidation            = opts.ForName[Config, bool]("ValidationEnabled")
	WithValidationLogging     = opts.ForName[Config, bool]("LogValidationFailures")
	WithMaxValidationErrors   = opts.ForName[Config, int]("MaxValidationErrors")
	WithParamsUsageLogging    = opts.ForName[Config, bool]("LogParamsUsage")
	WithResponseLengthLogging = opts.ForName[Config, bool]("LogResponseLength")
	WithDebugModeSelection    = opts.ForName[Config, bool]("DebugModeSelection")
	WithCacheHitLogInterval   = opts.ForName[Config, uint64]("CacheHitLogInterval")
	WithParameterTable        = opts.ForName[Config, prompt.Table]("Params")
	WithPromptLibrary         = opts.ForName[Config, prompt.Library]("Prompts")
)

// Orchestrator runs the generation protocol. It owns its metrics; the
// breaker and emitter are shared with the rest of the process.
type Orchestrator struct {
	cfg       Config
	provider  provider.Provider
	breaker   *breaker.Breaker
	composer  *prompt.Composer
	validator *structured.Validator
	emitter   *events.Emitter
	metrics   *Metrics
}

// New builds an Orchestrator over the given provider, shared breaker, and
// event emitter.
func New(p provider.Provider, brk *breaker.Breaker, emitter *events.Emitter, options ...opts.Option[Config]) (*Orchestrator, error) {
	cfg := DefaultConfig()
	if err := opts.Apply(&cfg, options); err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:       cfg,
		provider:  p,
		breaker:   brk,
		composer:  prompt.NewComposer(cfg.Prompts),
		validator: structured.NewValidator(cfg.MaxValidationErrors),
		emitter:   emitter,
		metrics:   NewMetrics(),
	}, nil
}

// Metrics exposes the orchestrator's counters.
func (o *Orchestrator) Metrics() *Metrics {
	return o.metrics
}

// Generate runs the end-to-end protocol for one request and returns the text
// to send back to the user. Breaker-open and provider errors are fatal to
// the request; parse failures trigger at most one fallback retry; validation
// failures are advisory only.
func (o *Orchestrator) Generate(ctx context.Context, userID, text string, includePrompt bool, modeName string) (string, error) {
	mode := prompt.ParseMode(modeName)
	slog.Info("generating response",
		slog.String("user_id", userID),
		slog.String("mode", string(mode)))

	phase := prompt.PhaseStructured
	if !o.cfg.UseJSONMode {
		phase = prompt.PhaseFallback
	}

	msgs := o.composer.Compose(text, includePrompt, mode, phase)
	raw, err := o.invoke(ctx, msgs, mode, phase)
	if err != nil {
		return "", err
	}

	if !o.cfg.UseJSONMode {
		o.emitParamsUsed(userID, mode, len(raw))
		return raw, nil
	}

	payload, err := structured.Extract(raw)
	if err != nil {
		return o.recoverFromParseFailure(ctx, userID, text, includePrompt, mode, raw, err)
	}

	if o.cfg.ValidationEnabled && o.cfg.LogValidationFailures {
		outcome := o.validator.Validate(payload, mode)
		if outcome.Valid {
			o.metrics.RecordModeSuccess(mode)
		} else {
			o.metrics.RecordModeFailure(mode)
			o.emitter.Emit(events.NewJSONValidationFailed(userID, outcome.Strings(), payload.Fields()))
			slog.Warn("structured response failed validation",
				slog.String("user_id", userID),
				slog.Any("errors", outcome.Strings()))
		}
	}

	response := payload.Response()
	o.emitParamsUsed(userID, mode, len(response))
	return response, nil
}

// recoverFromParseFailure implements the fallback protocol: exactly one
// plain-text retry when enabled, otherwise the raw unparsed text as a
// documented degraded result. The fallback call's text is returned without a
// second parse attempt.
func (o *Orchestrator) recoverFromParseFailure(ctx context.Context, userID, text string, includePrompt bool, mode prompt.Mode, raw string, parseErr error) (string, error) {
	o.metrics.RecordJSONFailure()
	o.emitter.Emit(events.NewJSONModeFailure(userID, parseErr.Error()))

	if !o.cfg.FallbackEnabled {
		slog.Warn("structured parse failed, returning raw text",
			slog.String("user_id", userID))
		return raw, nil
	}

	slog.Warn("structured parse failed, retrying in fallback phase",
		slog.String("user_id", userID))

	msgs := o.composer.Compose(text, includePrompt, mode, prompt.PhaseFallback)
	fallbackText, err := o.invoke(ctx, msgs, mode, prompt.PhaseFallback)
	if err != nil {
		return "", err
	}
	return fallbackText, nil
}

func (o *Orchestrator) emitParamsUsed(userID string, mode prompt.Mode, responseLength int) {
	if !o.cfg.LogParamsUsage {
		return
	}
	if !o.cfg.LogResponseLength {
		responseLength = -1
	}
	params := o.cfg.Params.Resolve(mode)
	o.emitter.Emit(events.NewGenerationParametersUsed(userID, mode, params, responseLength))
}

// GenerationError wraps any provider-side failure so the boundary can map it
// to a single user-visible error message.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
