package generation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/DmitrySonora/chimera/breaker"
	"github.com/DmitrySonora/chimera/events"
	"github.com/DmitrySonora/chimera/messages"
	"github.com/DmitrySonora/chimera/prompt"
	"github.com/DmitrySonora/chimera/provider"
	"github.com/k0kubun/pp/v3"
)

// invoke issues one streaming provider call through the shared breaker and
// drains it to completion. Text fragments are concatenated in arrival order;
// the last chunk carrying usage overwrites the running cache telemetry, since
// the provider reports cumulative totals.
func (o *Orchestrator) invoke(ctx context.Context, msgs []messages.ChatMessage, mode prompt.Mode, phase prompt.Phase) (string, error) {
	params := o.cfg.Params.Resolve(mode)
	if o.cfg.DebugModeSelection {
		slog.Debug("resolved generation parameters",
			slog.String("mode", string(mode)),
			slog.String("phase", string(phase)),
			slog.String("params", pp.Sprint(params)))
	}

	req := provider.CompletionRequest{
		Model:    o.cfg.Model,
		Messages: msgs,
		Params:   params,
		JSONMode: phase == prompt.PhaseStructured,
	}

	var text string
	var usage provider.Usage

	err := o.breaker.Call(ctx, func(ctx context.Context) error {
		stream, err := o.provider.ChatCompletion(ctx, req)
		if err != nil {
			return err
		}

		var sb strings.Builder
		var streamErr error
		for event := range stream {
			switch event := event.(type) {
			case provider.Chunk:
				sb.WriteString(event.Content)
				if event.Usage != nil {
					usage = *event.Usage
				}
			case provider.Error:
				// The stream is drained to exhaustion either way so the
				// producing goroutine can finish.
				streamErr = event.Err
			}
		}
		if streamErr != nil {
			return streamErr
		}

		text = sb.String()
		return nil
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			slog.Warn("provider call rejected, breaker open", slog.String("breaker", o.breaker.Name()))
		}
		return "", &GenerationError{Err: err}
	}

	o.recordCacheMetrics(usage)
	return text, nil
}

// recordCacheMetrics updates the process-lifetime cache counters and emits
// the cache-metric event. Zero total tokens emit nothing.
func (o *Orchestrator) recordCacheMetrics(usage provider.Usage) {
	count := o.metrics.RecordGeneration()

	total := usage.PromptCacheHitTokens + usage.PromptCacheMissTokens
	if total == 0 {
		return
	}

	rate := float64(usage.PromptCacheHitTokens) / float64(total)
	o.metrics.AddCacheHitRate(rate)

	if o.cfg.CacheHitLogInterval > 0 && count%o.cfg.CacheHitLogInterval == 0 {
		slog.Info("cache metrics",
			slog.Uint64("generations", count),
			slog.Float64("avg_hit_rate", o.metrics.AverageCacheHitRate()),
			slog.Float64("last_hit_rate", rate))
	}

	o.emitter.Emit(events.NewCacheHitMetric(usage.PromptCacheHitTokens, usage.PromptCacheMissTokens, rate))
}
