package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DmitrySonora/chimera/breaker"
	"github.com/DmitrySonora/chimera/events"
	"github.com/DmitrySonora/chimera/messages"
	"github.com/DmitrySonora/chimera/prompt"
	"github.com/DmitrySonora/chimera/provider"
	"github.com/fogfish/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// scriptedCall describes one provider response: the stream events to yield,
// or an error from the call itself.
type scriptedCall struct {
	events  []provider.StreamEvent
	callErr error
}

type fakeProvider struct {
	mu     sync.Mutex
	script []scriptedCall
	calls  []provider.CompletionRequest
}

func (f *fakeProvider) ChatCompletion(_ context.Context, req provider.CompletionRequest) (<-chan provider.StreamEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if len(f.script) == 0 {
		return nil, errors.New("fake provider: script exhausted")
	}
	call := f.script[0]
	f.script = f.script[1:]

	if call.callErr != nil {
		return nil, call.callErr
	}

	stream := make(chan provider.StreamEvent, len(call.events))
	for _, event := range call.events {
		stream <- event
	}
	close(stream)
	return stream, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func textChunks(fragments ...string) []provider.StreamEvent {
	out := make([]provider.StreamEvent, len(fragments))
	for i, fragment := range fragments {
		out[i] = provider.Chunk{Content: fragment}
	}
	return out
}

func streamError(err error) []provider.StreamEvent {
	return []provider.StreamEvent{provider.Error{Err: err}}
}

type pipeline struct {
	orch     *Orchestrator
	provider *fakeProvider
	breaker  *breaker.Breaker
	sink     *events.LocalSink
	emitter  *events.Emitter
}

func newPipeline(t *testing.T, script []scriptedCall, options ...opts.Option[Config]) *pipeline {
	t.Helper()

	fake := &fakeProvider{script: script}
	brk := breaker.New("test", 3, time.Minute)
	sink := events.Local()
	emitter := events.NewEmitter(sink, 64)

	orch, err := New(fake, brk, emitter, options...)
	require.NoError(t, err)

	return &pipeline{orch: orch, provider: fake, breaker: brk, sink: sink, emitter: emitter}
}

// flush waits for every emitted event to reach the sink.
func (p *pipeline) flush() {
	p.emitter.Close()
}

func TestGenerate_StructuredSuccess(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":`, `"hi there"}`)},
	})

	text, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)
	p.flush()

	paramsEvents := p.sink.Stream("generation_u1")
	require.Len(t, paramsEvents, 1, "exactly one parameters-used event")
	assert.Equal(t, events.TypeGenerationParametersUsed, paramsEvents[0].EventType)
	assert.Equal(t, "base", gjson.GetBytes(paramsEvents[0].Data, "mode").String())
	assert.Equal(t, int64(len("hi there")), gjson.GetBytes(paramsEvents[0].Data, "response_length").Int())

	require.Equal(t, 1, p.provider.callCount())
	assert.True(t, p.provider.calls[0].JSONMode)
	assert.Equal(t, uint64(1), p.orch.Metrics().ModeSuccesses(prompt.ModeBase))
}

func TestGenerate_MalformedTriggersSingleFallback(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks("not json")},
		{events: textChunks("plain ", "text answer")},
	})

	text, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	assert.Equal(t, "plain text answer", text, "fallback raw text returned without a second parse")
	p.flush()

	require.Equal(t, 2, p.provider.callCount())
	first, second := p.provider.calls[0], p.provider.calls[1]
	assert.True(t, first.JSONMode)
	assert.False(t, second.JSONMode, "fallback call is plain text")
	assert.NotEqual(t, first.Messages[0].Content, second.Messages[0].Content,
		"fallback phase composes a different system prompt")
	assert.Equal(t, first.Messages[1], second.Messages[1], "user message unchanged")

	failures := p.sink.Stream("user_u1")
	require.Len(t, failures, 1)
	assert.Equal(t, events.TypeJSONModeFailure, failures[0].EventType)
	assert.Equal(t, uint64(1), p.orch.Metrics().JSONFailures())
}

func TestGenerate_MissingResponseFieldTriggersFallback(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"emotion":"calm"}`)},
		{events: textChunks("recovered")},
	})

	text, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, p.provider.callCount())
}

func TestGenerate_FallbackDisabledReturnsRawText(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks("not json")},
	}, WithFallback(false))

	text, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	assert.Equal(t, "not json", text, "degraded raw text when fallback is disabled")
	p.flush()

	assert.Equal(t, 1, p.provider.callCount())
	assert.Equal(t, 1, p.sink.Len("user_u1"))
}

func TestGenerate_JSONModeDisabled(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks("raw answer")},
	}, WithJSONMode(false))

	text, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	assert.Equal(t, "raw answer", text)
	p.flush()

	require.Equal(t, 1, p.provider.callCount())
	assert.False(t, p.provider.calls[0].JSONMode)
	assert.Equal(t, 1, p.sink.Len("generation_u1"))
}

func TestGenerate_ProviderErrorIsFatal(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: streamError(errors.New("upstream down"))},
	})

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.Error(t, err)

	var genErr *GenerationError
	assert.ErrorAs(t, err, &genErr)
	assert.Equal(t, 1, p.provider.callCount(), "no local retry on provider error")
}

func TestGenerate_BreakerOpensAfterThreshold(t *testing.T) {
	script := []scriptedCall{
		{events: streamError(errors.New("down"))},
		{events: streamError(errors.New("down"))},
		{events: streamError(errors.New("down"))},
	}
	p := newPipeline(t, script)

	for i := 0; i < 3; i++ {
		_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
		require.Error(t, err)
	}
	require.Equal(t, breaker.Open, p.breaker.State())

	// The fourth call fails fast without contacting the provider.
	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, 3, p.provider.callCount())
}

func TestGenerate_CacheMetricsEmitted(t *testing.T) {
	usage := &provider.Usage{PromptCacheHitTokens: 75, PromptCacheMissTokens: 25}
	p := newPipeline(t, []scriptedCall{
		{events: []provider.StreamEvent{
			provider.Chunk{Content: `{"response":"ok"}`, Usage: usage},
		}},
	})

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	p.flush()

	metrics := p.sink.Stream("metrics")
	require.Len(t, metrics, 1)
	assert.Equal(t, events.TypeCacheHitMetric, metrics[0].EventType)
	assert.InDelta(t, 0.75, gjson.GetBytes(metrics[0].Data, "cache_hit_rate").Float(), 1e-9)
	assert.InDelta(t, 0.75, p.orch.Metrics().AverageCacheHitRate(), 1e-9)
}

func TestGenerate_ZeroTokensEmitNoCacheMetric(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":"ok"}`)},
	})

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	p.flush()

	assert.Zero(t, p.sink.Len("metrics"))
	assert.Equal(t, uint64(1), p.orch.Metrics().Generations())
}

func TestGenerate_LastUsageWins(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: []provider.StreamEvent{
			provider.Chunk{Content: `{"response":`, Usage: &provider.Usage{PromptCacheHitTokens: 1, PromptCacheMissTokens: 9}},
			provider.Chunk{Content: `"ok"}`, Usage: &provider.Usage{PromptCacheHitTokens: 50, PromptCacheMissTokens: 50}},
		}},
	})

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	p.flush()

	metrics := p.sink.Stream("metrics")
	require.Len(t, metrics, 1)
	assert.Equal(t, int64(50), gjson.GetBytes(metrics[0].Data, "prompt_cache_hit_tokens").Int())
	assert.InDelta(t, 0.5, gjson.GetBytes(metrics[0].Data, "cache_hit_rate").Float(), 1e-9)
}

func TestGenerate_ValidationFailureIsAdvisory(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":"ok","confidence":"very high"}`)},
	})

	text, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err, "validation never blocks the response")
	assert.Equal(t, "ok", text)
	p.flush()

	validation := p.sink.Stream("validation_u1")
	require.Len(t, validation, 1)
	assert.Equal(t, events.TypeJSONValidationFailed, validation[0].EventType)
	assert.Equal(t, "response", gjson.GetBytes(validation[0].Data, "response_fields.0").String())

	assert.Equal(t, uint64(1), p.orch.Metrics().ModeFailures(prompt.ModeBase))
	assert.Zero(t, p.orch.Metrics().ModeSuccesses(prompt.ModeBase))
}

func TestGenerate_ValidationDisabledSkipsCounters(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":"ok","confidence":"very high"}`)},
	}, WithValidation(false))

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	p.flush()

	assert.Zero(t, p.sink.Len("validation_u1"))
	assert.Zero(t, p.orch.Metrics().ModeFailures(prompt.ModeBase))
}

func TestGenerate_UnknownModeUsesBaseParameters(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":"ok"}`)},
	})

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "philosopher")
	require.NoError(t, err)
	p.flush()

	base := prompt.DefaultTable()[prompt.ModeBase]
	require.Equal(t, 1, p.provider.callCount())
	assert.Equal(t, base, p.provider.calls[0].Params)

	paramsEvents := p.sink.Stream("generation_u1")
	require.Len(t, paramsEvents, 1)
	assert.Equal(t, "base", gjson.GetBytes(paramsEvents[0].Data, "mode").String())
}

func TestGenerate_ParamsUsageLoggingDisabled(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":"ok"}`)},
	}, WithParamsUsageLogging(false))

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	p.flush()

	assert.Zero(t, p.sink.Len("generation_u1"))
}

func TestGenerate_ResponseLengthOmitted(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":"ok"}`)},
	}, WithResponseLengthLogging(false))

	_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
	require.NoError(t, err)
	p.flush()

	paramsEvents := p.sink.Stream("generation_u1")
	require.Len(t, paramsEvents, 1)
	assert.False(t, gjson.GetBytes(paramsEvents[0].Data, "response_length").Exists())
}

func TestGenerate_ConcurrentRequests(t *testing.T) {
	script := make([]scriptedCall, 32)
	for i := range script {
		script[i] = scriptedCall{events: textChunks(`{"response":"ok"}`)}
	}
	p := newPipeline(t, script)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.orch.Generate(context.Background(), "u1", "hello", true, "base")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(32), p.orch.Metrics().Generations())
	assert.Equal(t, uint64(32), p.orch.Metrics().ModeSuccesses(prompt.ModeBase))
}

func TestHandler_RoutesSuccessToTransport(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{events: textChunks(`{"response":"hi there"}`)},
	})

	var sent []messages.Message
	handler := NewHandler(p.orch, "telegram", func(_ context.Context, recipient string, msg messages.Message) error {
		assert.Equal(t, "telegram", recipient)
		sent = append(sent, msg)
		return nil
	})

	handler.Handle(context.Background(), messages.NewGenerateRequest("u1", 1001, "hello"))

	require.Len(t, sent, 1)
	response, ok := sent[0].(messages.BotResponse)
	require.True(t, ok)
	assert.Equal(t, "hi there", response.Text)
	assert.Equal(t, int64(1001), response.ChatID)
	assert.False(t, time.Time(response.GeneratedAt).IsZero())
}

func TestHandler_RoutesFailureAsErrorMessage(t *testing.T) {
	p := newPipeline(t, []scriptedCall{
		{callErr: errors.New("upstream down")},
	})

	var sent []messages.Message
	handler := NewHandler(p.orch, "telegram", func(_ context.Context, _ string, msg messages.Message) error {
		sent = append(sent, msg)
		return nil
	})

	handler.Handle(context.Background(), messages.NewGenerateRequest("u1", 1001, "hello"))

	require.Len(t, sent, 1)
	errMsg, ok := sent[0].(messages.Error)
	require.True(t, ok)
	assert.Equal(t, "generation_error", errMsg.ErrorType)
	assert.NotEmpty(t, errMsg.Error)
}
