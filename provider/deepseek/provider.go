// Package deepseek implements the provider interface on top of DeepSeek's
// OpenAI-compatible streaming chat-completions endpoint.
package deepseek

import (
	"context"
	"time"

	"github.com/DmitrySonora/chimera/messages"
	"github.com/DmitrySonora/chimera/provider"
	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/tidwall/gjson"
)

type Provider struct {
	client *openai.Client
}

// New returns a Provider talking to the DeepSeek endpoint. Credentials,
// base URL and request timeout come in as request options; the base URL
// defaults to the public DeepSeek API.
func New(options ...option.RequestOption) *Provider {
	options = append([]option.RequestOption{option.WithBaseURL(DefaultBaseURL)}, options...)
	client := openai.NewClient(options...)
	return &Provider{
		client: client,
	}
}

func buildRequest(req *provider.CompletionRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case messages.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case messages.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	oaiParams := openai.ChatCompletionNewParams{
		Model:            openai.F(req.Model),
		Messages:         openai.F(msgs),
		Temperature:      openai.Float(req.Params.Temperature),
		TopP:             openai.Float(req.Params.TopP),
		MaxTokens:        openai.Int(req.Params.MaxTokens),
		FrequencyPenalty: openai.Float(req.Params.FrequencyPenalty),
		PresencePenalty:  openai.Float(req.Params.PresencePenalty),
		StreamOptions: openai.F(openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}),
	}

	if req.JSONMode {
		oaiParams.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			shared.ResponseFormatJSONObjectParam{
				Type: openai.F(shared.ResponseFormatJSONObjectTypeJSONObject),
			},
		)
	}

	return oaiParams
}

// ChatCompletion issues one streaming request. The returned channel carries
// text chunks in arrival order, is closed when the stream is exhausted, and
// ends with an Error event if the stream fails.
func (p *Provider) ChatCompletion(ctx context.Context, req provider.CompletionRequest) (<-chan provider.StreamEvent, error) {
	chatParams := buildRequest(&req)

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		p.runStream(ctx, chatParams, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, params openai.ChatCompletionNewParams, events chan<- provider.StreamEvent) {
	strm := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer strm.Close()

	if strm.Err() != nil {
		events <- provider.Error{
			Err:       strm.Err(),
			Timestamp: strfmt.DateTime(time.Now()),
		}
		return
	}

	for strm.Next() {
		if err := ctx.Err(); err != nil {
			events <- provider.Error{
				Err:       err,
				Timestamp: strfmt.DateTime(time.Now()),
			}
			return
		}

		chunk := strm.Current()
		events <- chunkToStreamEvent(&chunk)
	}

	if err := strm.Err(); err != nil {
		events <- provider.Error{
			Err:       err,
			Timestamp: strfmt.DateTime(time.Now()),
		}
	}
}

func chunkToStreamEvent(chunk *openai.ChatCompletionChunk) provider.StreamEvent {
	var event provider.Chunk
	if len(chunk.Choices) > 0 {
		event.Content = chunk.Choices[0].Delta.Content
	}

	// DeepSeek reports prompt-cache telemetry as extra usage fields the SDK
	// does not model; read them from the chunk's raw JSON.
	if usage := gjson.Get(chunk.JSON.RawJSON(), "usage"); usage.IsObject() {
		event.Usage = &provider.Usage{
			PromptCacheHitTokens:  usage.Get("prompt_cache_hit_tokens").Int(),
			PromptCacheMissTokens: usage.Get("prompt_cache_miss_tokens").Int(),
		}
	}

	return event
}
