// Package events produces the pipeline's observability events and delivers
// them to an external ordered event sink. Events are append-only; ordering
// and version numbering per stream are owned by the sink.
package events

import (
	"time"

	"github.com/DmitrySonora/chimera/pkg/stdx"
	"github.com/DmitrySonora/chimera/pkg/uuidx"
	"github.com/DmitrySonora/chimera/prompt"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

const (
	TypeCacheHitMetric           = "CacheHitMetricEvent"
	TypeJSONModeFailure          = "JSONModeFailureEvent"
	TypeJSONValidationFailed     = "JSONValidationFailedEvent"
	TypeGenerationParametersUsed = "GenerationParametersUsedEvent"
)

// Event is one observability record. Events sharing a StreamID are observed
// in append order; the version number is assigned by the sink.
type Event struct {
	EventID   uuid.UUID       `json:"event_id"`
	StreamID  string          `json:"stream_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

// New builds an event with a fresh id and the current timestamp.
func New(streamID, eventType string, data []byte) Event {
	return Event{
		EventID:   uuidx.New(),
		StreamID:  streamID,
		EventType: eventType,
		Data:      data,
		Timestamp: strfmt.DateTime(time.Now()),
	}
}

// NewCacheHitMetric reports one generation's prompt-cache telemetry.
func NewCacheHitMetric(hitTokens, missTokens int64, hitRate float64) Event {
	data := stdx.Must1(sjson.SetBytes([]byte(`{}`), "prompt_cache_hit_tokens", hitTokens))
	data = stdx.Must1(sjson.SetBytes(data, "prompt_cache_miss_tokens", missTokens))
	data = stdx.Must1(sjson.SetBytes(data, "cache_hit_rate", hitRate))
	return New("metrics", TypeCacheHitMetric, data)
}

// NewJSONModeFailure reports a structured-parse failure for a user's request.
func NewJSONModeFailure(userID, errMsg string) Event {
	data := stdx.Must1(sjson.SetBytes([]byte(`{}`), "user_id", userID))
	data = stdx.Must1(sjson.SetBytes(data, "error", errMsg))
	return New("user_"+userID, TypeJSONModeFailure, data)
}

// NewJSONValidationFailed reports an advisory validation failure together
// with the (already truncated) error list and the payload's field names.
func NewJSONValidationFailed(userID string, errs []string, responseFields []string) Event {
	data := stdx.Must1(sjson.SetBytes([]byte(`{}`), "user_id", userID))
	data = stdx.Must1(sjson.SetBytes(data, "errors", errs))
	data = stdx.Must1(sjson.SetBytes(data, "response_fields", responseFields))
	return New("validation_"+userID, TypeJSONValidationFailed, data)
}

// NewGenerationParametersUsed records the resolved sampling parameters for
// one generation. A negative responseLength omits the length field.
func NewGenerationParametersUsed(userID string, mode prompt.Mode, params prompt.Parameters, responseLength int) Event {
	data := stdx.Must1(sjson.SetBytes([]byte(`{}`), "user_id", userID))
	data = stdx.Must1(sjson.SetBytes(data, "mode", string(mode)))
	data = stdx.Must1(sjson.SetBytes(data, "temperature", params.Temperature))
	data = stdx.Must1(sjson.SetBytes(data, "top_p", params.TopP))
	data = stdx.Must1(sjson.SetBytes(data, "max_tokens", params.MaxTokens))
	data = stdx.Must1(sjson.SetBytes(data, "frequency_penalty", params.FrequencyPenalty))
	data = stdx.Must1(sjson.SetBytes(data, "presence_penalty", params.PresencePenalty))
	if responseLength >= 0 {
		data = stdx.Must1(sjson.SetBytes(data, "response_length", responseLength))
	}
	return New("generation_"+userID, TypeGenerationParametersUsed, data)
}
