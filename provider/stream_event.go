package provider

import (
	"fmt"

	"github.com/go-openapi/strfmt"
)

// StreamEvent is the union of values produced while draining one streaming
// completion. The producing goroutine closes the channel when the stream is
// exhausted; the sequence is finite and cannot be restarted.
type StreamEvent interface {
	streamEvent()
}

// Chunk is an incremental text fragment. Usage, when present, carries the
// provider's cumulative cache telemetry: each occurrence replaces the
// previous one rather than accumulating.
type Chunk struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

func (Chunk) streamEvent() {}

// Usage is the prompt-cache telemetry reported by the provider. Values are
// cumulative for the whole request.
type Usage struct {
	PromptCacheHitTokens  int64 `json:"prompt_cache_hit_tokens"`
	PromptCacheMissTokens int64 `json:"prompt_cache_miss_tokens"`
}

// Error terminates a stream: no further events follow it.
type Error struct {
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("timestamp: %s, error: %v", e.Timestamp, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}
