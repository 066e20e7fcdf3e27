package provider

import (
	"context"

	"github.com/DmitrySonora/chimera/messages"
	"github.com/DmitrySonora/chimera/prompt"
)

// Provider defines the interface for streaming completion backends.
// Implementations handle the specifics of one API while the rest of the
// pipeline stays provider-agnostic.
type Provider interface {
	ChatCompletion(context.Context, CompletionRequest) (<-chan StreamEvent, error)
}

// CompletionRequest encapsulates all parameters for one streaming completion
// call.
type CompletionRequest struct {
	// Model names the provider-side model to use.
	Model string

	// Messages is the ordered message list built by the prompt composer.
	Messages []messages.ChatMessage

	// Params is the resolved sampling configuration for the request's mode.
	Params prompt.Parameters

	// JSONMode requests machine-parseable output
	// (response_format={"type":"json_object"}).
	JSONMode bool

	// Prevents unkeyed literals
	_ struct{}
}
