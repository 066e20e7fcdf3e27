package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/DmitrySonora/chimera/messages"
	"github.com/DmitrySonora/chimera/pkg/slogx"
	"github.com/go-openapi/strfmt"
)

// SendFunc is the surrounding system's sendMessage primitive: it routes a
// message to the named actor.
type SendFunc func(ctx context.Context, recipient string, msg messages.Message) error

// Handler is the actor-boundary glue: it consumes GenerateRequest commands
// and routes the outcome to the transport actor. The end user always
// receives either generated text or one human-readable error string.
type Handler struct {
	orch      *Orchestrator
	transport string
	send      SendFunc
}

// NewHandler wires an orchestrator to the transport actor named by
// transport.
func NewHandler(orch *Orchestrator, transport string, send SendFunc) *Handler {
	return &Handler{
		orch:      orch,
		transport: transport,
		send:      send,
	}
}

// Handle processes one generation command. Failures are translated into an
// Error message; they never escape as panics or crash the process.
func (h *Handler) Handle(ctx context.Context, req messages.GenerateRequest) {
	text, err := h.orch.Generate(ctx, req.UserID, req.Text, req.IncludePrompt, req.Mode)
	if err != nil {
		slog.Error("generation failed",
			slog.String("user_id", req.UserID),
			slogx.Error(err))

		errMsg := messages.Error{
			UserID:    req.UserID,
			ChatID:    req.ChatID,
			Error:     err.Error(),
			ErrorType: "generation_error",
		}
		if sendErr := h.send(ctx, h.transport, errMsg); sendErr != nil {
			slog.Error("failed to send error message", slogx.Error(sendErr))
		}
		return
	}

	slog.Info("generated response",
		slog.String("user_id", req.UserID),
		slog.Int("length", len(text)))

	response := messages.BotResponse{
		UserID:      req.UserID,
		ChatID:      req.ChatID,
		Text:        text,
		GeneratedAt: strfmt.DateTime(time.Now()),
	}
	if sendErr := h.send(ctx, h.transport, response); sendErr != nil {
		slog.Error("failed to send bot response", slogx.Error(sendErr))
	}
}
