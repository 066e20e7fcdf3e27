package prompt

import (
	"log/slog"
	"strings"

	"github.com/DmitrySonora/chimera/messages"
)

// Phase selects the request variant: the structured phase asks the provider
// for machine-parseable output, the fallback phase for plain text.
type Phase string

const (
	PhaseStructured Phase = "structured"
	PhaseFallback   Phase = "fallback"
)

// placeholderMarker flags a prompt modifier that has been registered but not
// written yet. A modifier containing it is treated as absent.
const placeholderMarker = "TODO"

// Variant holds the two phase-specific renditions of a prompt text.
type Variant struct {
	Structured string
	Fallback   string
}

// ForPhase returns the rendition matching the given phase.
func (v Variant) ForPhase(phase Phase) string {
	if phase == PhaseStructured {
		return v.Structured
	}
	return v.Fallback
}

// Library is the externally owned prompt configuration: the base system
// prompt, per-mode modifiers, and per-mode schema-instruction blocks appended
// in the structured phase.
type Library struct {
	Base               Variant
	Modifiers          map[Mode]Variant
	SchemaInstructions map[Mode]string
}

// DefaultLibrary returns the stock prompt texts. Schema instructions are
// supplied by the caller so the structured-response schemas stay owned by the
// structured package.
func DefaultLibrary(schemaInstructions map[Mode]string) Library {
	return Library{
		Base: Variant{
			Structured: basePromptStructured,
			Fallback:   basePromptFallback,
		},
		Modifiers: map[Mode]Variant{
			ModeTalk: {
				Structured: talkModifier,
				Fallback:   talkModifier,
			},
			ModeExpert: {
				Structured: expertModifier,
				Fallback:   expertModifier,
			},
			ModeCreative: {
				Structured: creativeModifier,
				Fallback:   creativeModifier,
			},
		},
		SchemaInstructions: schemaInstructions,
	}
}

const (
	basePromptFallback = `You are Chimera, a sharp-tongued and erudite companion. ` +
		`Answer in the voice of the user's message, stay concrete, and never ` +
		`mention that you are a language model.`

	basePromptStructured = basePromptFallback + `

Always answer with a single JSON object. Put the reply text in the "response" field.`

	talkModifier = `Keep the register informal and conversational. Short sentences, ` +
		`warm tone, follow the user's lead.`

	expertModifier = `Answer as a domain expert: precise terminology, structured ` +
		`reasoning, cite sources when you rely on them.`

	creativeModifier = `Lean into imagery and metaphor. Prefer vivid, unexpected ` +
		`phrasing over plain exposition.`
)

// Composer builds the ordered message list for a provider call.
type Composer struct {
	lib Library
}

// NewComposer returns a Composer over the given prompt library.
func NewComposer(lib Library) *Composer {
	return &Composer{lib: lib}
}

// Compose returns the ordered message list for one completion call. When
// includePrompt is false only the user message is emitted. Conversation
// history injection is a reserved extension point between the system prompt
// and the user message; it is intentionally not implemented here.
func (c *Composer) Compose(text string, includePrompt bool, mode Mode, phase Phase) []messages.ChatMessage {
	msgs := make([]messages.ChatMessage, 0, 2)
	if includePrompt {
		msgs = append(msgs, messages.System(c.systemPrompt(mode, phase)))
	}
	msgs = append(msgs, messages.User(text))
	return msgs
}

// systemPrompt assembles base prompt + mode modifier + schema instructions.
// Unknown modes and placeholder modifiers fall through to the unmodified base
// prompt for the phase.
func (c *Composer) systemPrompt(mode Mode, phase Phase) string {
	base := c.lib.Base.ForPhase(phase)
	if mode == ModeBase {
		return base
	}

	modifier, ok := c.lib.Modifiers[mode]
	if !ok {
		slog.Warn("unknown mode, falling back to base prompt", slog.String("mode", string(mode)))
		return base
	}

	text := modifier.ForPhase(phase)
	if text == "" || strings.Contains(text, placeholderMarker) {
		return base
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	sb.WriteString(text)

	if phase == PhaseStructured {
		if instructions := c.lib.SchemaInstructions[mode]; instructions != "" {
			sb.WriteString("\n\n")
			sb.WriteString(instructions)
		}
	}

	return sb.String()
}
