package structured

import (
	"sync"

	"github.com/DmitrySonora/chimera/prompt"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// BaseResponse is the default structured-response shape. Every mode-specific
// shape carries at least the response field.
type BaseResponse struct {
	Response   string  `json:"response" jsonschema:"minLength=1"`
	Emotion    string  `json:"emotion,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// TalkResponse is the conversational-mode shape.
type TalkResponse struct {
	Response        string `json:"response" jsonschema:"minLength=1"`
	Emotion         string `json:"emotion,omitempty"`
	EngagementLevel string `json:"engagement_level,omitempty"`
}

// ExpertResponse is the expert-mode shape.
type ExpertResponse struct {
	Response   string   `json:"response" jsonschema:"minLength=1"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

// CreativeResponse is the creative-mode shape.
type CreativeResponse struct {
	Response     string   `json:"response" jsonschema:"minLength=1"`
	StyleMarkers []string `json:"style_markers,omitempty"`
	Metaphors    []string `json:"metaphors,omitempty"`
}

var (
	schemaOnce sync.Once
	schemas    map[prompt.Mode]*jsonschema.Schema
)

func modeSchemas() map[prompt.Mode]*jsonschema.Schema {
	schemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
		}
		schemas = map[prompt.Mode]*jsonschema.Schema{
			prompt.ModeBase:     reflector.Reflect(&BaseResponse{}),
			prompt.ModeTalk:     reflector.Reflect(&TalkResponse{}),
			prompt.ModeExpert:   reflector.Reflect(&ExpertResponse{}),
			prompt.ModeCreative: reflector.Reflect(&CreativeResponse{}),
		}
	})
	return schemas
}

// SchemaFor returns the reflected JSON schema for a mode's response shape.
// Unknown modes resolve to the base schema.
func SchemaFor(mode prompt.Mode) *jsonschema.Schema {
	all := modeSchemas()
	if schema, ok := all[mode]; ok {
		return schema
	}
	return all[prompt.ModeBase]
}

// Instructions renders the per-mode schema-instruction blocks appended to
// structured-phase system prompts.
func Instructions() map[prompt.Mode]string {
	result := make(map[prompt.Mode]string, len(prompt.Modes()))
	for _, mode := range prompt.Modes() {
		encoded, err := json.MarshalIndent(SchemaFor(mode), "", "  ")
		if err != nil {
			continue
		}
		result[mode] = "Your answer must be a single JSON object matching this schema:\n" + string(encoded)
	}
	return result
}
