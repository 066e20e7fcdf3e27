package prompt

// Mode selects the generation persona: it picks both the prompt modifier and
// the parameter set used for the provider call.
type Mode string

const (
	ModeBase     Mode = "base"
	ModeTalk     Mode = "talk"
	ModeExpert   Mode = "expert"
	ModeCreative Mode = "creative"
)

// Modes returns the closed enumeration of generation modes.
func Modes() []Mode {
	return []Mode{ModeBase, ModeTalk, ModeExpert, ModeCreative}
}

// ParseMode maps a mode identifier to its Mode. Unrecognized identifiers
// resolve to ModeBase.
func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeTalk:
		return ModeTalk
	case ModeExpert:
		return ModeExpert
	case ModeCreative:
		return ModeCreative
	default:
		return ModeBase
	}
}

// Parameters is the sampling configuration passed to the provider for a
// single completion call.
type Parameters struct {
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	MaxTokens        int64   `json:"max_tokens"`
	FrequencyPenalty float64 `json:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty"`
}

// Table maps every mode to its generation parameters. Resolution is total:
// a mode without an entry falls back to the base entry.
type Table map[Mode]Parameters

// Resolve returns the parameters for mode, falling back to the base entry
// when the mode has no entry of its own.
func (t Table) Resolve(mode Mode) Parameters {
	if params, ok := t[mode]; ok {
		return params
	}
	return t[ModeBase]
}

// DefaultTable returns the stock per-mode parameter sets.
func DefaultTable() Table {
	return Table{
		ModeBase: {
			Temperature:      0.82,
			TopP:             0.85,
			MaxTokens:        1800,
			FrequencyPenalty: 0.4,
			PresencePenalty:  0.65,
		},
		ModeTalk: {
			Temperature:      0.95,
			TopP:             0.9,
			MaxTokens:        1600,
			FrequencyPenalty: 0.5,
			PresencePenalty:  0.75,
		},
		ModeExpert: {
			Temperature:      0.55,
			TopP:             0.8,
			MaxTokens:        2400,
			FrequencyPenalty: 0.3,
			PresencePenalty:  0.4,
		},
		ModeCreative: {
			Temperature:      1.1,
			TopP:             0.95,
			MaxTokens:        2000,
			FrequencyPenalty: 0.6,
			PresencePenalty:  0.85,
		},
	}
}
