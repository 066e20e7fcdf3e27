package structured

import (
	"fmt"

	"github.com/DmitrySonora/chimera/prompt"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// FieldError is one validation finding: the offending field path and a
// human-readable message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Message
}

// Outcome is the result of an advisory validation pass. It never blocks the
// response; callers use it for telemetry and metrics only.
type Outcome struct {
	Valid  bool
	Errors []FieldError
}

// Strings renders the error list for event payloads.
func (o Outcome) Strings() []string {
	out := make([]string, len(o.Errors))
	for i, e := range o.Errors {
		out[i] = e.String()
	}
	return out
}

// Validator checks payloads against the mode's reflected response schema.
type Validator struct {
	maxErrors int
}

// NewValidator returns a Validator that truncates findings at maxErrors,
// appending a count-only summary entry when it does.
func NewValidator(maxErrors int) *Validator {
	if maxErrors <= 0 {
		maxErrors = 5
	}
	return &Validator{maxErrors: maxErrors}
}

// Validate runs the advisory schema check for the given mode.
func (v *Validator) Validate(p *Payload, mode prompt.Mode) Outcome {
	schema := SchemaFor(mode)
	doc := gjson.ParseBytes(p.Raw())

	var errs []FieldError

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	if schema.Properties != nil {
		for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
			name, propSchema := pair.Key, pair.Value

			field := doc.Get(name)
			if !field.Exists() {
				if required[name] {
					errs = append(errs, FieldError{Field: name, Message: "field required"})
				}
				continue
			}

			if msg := checkValue(field, propSchema); msg != "" {
				errs = append(errs, FieldError{Field: name, Message: msg})
			}
		}
	}

	if len(errs) > v.maxErrors {
		over := len(errs) - v.maxErrors
		errs = append(errs[:v.maxErrors], FieldError{
			Field:   "...",
			Message: fmt.Sprintf("and %d more errors", over),
		})
	}

	return Outcome{Valid: len(errs) == 0, Errors: errs}
}

// checkValue verifies a field against its property schema. Only the checks
// the reflected schemas can express are applied: primitive type and
// minLength.
func checkValue(field gjson.Result, schema *jsonschema.Schema) string {
	switch schema.Type {
	case "string":
		if field.Type != gjson.String {
			return "expected string"
		}
		if schema.MinLength != nil && uint64(len(field.String())) < *schema.MinLength {
			return fmt.Sprintf("shorter than %d characters", *schema.MinLength)
		}
	case "number", "integer":
		if field.Type != gjson.Number {
			return "expected " + schema.Type
		}
	case "boolean":
		if !field.IsBool() {
			return "expected boolean"
		}
	case "array":
		if !field.IsArray() {
			return "expected array"
		}
	case "object":
		if !field.IsObject() {
			return "expected object"
		}
	}
	return ""
}
