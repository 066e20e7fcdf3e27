// Package structured parses and validates the machine-parseable payloads
// requested from the provider in the structured phase.
package structured

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed marks text that is not a JSON object.
	ErrMalformed = errors.New("payload is not a JSON object")
	// ErrResponseMissing marks a well-formed object without the mandatory
	// "response" field.
	ErrResponseMissing = errors.New(`payload has no "response" field`)
)

// responseField is the one field every usable payload must carry.
const responseField = "response"

// Payload is a parsed structured response. It keeps the raw document so
// field order survives for telemetry.
type Payload struct {
	raw    []byte
	fields map[string]any
}

// Extract parses text as a structured payload. It fails with ErrMalformed
// when the text is not a JSON object and with ErrResponseMissing when the
// object lacks the "response" field.
func Extract(text string) (*Payload, error) {
	raw := []byte(text)

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	if _, ok := fields[responseField]; !ok {
		return nil, ErrResponseMissing
	}

	p := &Payload{raw: raw, fields: fields}

	// Diagnostic-only decode against the base response shape. The result is
	// discarded; a mismatch here never blocks the payload.
	var probe BaseResponse
	_ = json.Unmarshal(raw, &probe)

	return p, nil
}

// Response returns the value of the "response" field. Non-string values are
// returned in their JSON rendition.
func (p *Payload) Response() string {
	switch v := p.fields[responseField].(type) {
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	}
}

// Fields returns the payload's top-level field names in document order.
func (p *Payload) Fields() []string {
	var names []string
	gjson.ParseBytes(p.raw).ForEach(func(key, _ gjson.Result) bool {
		names = append(names, key.String())
		return true
	})
	return names
}

// Raw returns the original document bytes.
func (p *Payload) Raw() []byte {
	return p.raw
}
