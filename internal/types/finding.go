package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FindingKind names the variant held by a FindingValue.
type FindingKind int

const (
	FindingBool FindingKind = iota
	FindingNumber
	FindingText
)

func (k FindingKind) String() string {
	switch k {
	case FindingBool:
		return "bool"
	case FindingNumber:
		return "number"
	case FindingText:
		return "text"
	default:
		return "unknown"
	}
}

// FindingValue is one value of the schema-less deep-dive results map.
// The set of variants is closed; dispatch with MatchFinding.
type FindingValue interface {
	Kind() FindingKind
	sealedFinding()
}

// BoolValue is a detected/clear flag.
type BoolValue bool

// NumberValue is a numeric metric.
type NumberValue float64

// TextValue is free text. Nested JSON objects and arrays arrive here as their raw text.
type TextValue string

func (BoolValue) Kind() FindingKind   { return FindingBool }
func (NumberValue) Kind() FindingKind { return FindingNumber }
func (TextValue) Kind() FindingKind   { return FindingText }

func (BoolValue) sealedFinding()   {}
func (NumberValue) sealedFinding() {}
func (TextValue) sealedFinding()   {}

// MatchFinding dispatches on the variant of v. Every variant has its own handler, so
// adding a variant changes this signature and breaks every caller until handled.
func MatchFinding[R any](v FindingValue, onBool func(bool) R, onNumber func(float64) R, onText func(string) R) R {
	switch x := v.(type) {
	case BoolValue:
		return onBool(bool(x))
	case NumberValue:
		return onNumber(float64(x))
	case TextValue:
		return onText(string(x))
	default:
		panic(fmt.Sprintf("types: unhandled finding value %T", v))
	}
}

// Finding is one named entry of a deep-dive result.
type Finding struct {
	Key   string
	Value FindingValue
}

// DeepDiveResult is the Stage 2 response of GET /scan/{id}/deep_dive.
// Findings keep the order in which the service emitted them.
type DeepDiveResult struct {
	ScanID   string
	Feature  string
	Category string
	Findings []Finding
}

type deepDiveWire struct {
	Feature  string          `json:"feature"`
	Category string          `json:"phase2_category"`
	Results  json.RawMessage `json:"results"`
}

// UnmarshalJSON decodes the wire payload and classifies each result value by its
// JSON token type.
func (d *DeepDiveResult) UnmarshalJSON(data []byte) error {
	var wire deepDiveWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	findings, err := ParseFindings(wire.Results)
	if err != nil {
		return err
	}
	d.Feature = wire.Feature
	d.Category = wire.Category
	d.Findings = findings
	return nil
}

// MarshalJSON writes the wire shape back out, keeping finding order.
func (d DeepDiveResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"scan_id":`)
	if err := writeJSON(&buf, d.ScanID); err != nil {
		return nil, err
	}
	buf.WriteString(`,"feature":`)
	if err := writeJSON(&buf, d.Feature); err != nil {
		return nil, err
	}
	buf.WriteString(`,"phase2_category":`)
	if err := writeJSON(&buf, d.Category); err != nil {
		return nil, err
	}
	buf.WriteString(`,"results":{`)
	for i, f := range d.Findings {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		var v any
		if f.Value != nil {
			v = MatchFinding(f.Value,
				func(b bool) any { return b },
				func(n float64) any { return n },
				func(s string) any { return s },
			)
		}
		if err := writeJSON(&buf, v); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

// ParseFindings decodes a JSON object into ordered findings. A missing or null
// payload yields no findings; any other non-object payload is rejected.
func ParseFindings(raw json.RawMessage) ([]Finding, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("results must be a JSON object")
	}

	var findings []Finding
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("results: %w", err)
		}
		key, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("results[%q]: %w", key, err)
		}
		fv, err := classifyFinding(value)
		if err != nil {
			return nil, fmt.Errorf("results[%q]: %w", key, err)
		}
		findings = append(findings, Finding{Key: key, Value: fv})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	return findings, nil
}

func classifyFinding(raw json.RawMessage) (FindingValue, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return TextValue(""), nil
	}
	switch c := raw[0]; {
	case c == 't' || c == 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return BoolValue(b), nil
	case c == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return TextValue(s), nil
	case c == '-' || (c >= '0' && c <= '9'):
		n, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil, err
		}
		return NumberValue(n), nil
	default:
		var compact bytes.Buffer
		if err := json.Compact(&compact, raw); err != nil {
			return nil, err
		}
		return TextValue(compact.String()), nil
	}
}
