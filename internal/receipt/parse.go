// Package receipt turns free-form model output into receipt data.
//
// Parse distinguishes two outcomes that share one call site: a receipt the
// model rejected (Invalid, a terminal business result) and a response that
// cannot be trusted at all (a returned error, which the caller retries).
package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
)

// DefaultInvalidReason is used when the model flags a receipt invalid
// without saying why.
const DefaultInvalidReason = "Unknown validation error"

// Result is either Valid or Invalid.
type Result interface {
	isResult()
}

// Valid carries the decoded receipt object, still untyped. Decode converts
// it into model.ReceiptData.
type Valid struct {
	Document json.RawMessage
}

// Invalid means the model judged the image unusable.
type Invalid struct {
	Reason string
}

func (Valid) isResult()   {}
func (Invalid) isResult() {}

// FieldErrorKind classifies shape faults in a valid-flagged response.
type FieldErrorKind int

const (
	MissingField FieldErrorKind = iota + 1
	EmptyItems
	InvalidField
)

// FieldError reports a required field that is absent or malformed.
type FieldError struct {
	Kind  FieldErrorKind
	Field string
	Value string
}

func (e *FieldError) Error() string {
	switch e.Kind {
	case MissingField:
		return "Missing required field: " + e.Field
	case EmptyItems:
		return "Items array is empty or invalid"
	case InvalidField:
		return fmt.Sprintf("Invalid %s: %s", e.Field, e.Value)
	default:
		return "invalid receipt field " + e.Field
	}
}

func (e *FieldError) Unwrap() error {
	return apperr.ErrParse
}

// fenceRe only matches a fence that opens or closes a line, so backticks
// inside string values survive.
var fenceRe = regexp.MustCompile("(?im)^[ \\t]*```(?:json)?|```[ \\t]*$")

var requiredFields = []string{"date", "currency", "vendorName", "total"}

// Parse decodes content into a Result. The returned error is always of kind
// apperr.ErrParse.
func Parse(content string) (Result, error) {
	text := StripFences(content)
	if !json.Valid([]byte(text)) {
		if obj, ok := FirstObject(content); ok {
			text = obj
		} else {
			text = "{}"
		}
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, apperr.Parse("decode model response", err)
	}
	if doc == nil {
		return nil, apperr.Parse("model response is not an object", nil)
	}

	if valid, _ := doc["is_valid"].(bool); !valid {
		reason, _ := doc["error"].(string)
		if strings.TrimSpace(reason) == "" {
			reason = DefaultInvalidReason
		}
		return Invalid{Reason: reason}, nil
	}

	for _, field := range requiredFields {
		if missing(doc, field) {
			return nil, &FieldError{Kind: MissingField, Field: field}
		}
	}
	if items, ok := doc["items"].([]any); !ok || len(items) == 0 {
		return nil, &FieldError{Kind: EmptyItems, Field: "items"}
	}
	for _, field := range []string{"tax", "total"} {
		if !isNumber(doc[field]) {
			return nil, &FieldError{Kind: InvalidField, Field: field, Value: render(doc, field)}
		}
	}

	return Valid{Document: json.RawMessage(bytes.TrimSpace([]byte(text)))}, nil
}

// StripFences removes markdown code fences and blank lines.
func StripFences(content string) string {
	stripped := fenceRe.ReplaceAllString(content, "")
	lines := strings.Split(stripped, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// FirstObject returns the first balanced {...} span in s. Braces inside JSON
// strings are ignored.
func FirstObject(s string) (string, bool) {
	for start := strings.IndexByte(s, '{'); start >= 0; {
		if end, ok := matchBrace(s, start); ok {
			return s[start : end+1], true
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchBrace(s string, start int) (int, bool) {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func missing(doc map[string]any, field string) bool {
	v, ok := doc[field]
	if !ok || v == nil {
		return true
	}
	if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
		return true
	}
	return false
}

func isNumber(v any) bool {
	n, ok := v.(json.Number)
	if !ok {
		return false
	}
	f, err := n.Float64()
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func render(doc map[string]any, field string) string {
	v, ok := doc[field]
	if !ok {
		return "undefined"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
