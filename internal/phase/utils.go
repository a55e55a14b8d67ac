package phase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrNoJSONObject   = errors.New("no JSON object in response")
	ErrMissingField   = errors.New("required field missing")
	ErrTrailingOutput = errors.New("unexpected data after JSON object")
)

// CleanJSONResponse strips markdown code fences and surrounding prose from
// a model answer, returning the outermost JSON object. Unlike lenient
// repair, the object text itself is never rewritten.
func CleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```") && strings.HasSuffix(response, "```") && len(response) >= 6 {
		response = strings.TrimSuffix(response, "```")
		response = strings.TrimPrefix(response, "```")
		// drop the language tag, e.g. ```json
		if nl := strings.IndexByte(response, '\n'); nl >= 0 && !strings.Contains(response[:nl], "{") {
			response = response[nl+1:]
		}
		response = strings.TrimSpace(response)
	}

	if json.Valid([]byte(response)) {
		return response
	}
	if obj, ok := outerObject(response); ok {
		return obj
	}
	return response
}

// outerObject returns the first balanced {...} span, honouring strings so
// braces inside values do not count.
func outerObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeObject cleans response and decodes it into v. Every name in
// required must be present as a top-level key; a type mismatch anywhere
// fails the decode. Extra keys are ignored.
func DecodeObject(response string, v any, required ...string) error {
	cleaned := CleanJSONResponse(response)
	if !strings.HasPrefix(cleaned, "{") {
		return ErrNoJSONObject
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &keys); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	for _, name := range required {
		if _, ok := keys[name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if dec.More() {
		return ErrTrailingOutput
	}
	return nil
}

// Truncate shortens s to at most n bytes for logs and events, cutting on
// a rune boundary.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
