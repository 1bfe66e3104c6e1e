// Package jsonx recovers JSON values from LLM output. The pipeline is
// strip code fences, slice the first balanced top-level value, then parse
// with a one-shot repair fallback. Callers never pattern-match on raw text.
package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedModelOutput indicates the extractor could not recover JSON.
var ErrMalformedModelOutput = errors.New("malformed model output")

const previewLen = 120

// Extract returns the first JSON value found in text, decoded into out.
// out must be a pointer, as for json.Unmarshal.
func Extract(text string, out any) error {
	candidate := Slice(text)
	if candidate == "" {
		return malformed(text)
	}
	if err := json.Unmarshal([]byte(candidate), out); err == nil {
		return nil
	}
	repaired := repair(candidate)
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return malformed(text)
	}
	return nil
}

// Slice locates the first top-level '{' or '[' and returns the balanced
// span, respecting string escaping. Returns "" when no balanced value exists.
func Slice(text string) string {
	text = StripFences(text)
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// StripFences removes a surrounding markdown code fence, with or without a
// language tag. Text without fences passes through unchanged.
func StripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = trimmed[3:]
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if !strings.ContainsAny(first, "{}[]") {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// repair applies a one-shot cleanup: smart-quote normalization and
// trailing-comma removal. It does not guess semantics.
func repair(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`,
		"”", `"`,
		"‘", "'",
		"’", "'",
	)
	s = replacer.Replace(s)

	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func malformed(text string) error {
	preview := strings.TrimSpace(text)
	if len(preview) > previewLen {
		preview = preview[:previewLen] + "..."
	}
	return fmt.Errorf("%w: %q", ErrMalformedModelOutput, preview)
}
