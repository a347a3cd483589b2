// Package utils contains parsing helpers for model output.
package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSONObject pulls a JSON object out of raw model output and decodes
// it into dst. It tries a direct parse first, then a fenced code block, then
// the outermost brace pair, repairing common model mistakes along the way.
func ExtractJSONObject(raw string, dst any) error {
	return extractJSON(raw, dst, '{', '}')
}

// ExtractJSONArray is ExtractJSONObject for top-level arrays.
func ExtractJSONArray(raw string, dst any) error {
	return extractJSON(raw, dst, '[', ']')
}

func extractJSON(raw string, dst any, open, close byte) error {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return fmt.Errorf("empty model output")
	}

	candidates := []string{clean}
	if m := fencedBlockRe.FindStringSubmatch(clean); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if span := matchSpan(clean, open, close); span != "" {
		candidates = append(candidates, span)
	}

	var lastErr error
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if err := json.Unmarshal([]byte(c), dst); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if err := json.Unmarshal([]byte(repairJSON(c)), dst); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("no parseable JSON in model output: %w", lastErr)
}

// matchSpan returns the first balanced open..close span, honoring strings
// and escapes so braces inside values do not break the match.
func matchSpan(s string, open, close byte) string {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// unterminated span, return best effort for the repair pass
	return s[start:]
}

// repairJSON fixes the failure modes chat models produce most often:
// raw control characters inside strings, trailing commas, and an
// unterminated final string or container.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			b.WriteByte(ch)
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			b.WriteByte(ch)
			escaped = true
		case ch == '"':
			inString = !inString
			b.WriteByte(ch)
		case inString && ch == '\n':
			b.WriteString(`\n`)
		case inString && ch == '\t':
			b.WriteString(`\t`)
		case inString && ch == '\r':
		case inString && ch < 0x20:
		default:
			b.WriteByte(ch)
		}
	}
	out := b.String()
	if inString {
		out += `"`
	}
	out = trailingCommaRe.ReplaceAllString(out, "$1")
	out = closeContainers(out)
	return out
}

func closeContainers(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\' && inString:
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			stack = append(stack, '}')
		case ch == '[':
			stack = append(stack, ']')
		case ch == '}' || ch == ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
