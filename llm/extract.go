// ABOUTME: Robust extraction of the first brace-balanced JSON object from raw model output.
// ABOUTME: Tracks nested-brace depth character by character; surrounding prose is measured and discarded.
package llm

import (
	"encoding/json"
	"strings"
)

// ExtractResult holds a successfully extracted structured object plus
// accounting of what was thrown away to obtain it.
type ExtractResult struct {
	Object         map[string]any
	Block          string   // the raw balanced-brace block that parsed
	DiscardedChars int      // characters of surrounding prose ignored
	Repairs        []string // best-effort repairs applied before parsing succeeded
}

// ExtractFirstObject locates the first top-level brace-balanced object in raw
// text and parses it as JSON, ignoring any markdown fences, prose, or
// trailing commentary around it. Parsing is strict first; if strict parsing
// fails, a fixed sequence of best-effort repairs is attempted and each
// applied repair is named in the result. Failures are categorized, never
// raw json errors.
func ExtractFirstObject(raw string) (*ExtractResult, ParseCategory, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, CategoryEmptyResponse, &ClientError{Message: "reasoning backend returned an empty response"}
	}

	block, found, truncated := firstBalancedBlock(raw)
	if !found {
		if truncated {
			return nil, CategoryTruncatedOutput, &ClientError{Message: "response contains an unterminated object (output truncated?)"}
		}
		return nil, CategoryInvalidFormat, &ClientError{Message: "no brace-balanced object found in response"}
	}

	discarded := len(raw) - len(block)

	var obj map[string]any
	if err := json.Unmarshal([]byte(block), &obj); err == nil {
		return &ExtractResult{Object: obj, Block: block, DiscardedChars: discarded}, "", nil
	}

	// Strict parse failed: apply repairs in fixed order and retry.
	repaired, repairs := repairJSON(block)
	if len(repairs) > 0 {
		if err := json.Unmarshal([]byte(repaired), &obj); err == nil {
			return &ExtractResult{
				Object:         obj,
				Block:          block,
				DiscardedChars: discarded,
				Repairs:        repairs,
			}, "", nil
		}
	}

	return nil, CategoryInvalidFormat, &ClientError{Message: "extracted block is not a parseable key-value object"}
}

// firstBalancedBlock scans for the first '{' and returns the substring up to
// its matching '}', honoring string literals and escape sequences. The third
// return reports that an opening brace was seen but never closed.
func firstBalancedBlock(raw string) (block string, found bool, truncated bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(raw); i++ {
		c := raw[i]

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
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return raw[start : i+1], true, false
			}
		}
	}

	return "", false, start >= 0
}

// repairJSON applies best-effort fixes for common near-JSON output, in fixed
// precedence: line comments, then single-quoted strings, then trailing
// commas. Returns the repaired text and the names of repairs that changed it.
func repairJSON(block string) (string, []string) {
	var repairs []string

	next := stripLineComments(block)
	if next != block {
		repairs = append(repairs, "strip_line_comments")
		block = next
	}

	next = normalizeSingleQuotes(block)
	if next != block {
		repairs = append(repairs, "normalize_single_quotes")
		block = next
	}

	next = dropTrailingCommas(block)
	if next != block {
		repairs = append(repairs, "drop_trailing_commas")
		block = next
	}

	return block, repairs
}

// stripLineComments removes // comments outside string literals.
func stripLineComments(s string) string {
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
		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			// Skip to end of line.
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// normalizeSingleQuotes rewrites single-quoted strings as double-quoted,
// escaping any interior double quotes. Apostrophes inside double-quoted
// strings are untouched.
func normalizeSingleQuotes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble := false
	inSingle := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		switch {
		case inDouble:
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
		case inSingle:
			switch {
			case escaped:
				b.WriteByte(c)
				escaped = false
			case c == '\\':
				b.WriteByte(c)
				escaped = true
			case c == '\'':
				b.WriteByte('"')
				inSingle = false
			case c == '"':
				b.WriteString(`\"`)
			default:
				b.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'':
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// dropTrailingCommas removes commas immediately preceding a closing brace or
// bracket, outside string literals.
func dropTrailingCommas(s string) string {
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
			// Look ahead past whitespace for a closer.
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
