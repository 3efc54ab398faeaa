// Package jsonrepair recovers truncated or decorated JSON text returned by
// LLM providers. It is a best-effort heuristic, not a general JSON repair
// algorithm: it only removes already-invalid trailing content and never
// fabricates data.
package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fenceRe = regexp.MustCompile("```\\w*\\n?|\\n?```")

// completePairRe matches a full `"key": "value"` line, optionally with a
// trailing comma. Lines that do not match mark the truncation point.
var completePairRe = regexp.MustCompile(`^"[^"]+"\s*:\s*"[^"]*"\s*,?\s*$`)

var trailingCommaRe = regexp.MustCompile(`,\s*$`)

// StripFences removes markdown code-fence wrappers from s.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// Repair extracts the outermost JSON object from raw. It strips code
// fences, discards any preamble before the first '{', and scans brace
// depth while honoring string literals and escapes.
//
// If the object is balanced the substring up to its matching close brace
// is returned, ignoring trailing garbage. If the object is truncated, a
// line-level salvage keeps only complete key/value pair lines and closes
// the object. The second return value is false when no '{' exists at all
// or nothing salvageable remains.
func Repair(raw string) (string, bool) {
	s := StripFences(raw)

	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	s = s[start:]

	depth := 0
	inString := false
	escape := false
	end := -1

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escape {
			escape = false
			continue
		}
		if c == '\\' && inString {
			escape = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i
			}
		}
	}

	if depth == 0 && end != -1 {
		return s[:end+1], true
	}

	if depth > 0 {
		return salvageLines(s)
	}

	return "", false
}

// salvageLines keeps only lines that form a complete `"key": "value"` pair
// or a structural brace, dropping everything from the first non-conforming
// line onward, then strips a trailing comma and closes the object.
func salvageLines(s string) (string, bool) {
	var kept []string
	truncated := false

	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case completePairRe.MatchString(trimmed) || trimmed == "{":
			if !truncated {
				kept = append(kept, line)
			}
		case trimmed == "}":
			kept = append(kept, line)
		default:
			truncated = true
		}
	}

	repaired := strings.Join(kept, "\n")
	repaired = trailingCommaRe.ReplaceAllString(repaired, "")
	if repaired == "" {
		return "", false
	}
	if !strings.HasSuffix(strings.TrimSpace(repaired), "}") {
		repaired += "\n}"
	}
	return repaired, true
}

// SafeUnmarshal decodes text into v, attempting a Repair pass when the
// direct decode fails. The original decode error is returned when repair
// is impossible or the repaired text still does not parse.
func SafeUnmarshal(text string, v any) error {
	err := json.Unmarshal([]byte(text), v)
	if err == nil {
		return nil
	}
	repaired, ok := Repair(text)
	if !ok {
		return err
	}
	if json.Unmarshal([]byte(repaired), v) != nil {
		return err
	}
	return nil
}
