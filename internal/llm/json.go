package llm

import "encoding/json"

// findJSONCandidates scans the input for top-level JSON object candidates.
// It handles nested braces and string escaping to correctly identify
// boundaries, using a byte-level state machine rather than regex extraction.
//
// Note: It is safe to iterate bytes for ASCII delimiters ({, }, ", \) because
// UTF-8 encoding guarantees that ASCII bytes never appear as part of a
// multi-byte sequence.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	start := -1
	var inString bool
	var escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		if b == '"' {
			inString = true
			continue
		}

		if b == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if b == '}' {
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}

// ExtractJSON returns the last valid top-level JSON object embedded in the
// response, or "" when none exists. LLMs often wrap JSON in prose or code
// fences; the last object is kept because models occasionally echo the
// requested schema before emitting the filled-in version.
func ExtractJSON(resp string) string {
	candidates := findJSONCandidates(resp)
	for i := len(candidates) - 1; i >= 0; i-- {
		if json.Valid([]byte(candidates[i])) {
			return candidates[i]
		}
	}
	// Nothing balanced at the top level; try balanced objects nested inside
	// unbalanced braces (a common truncation artifact).
	inner := findInnerCandidates(resp)
	for i := len(inner) - 1; i >= 0; i-- {
		if json.Valid([]byte(inner[i])) {
			return inner[i]
		}
	}
	return ""
}

// findInnerCandidates retries the scan one brace-level deep, recovering
// objects trapped inside an unbalanced outer brace.
func findInnerCandidates(s string) []string {
	idx := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			idx = i
			break
		}
	}
	if idx == -1 || idx+1 >= len(s) {
		return nil
	}
	return findJSONCandidates(s[idx+1:])
}

// DecodeJSON extracts and unmarshals the last valid JSON object in resp.
func DecodeJSON(resp string, v interface{}) error {
	raw := ExtractJSON(resp)
	if raw == "" {
		return ErrNoJSON
	}
	return json.Unmarshal([]byte(raw), v)
}
