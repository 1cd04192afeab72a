package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkBlockPattern matches <think>...</think> reasoning blocks some models emit.
var thinkBlockPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes reasoning blocks and surrounding whitespace.
func StripThinking(response string) string {
	return strings.TrimSpace(thinkBlockPattern.ReplaceAllString(response, ""))
}

// ExtractJSON returns the first well-formed JSON object or array in an LLM
// response, ignoring reasoning blocks, markdown fences and surrounding prose.
func ExtractJSON(response string) (string, error) {
	cleaned := StripThinking(response)

	for i := 0; i < len(cleaned); i++ {
		var closeChar byte
		switch cleaned[i] {
		case '{':
			closeChar = '}'
		case '[':
			closeChar = ']'
		default:
			continue
		}
		if candidate, ok := balancedFrom(cleaned[i:], cleaned[i], closeChar); ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// balancedFrom returns the prefix of s that closes the bracket s starts with,
// skipping brackets inside JSON strings.
func balancedFrom(s string, openChar, closeChar byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == openChar:
			depth++
		case c == closeChar:
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
