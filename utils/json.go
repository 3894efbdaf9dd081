// utils/json.go
package utils

import (
	"errors"
)

var ErrNoJSONObject = errors.New("no JSON object found in text")

// ExtractJSONObject returns the first balanced {...} span in text. Model
// responses often wrap the JSON in prose or markdown fences; everything
// outside the span is noise. String literals are tracked so braces inside
// quoted values don't unbalance the scan.
func ExtractJSONObject(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
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
			if start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}

	return "", ErrNoJSONObject
}
