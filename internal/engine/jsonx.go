package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONObject indicates the model response carried no JSON object at all.
var ErrNoJSONObject = errors.New("engine: no JSON object in response")

// ExtractJSONObject returns the first balanced-brace JSON object embedded in
// free text. Language models routinely wrap their JSON in prose or markdown
// code fences, so scanning for the object is a deliberate parsing strategy,
// kept in one place.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSONObject
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := text[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return nil, fmt.Errorf("engine: invalid JSON object: %.80s", candidate)
				}
				return json.RawMessage(candidate), nil
			}
		}
	}
	return nil, ErrNoJSONObject
}
