// Package decision turns free-form character responses into validated
// TALK or ACT decisions, and synthesizes a decision when no usable response
// exists.
package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoJSON means the response contained no JSON object.
	ErrNoJSON = errors.New("no JSON object in response")
	// ErrMalformed means a JSON object was found but could not be decoded.
	ErrMalformed = errors.New("malformed JSON in response")
)

// Extract pulls the outermost JSON object out of a model response. Markdown
// code fences, surrounding prose and trailing commas are tolerated.
func Extract(raw string) (map[string]any, error) {
	content := stripFences(strings.TrimSpace(raw))

	obj, ok := outermostObject(content)
	if !ok {
		return nil, ErrNoJSON
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(dropTrailingCommas(obj)), &data); err != nil {
		return nil, fmt.Errorf("%w: %v (content: %s)", ErrMalformed, err, truncate(obj, 200))
	}
	return data, nil
}

func stripFences(content string) string {
	start := strings.Index(content, "```")
	if start < 0 {
		return content
	}
	rest := content[start+3:]
	// Drop a language tag such as ```json.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[\"") {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// outermostObject returns the first balanced {...} span, ignoring braces
// inside string literals.
func outermostObject(content string) (string, bool) {
	start := strings.IndexByte(content, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(content); i++ {
		c := content[i]
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
				return content[start : i+1], true
			}
		}
	}
	return "", false
}

func dropTrailingCommas(obj string) string {
	var b strings.Builder
	b.Grow(len(obj))
	inString, escaped := false, false
	for i := 0; i < len(obj); i++ {
		c := obj[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(obj) && strings.IndexByte(" \t\r\n", obj[j]) >= 0 {
				j++
			}
			if j < len(obj) && (obj[j] == '}' || obj[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
