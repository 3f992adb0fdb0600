// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jsonrepair decodes JSON objects embedded in free-form model
// output. Decoding runs in stages: a strict parse, then a tolerant parse
// after a fixed sequence of repair rules, and finally per-field regex
// extraction for callers that want to salvage individual values. Each
// rule is exported so it can be tested on its own.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Stage reports which decoding stage succeeded.
type Stage int

const (
	// StageFailed means neither strict nor repaired decoding succeeded.
	StageFailed Stage = iota
	// StageStrict means the object parsed without repair.
	StageStrict
	// StageRepaired means the object parsed after the repair rules ran.
	StageRepaired
)

func (s Stage) String() string {
	switch s {
	case StageStrict:
		return "strict"
	case StageRepaired:
		return "repaired"
	default:
		return "failed"
	}
}

// ErrNoObject is returned when the text contains no {...} span.
var ErrNoObject = errors.New("no JSON object found")

// Decode parses the JSON object in text into v. It first tries the text
// as-is and then the outermost {...} span with fences stripped. If both
// fail it applies Repair and tries once more.
func Decode(text string, v any) (Stage, error) {
	trimmed := strings.TrimSpace(text)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return StageStrict, nil
	}

	obj, ok := ExtractObject(StripFences(trimmed))
	if !ok {
		return StageFailed, ErrNoObject
	}
	if err := json.Unmarshal([]byte(obj), v); err == nil {
		return StageStrict, nil
	}

	if err := json.Unmarshal([]byte(Repair(obj)), v); err != nil {
		return StageFailed, fmt.Errorf("decoding repaired object: %w", err)
	}
	return StageRepaired, nil
}

// Repair applies every repair rule in order.
func Repair(s string) string {
	s = EscapeControlChars(s)
	s = RemoveTrailingCommas(s)
	s = InsertMissingCommas(s)
	return s
}

// StripFences removes a leading ``` or ```json marker and a trailing ```.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && isFenceLabel(s[:nl]) {
			s = s[nl+1:]
		} else {
			s = strings.TrimPrefix(s, "json")
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isFenceLabel(s string) bool {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// ExtractObject returns the span from the first '{' to the last '}'.
func ExtractObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// scanner walks JSON text tracking whether the cursor is inside a string.
type scanner struct {
	inString bool
	escaped  bool
}

// step advances over c and reports whether c was part of a string,
// including its delimiting quotes.
func (sc *scanner) step(c byte) bool {
	if sc.inString {
		switch {
		case sc.escaped:
			sc.escaped = false
		case c == '\\':
			sc.escaped = true
		case c == '"':
			sc.inString = false
		}
		return true
	}
	if c == '"' {
		sc.inString = true
		return true
	}
	return false
}

// EscapeControlChars escapes raw newlines, carriage returns, tabs, and
// other control characters that appear inside string values.
func EscapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var sc scanner
	for i := 0; i < len(s); i++ {
		c := s[i]
		wasIn := sc.inString && !sc.escaped
		if wasIn && c < 0x20 {
			switch c {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
			continue
		}
		sc.step(c)
		b.WriteByte(c)
	}
	return b.String()
}

// RemoveTrailingCommas drops commas that directly precede '}' or ']'.
func RemoveTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var sc scanner
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !sc.step(c) && c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
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

// InsertMissingCommas adds a comma between a value that has ended (a
// closed string, '}', ']', a number, or a true/false/null literal) and a
// following value or key that opens with '"', '{', or '['.
func InsertMissingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	var sc scanner
	var last byte // last significant byte outside strings, or '"' for a closed string
	for i := 0; i < len(s); i++ {
		c := s[i]
		opening := !sc.inString && (c == '"' || c == '{' || c == '[')
		if opening && endsValue(last) {
			b.WriteByte(',')
		}

		in := sc.step(c)
		b.WriteByte(c)

		switch {
		case in && !sc.inString:
			last = '"'
		case in:
			last = 0
		case !isSpace(c):
			last = c
		}
	}
	return b.String()
}

func endsValue(c byte) bool {
	return c == '"' || c == '}' || c == ']' || (c >= '0' && c <= '9') || c == 'e' || c == 'l'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
