// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package jsonrepair

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// stringBody matches the body of a JSON string literal, allowing escapes.
const stringBody = `((?:[^"\\]|\\.)*)`

var stringItem = regexp.MustCompile(`(?s)"` + stringBody + `"`)

// ExtractString finds "key": "value" anywhere in text and returns the
// unescaped value. It tolerates raw newlines inside the value.
func ExtractString(text, key string) (string, bool) {
	re := regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(key) + `"\s*:\s*"` + stringBody + `"`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return unescape(m[1]), true
}

// ExtractStringList finds "key": [ "a", "b", ... ] and returns its string
// items. A list with no string items is reported as not found.
func ExtractStringList(text, key string) ([]string, bool) {
	re := regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(key) + `"\s*:\s*\[(.*?)\]`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	var items []string
	for _, im := range stringItem.FindAllStringSubmatch(m[1], -1) {
		items = append(items, unescape(im[1]))
	}
	return items, len(items) > 0
}

// ExtractNumber finds key: 7.5 with the key optionally quoted.
func ExtractNumber(text, key string) (float64, bool) {
	re := regexp.MustCompile(`["']?` + regexp.QuoteMeta(key) + `["']?\s*:\s*(-?\d+(?:\.\d+)?)`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// unescape decodes JSON escapes in a string body. Bodies that are not valid
// JSON even after control characters are escaped fall back to replacing
// the common escapes by hand.
func unescape(body string) string {
	var s string
	if err := json.Unmarshal([]byte(EscapeControlChars(`"`+body+`"`)), &s); err == nil {
		return s
	}
	r := strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\r`, "\r", `\t`, "\t", `\\`, `\`)
	return r.Replace(body)
}
