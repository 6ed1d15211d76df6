package agent

import (
	"encoding/json"
	"strings"
)

// CallSignature reduces a tool call to the canonical form compared by the
// repeated-call breaker. Two calls that differ only in argument key order or
// in incidental whitespace inside string values produce the same signature.
func CallSignature(tool string, args map[string]interface{}) string {
	// json.Marshal sorts map keys, which gives the lexicographic key order
	// for free; values are normalised first.
	b, _ := json.Marshal(canonicalValue(args))
	return tool + ":" + string(b)
}

func canonicalValue(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return normalizeSpace(t)
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[k] = canonicalValue(val)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = canonicalValue(val)
		}
		return out
	default:
		return v
	}
}

// normalizeSpace trims trailing whitespace and collapses every run of ASCII
// whitespace to a single space, so "ls   -la " and "ls -la" compare equal.
func normalizeSpace(s string) string {
	s = strings.TrimRight(s, " \t\n\r")
	var sb strings.Builder
	sb.Grow(len(s))
	inRun := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			if !inRun {
				sb.WriteByte(' ')
			}
			inRun = true
		default:
			sb.WriteRune(r)
			inRun = false
		}
	}
	return sb.String()
}
