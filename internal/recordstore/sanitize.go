package recordstore

import (
	"strings"
	"unicode/utf8"
)

// sanitizeRecord walks a decoded JSON value (map, slice, string, or scalar)
// and re-encodes every string through UTF-8 with U+FFFD replacement for
// invalid sequences, recursively through nested maps and lists. Spec
// invariant 5: "All JSON strings are valid UTF-8; lone surrogates are
// replaced with U+FFFD on write."
func sanitizeRecord(v any) any {
	switch t := v.(type) {
	case string:
		return sanitizeUTF8(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[sanitizeUTF8(k)] = sanitizeRecord(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitizeRecord(val)
		}
		return out
	case Record:
		out := make(Record, len(t))
		for k, val := range t {
			out[sanitizeUTF8(k)] = sanitizeRecord(val)
		}
		return out
	default:
		return v
	}
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				b.WriteRune(utf8.RuneError)
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

