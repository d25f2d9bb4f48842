// Package sanitize prepares raw comment text for transmission to an embedding service.
package sanitize

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

const (
	// Placeholder replaces inputs that are empty after cleaning; some services reject "".
	Placeholder = "(empty)"
	// MaxRunes bounds the size of a single input.
	MaxRunes = 6000
)

// Text turns any value into a non-empty, bounded string. It never fails.
func Text(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
	case string:
		s = x
	case *string:
		if x != nil {
			s = *x
		}
	// fmt recovers panics raised by String methods.
	case fmt.Stringer:
		if !isNilPointer(x) {
			s = fmt.Sprint(x)
		}
	default:
		s = fmt.Sprint(x)
	}
	s = strings.ReplaceAll(s, "\x00", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return Placeholder
	}
	return truncate(s, MaxRunes)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// All sanitizes every text, keeping order.
func All(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Text(t)
	}
	return out
}

// Preview returns the first n runes of s with newlines flattened, for diagnostics.
func Preview(s string, n int) string {
	s = truncate(s, n)
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
