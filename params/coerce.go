package params

import (
	"strconv"
	"strings"
)

// Coerce converts a raw query value into the value it most likely stands for.
//
// Strings "true" and "false" become booleans, strings with a leading integer
// become that integer ("92abc" is 92) and every other string is kept. Lists
// and maps are coerced element by element and keep their shape. Values that
// are not strings or containers are returned unchanged.
func Coerce(v any) any {
	switch t := v.(type) {
	case string:
		return coerceLeaf(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Coerce(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = coerceLeaf(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Coerce(e)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = coerceLeaf(e)
		}
		return out
	default:
		return v
	}
}

func coerceLeaf(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, ok := ParseIntPrefix(s); ok {
		return n
	}
	return s
}

// ParseIntPrefix parses the integer at the start of s. Leading whitespace and
// a sign are accepted, a 0x prefix selects base 16, and parsing stops at the
// first character that is not a digit, so "10x20" yields 10. It reports false
// when no digit is found or the value does not fit in an int.
func ParseIntPrefix(s string) (int, bool) {
	s = strings.TrimLeftFunc(s, isSpace)

	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}

	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	end := 0
	for end < len(s) && isDigit(s[end], base) {
		end++
	}
	if end == 0 {
		return 0, false
	}

	digits := s[:end]
	if neg {
		digits = "-" + digits
	}
	n, err := strconv.ParseInt(digits, base, strconv.IntSize)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16 && c >= 'a' && c <= 'f':
		return true
	case base == 16 && c >= 'A' && c <= 'F':
		return true
	}
	return false
}

// isSpace matches the whitespace and line terminators skipped before a number.
func isSpace(r rune) bool {
	switch r {
	case '\t', '\n', '\v', '\f', '\r', ' ', '\u00a0', '\u1680', '\u2028', '\u2029',
		'\u202f', '\u205f', '\u3000', '\ufeff':
		return true
	}
	return r >= '\u2000' && r <= '\u200a'
}
