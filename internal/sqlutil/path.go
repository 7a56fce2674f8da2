package sqlutil

import (
	"fmt"
	"strings"
)

// PathEscape prefixes the escaped bytes of a path segment. A separator can then
// appear inside a key without splitting it.
const PathEscape = "%"

// EncodedPathSeparator returns the escaped form of separator, one "%XX" per byte.
func EncodedPathSeparator(separator string) string {
	var b strings.Builder
	for i := 0; i < len(separator); i++ {
		fmt.Fprintf(&b, "%s%02X", PathEscape, separator[i])
	}
	return b.String()
}

func encodedPathEscape() string {
	return EncodedPathSeparator(PathEscape)
}

// EscapePathSegment renders a SQL expression that escapes the text expression
// expr for use as one path segment. REPLACE behaves the same on every supported
// backend.
func EscapePathSegment(expr, separator string) string {
	escaped := fmt.Sprintf("REPLACE(%s, %s, %s)", expr, QuoteString(PathEscape), QuoteString(encodedPathEscape()))
	return fmt.Sprintf("REPLACE(%s, %s, %s)", escaped, QuoteString(separator), QuoteString(EncodedPathSeparator(separator)))
}

// EscapePathKey is the Go counterpart of EscapePathSegment.
func EscapePathKey(key, separator string) string {
	key = strings.ReplaceAll(key, PathEscape, encodedPathEscape())
	return strings.ReplaceAll(key, separator, EncodedPathSeparator(separator))
}

// UnescapePathKey reverses EscapePathKey.
func UnescapePathKey(segment, separator string) string {
	if !strings.Contains(segment, PathEscape) {
		return segment
	}
	return strings.NewReplacer(
		EncodedPathSeparator(separator), separator,
		encodedPathEscape(), PathEscape,
	).Replace(segment)
}
