package expression

import (
	"regexp"
	"strings"
)

var (
	hyphenStartOrEndRe = regexp.MustCompile(`(^|[^ ])-([^ ]|$)`)
	hyphenMiddleRe     = regexp.MustCompile(`([^ ])-([^ ])`)
)

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// FormatKey flattens a dotted, possibly hyphenated path into an identifier:
// "node-1.text" becomes "node_1_text".
func FormatKey(key string) string {
	key = strings.ReplaceAll(key, ".", "_")
	key = hyphenStartOrEndRe.ReplaceAllString(key, "${1}_${2}")
	key = hyphenMiddleRe.ReplaceAllString(key, "${1}_${2}")
	return key
}

// FormatExpression rewrites variable paths in an expression to their flat
// FormatKey form, leaving string literals, numeric literals, optional
// chaining and lambda accessors alone.
func FormatExpression(e string) string {
	result := []rune(e)
	openParentheses := 0
	inDoubleQuote := false
	inBacktick := false
	escapeNext := false

	for i, r := range result {
		if escapeNext {
			escapeNext = false
			continue
		}

		if inDoubleQuote && r == '\\' {
			escapeNext = true
			continue
		}

		if r == '"' && !inBacktick {
			inDoubleQuote = !inDoubleQuote
			continue
		}
		if r == '`' && !inDoubleQuote {
			inBacktick = !inBacktick
			continue
		}

		// Don't modify anything inside string literals
		if inDoubleQuote || inBacktick {
			continue
		}

		switch r {
		case '(':
			openParentheses++
		case ')':
			openParentheses--
		case '.':
			// ?. optional chaining and #. lambda accessor stay as they are
			if i > 0 && (result[i-1] == '?' || result[i-1] == '#') {
				continue
			}
			// 3.14
			if i > 0 && i < len(result)-1 && isDigit(result[i-1]) && isDigit(result[i+1]) {
				continue
			}
			result[i] = '_'
		case '-':
			if openParentheses > 0 || i == 0 || i == len(result)-1 {
				continue
			}
			// Only hyphens inside an identifier; "a - b" stays a subtraction.
			if isIdentRune(result[i-1]) && isIdentRune(result[i+1]) {
				result[i] = '_'
			}
		}
	}
	return string(result)
}

func isIdentRune(r rune) bool {
	return r == '_' || isDigit(r) || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
