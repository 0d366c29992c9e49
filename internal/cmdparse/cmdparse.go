// Package cmdparse provides lightweight shell-style word splitting and
// quoting. respec uses it to read extra tokens from RESPEC_OPTS and to print
// engine commands in a form that can be pasted back into a shell.
package cmdparse

import (
	"errors"
	"strings"
)

// ErrUnterminatedQuote is returned by Split when a quote is never closed.
var ErrUnterminatedQuote = errors.New("unterminated quote")

// ErrTrailingEscape is returned by Split when the input ends in a backslash.
var ErrTrailingEscape = errors.New("trailing backslash")

// Split breaks s into words the way a POSIX shell would for a simple
// command: whitespace separates words, single quotes are literal, double
// quotes allow backslash escapes of " \ $ and `, and a bare backslash
// escapes the next character. Quotes are removed from the result.
// Operators and expansions are not interpreted.
func Split(s string) ([]string, error) {
	var words []string
	var current strings.Builder
	inWord := false
	inSingle := false
	inDouble := false
	escaped := false

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if escaped {
			if inDouble && !strings.ContainsRune("\"\\$`", rune(ch)) {
				current.WriteByte('\\')
			}
			current.WriteByte(ch)
			escaped = false
			continue
		}
		switch {
		case inSingle:
			if ch == '\'' {
				inSingle = false
			} else {
				current.WriteByte(ch)
			}
		case ch == '\\':
			escaped = true
			inWord = true
		case inDouble:
			if ch == '"' {
				inDouble = false
			} else {
				current.WriteByte(ch)
			}
		case ch == '\'':
			inSingle = true
			inWord = true
		case ch == '"':
			inDouble = true
			inWord = true
		case ch == ' ' || ch == '\t' || ch == '\n':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteByte(ch)
			inWord = true
		}
	}
	if inSingle || inDouble {
		return nil, ErrUnterminatedQuote
	}
	if escaped {
		return nil, ErrTrailingEscape
	}
	if inWord {
		words = append(words, current.String())
	}
	return words, nil
}

// Quote returns word quoted for a POSIX shell. Words made only of safe
// characters are returned unchanged.
func Quote(word string) string {
	if word == "" {
		return "''"
	}
	if isSafe(word) {
		return word
	}
	return "'" + strings.ReplaceAll(word, "'", `'\''`) + "'"
}

// Join quotes each word and joins them with single spaces.
func Join(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = Quote(w)
	}
	return strings.Join(quoted, " ")
}

func isSafe(word string) bool {
	for i := 0; i < len(word); i++ {
		ch := word[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case strings.IndexByte("-_./:=@%+,", ch) >= 0:
		default:
			return false
		}
	}
	return true
}
