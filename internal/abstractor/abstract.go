// Package abstractor reduces a log message to a regular expression template
// that captures its structure: hex literals, decimal runs and whitespace runs
// become generic tokens, everything else is matched literally.
package abstractor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Tokens emitted into generated templates.
const (
	HexToken   = `0x[0-9A-Fa-f]+`
	DigitToken = `\d+`
	SpaceToken = `\s+`
)

// hexLiteral must be located before digit runs are considered, otherwise
// the digits of a hex literal would be read as a number after a literal "0x".
var hexLiteral = regexp.MustCompile(`(?i)0x[0-9a-f]+`)

// Abstract returns the template for message. It is a pure function.
func Abstract(message string) string {
	var b strings.Builder
	b.Grow(len(message) * 2)

	last := 0
	for _, loc := range hexLiteral.FindAllStringIndex(message, -1) {
		writeSpan(&b, message[last:loc[0]])
		b.WriteString(HexToken)
		last = loc[1]
	}
	writeSpan(&b, message[last:])

	return b.String()
}

type runClass int

const (
	classLiteral runClass = iota
	classDigit
	classSpace
)

func classify(r rune) runClass {
	switch {
	case r >= '0' && r <= '9':
		return classDigit
	case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f':
		return classSpace
	default:
		return classLiteral
	}
}

// writeSpan splits span into maximal runs of one class and writes each run's
// token. Only literal runs go through QuoteMeta, so inserted tokens are never
// escaped and literal text can never be mistaken for a token.
func writeSpan(b *strings.Builder, span string) {
	for len(span) > 0 {
		r, size := utf8.DecodeRuneInString(span)
		class := classify(r)
		end := size
		for end < len(span) {
			next, n := utf8.DecodeRuneInString(span[end:])
			if classify(next) != class {
				break
			}
			end += n
		}

		switch class {
		case classDigit:
			b.WriteString(DigitToken)
		case classSpace:
			b.WriteString(SpaceToken)
		default:
			b.WriteString(regexp.QuoteMeta(span[:end]))
		}
		span = span[end:]
	}
}

// Compile compiles a generated or authored template.
func Compile(template string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(template)
	if err != nil {
		return nil, fmt.Errorf("compile template: %w", err)
	}
	return re, nil
}

// Validate reports whether template matches the whole of original.
// It is a diagnostic only.
func Validate(template, original string) bool {
	re, err := regexp.Compile(`^(?:` + template + `)$`)
	if err != nil {
		return false
	}
	return re.MatchString(original)
}
