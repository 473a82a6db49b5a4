// Package extractor turns the named captures of a template into typed parameters.
package extractor

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/e-intern-tkondo-wq/auto-log-management/internal/models"
)

// leadingNumber matches an optional sign, digits and an optional fraction at
// the start of a captured value ("16M" -> 16, "85.5%" -> 85.5).
var leadingNumber = regexp.MustCompile(`^[+-]?[0-9]+\.?[0-9]*`)

// Extractor extracts parameters and keeps compiled templates for reuse.
// It is safe for concurrent use.
type Extractor struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{cache: make(map[string]*regexp.Regexp)}
}

// Extract returns one Parameter per named capture that participated in the
// first (leftmost) match of pattern in message. An invalid pattern or no
// match yields an empty result.
func (e *Extractor) Extract(pattern, message string) []models.Parameter {
	re := e.compile(pattern)
	if re == nil || re.NumSubexp() == 0 {
		return nil
	}

	idx := re.FindStringSubmatchIndex(message)
	if idx == nil {
		return nil
	}

	var params []models.Parameter
	for i, name := range re.SubexpNames() {
		if name == "" || idx[2*i] < 0 {
			continue
		}
		text := message[idx[2*i]:idx[2*i+1]]
		params = append(params, models.Parameter{
			Name: name,
			Num:  ParseLeadingNumber(text),
			Text: text,
		})
	}
	return params
}

func (e *Extractor) compile(pattern string) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.cache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	// Invalid patterns are cached as nil so they are not recompiled per line.
	e.cache[pattern] = re
	return re
}

// ParseLeadingNumber parses the numeric prefix of s, or returns nil.
func ParseLeadingNumber(s string) *float64 {
	m := leadingNumber.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &f
}

// AsMap indexes parameters by name.
func AsMap(params []models.Parameter) map[string]models.Parameter {
	m := make(map[string]models.Parameter, len(params))
	for _, p := range params {
		m[p.Name] = p
	}
	return m
}
