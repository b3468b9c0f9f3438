// Package smartcode parses, validates and generates the semantic identifiers
// attached to every record: dot-separated uppercase tokens of the form
// HERA.<DOMAIN>...<SUBTYPE>.V<n>, at least six segments with a trailing
// version segment.
package smartcode

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/heraerp/hera-core/internal/errcode"
)

var codePattern = regexp.MustCompile(`^HERA(\.[A-Z0-9_]+){4,}\.V\d+$`)

// Parts is the decomposed form of a valid smart code.
type Parts struct {
	Vendor   string
	Domain   string
	Segments []string // everything between vendor and version
	Version  int
}

// String reassembles the code.
func (p Parts) String() string {
	return p.Vendor + "." + strings.Join(p.Segments, ".") + ".V" + strconv.Itoa(p.Version)
}

// Validate checks a smart code against the pattern and decomposes it.
// An empty or malformed code fails with an InvalidSmartCode error.
func Validate(code string) (Parts, error) {
	if code == "" {
		return Parts{}, errcode.New(errcode.InvalidSmartCode, "smart code is required")
	}
	if !codePattern.MatchString(code) {
		return Parts{}, errcode.Newf(errcode.InvalidSmartCode,
			"smart code %q does not match HERA.<DOMAIN>...<SUBTYPE>.V<n> (min 6 segments)", code)
	}
	segments := strings.Split(code, ".")
	version, err := strconv.Atoi(strings.TrimPrefix(segments[len(segments)-1], "V"))
	if err != nil {
		return Parts{}, errcode.Newf(errcode.InvalidSmartCode, "smart code %q has a bad version segment", code)
	}
	return Parts{
		Vendor:   segments[0],
		Domain:   segments[1],
		Segments: segments[1 : len(segments)-1],
		Version:  version,
	}, nil
}

// Valid reports whether a code matches the pattern.
func Valid(code string) bool {
	return codePattern.MatchString(code)
}
