package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reValidTZ    = regexp.MustCompile(`^[A-Za-z0-9_\-+/]+$`)
	reMultiSlash = regexp.MustCompile(`/+`)
	reTZSpaces   = regexp.MustCompile(`\s+`)
)

// SanitizeTimeZone tidies an IANA zone name typed by hand: "america / new york"
// becomes "america/new_york". Case is kept because zone lookup is case-sensitive
// on most systems. Names with characters no zone uses are returned trimmed.
func SanitizeTimeZone(tz string) string {
	p := Pipeline{
		strings.TrimSpace,
		func(s string) string { return strings.ReplaceAll(s, " / ", "/") },
		func(s string) string { return reTZSpaces.ReplaceAllString(s, "_") },
		func(s string) string { return reMultiSlash.ReplaceAllString(s, "/") },
		func(s string) string { return strings.Trim(s, "/") },
	}
	out := p.Apply(tz)
	if out != "" && !reValidTZ.MatchString(out) {
		return strings.TrimSpace(tz)
	}
	return out
}

// SanitizeClock pads a single-digit hour, so "9:30" becomes "09:30".
func SanitizeClock(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 4 && s[1] == ':' {
		return "0" + s
	}
	return s
}
