// Package shotid holds the identity types that tie timeline items back to
// Concepto shot records: the take code embedded in clip names and subtitle
// text, and the composite clip identity used by start-time overrides.
package shotid

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TakeCode is the cross-system join key, rendered as "SC<seg><shot>" with
// two digits each, e.g. "SC01T02".
type TakeCode struct {
	Segment int
	Shot    int
}

var (
	takeCodeRe = regexp.MustCompile(`(?i)^SC(\d{2})T(\d{2})$`)
	// Matches a take code embedded in free text, with optional brackets and
	// surrounding whitespace: "[SC02T05] character enters frame".
	embeddedTakeRe = regexp.MustCompile(`(?i)\[?\s*(SC\d{2}T\d{2})\s*\]?`)
)

func (t TakeCode) String() string {
	return fmt.Sprintf("SC%02dT%02d", t.Segment, t.Shot)
}

// ParseTakeCode parses a stored take code. The service sometimes persists
// image takes with an "_image" suffix; that suffix is stripped on use.
func ParseTakeCode(s string) (TakeCode, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimSuffix(trimmed, "_image")
	m := takeCodeRe.FindStringSubmatch(trimmed)
	if m == nil {
		return TakeCode{}, fmt.Errorf("invalid take code %q", s)
	}
	seg, _ := strconv.Atoi(m[1])
	shot, _ := strconv.Atoi(m[2])
	return TakeCode{Segment: seg, Shot: shot}, nil
}

// ExtractTake finds a take code anywhere in text (clip name, subtitle line)
// and returns it together with the remaining free text, with the bracketed
// code and any separator that follows it stripped. ok is false when the text
// carries no recognizable take code.
func ExtractTake(text string) (code TakeCode, remainder string, ok bool) {
	loc := embeddedTakeRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return TakeCode{}, text, false
	}
	parsed, err := ParseTakeCode(text[loc[2]:loc[3]])
	if err != nil {
		return TakeCode{}, text, false
	}
	rest := text[:loc[0]] + text[loc[1]:]
	rest = strings.TrimLeft(rest, " \t:-–")
	return parsed, strings.TrimSpace(rest), true
}
