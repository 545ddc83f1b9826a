// Package timeparse turns loosely formatted time strings, both user-typed
// corrections and extraction-backend output, into unix timestamps.
package timeparse

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var ErrUnparsable = errors.New("unparsable time")

const (
	userTimeLayout = "2006-01-02 15:04"
	bareTimeLayout = "15:04"
)

// layout is one accepted extracted-time format. hasDate marks layouts that
// carry year/month/day; matches against the others get the current date
// substituted explicitly rather than being inferred from parser defaults.
type layout struct {
	format  string
	hasDate bool
}

var extractedLayouts = []layout{
	{format: "3:04 PM"},
	{format: "3:04PM"},
	{format: "15:04"},
	{format: "02 Jan 2006 3:04 PM", hasDate: true},
	{format: "02 January 2006 3:04 PM", hasDate: true},
	{format: "January 2, 2006 at 3:04 PM", hasDate: true},
	{format: "Jan 2, 2006 at 3:04 PM", hasDate: true},
}

var (
	bareTimeRe = regexp.MustCompile(`^\d{1,2}:\d{2}(?::\d{2})?$`)
	meridiemRe = regexp.MustCompile(`(?i)([AP]M)`)
)

// ParseUserTime parses a user-typed time: "YYYY-MM-DD HH:MM", or "HH:MM"
// implicitly dated by now. Anything else is ErrUnparsable.
func ParseUserTime(text string, now time.Time) (int64, error) {
	text = strings.TrimSpace(text)

	if t, err := time.ParseInLocation(userTimeLayout, text, now.Location()); err == nil {
		return t.Unix(), nil
	}

	t, err := time.ParseInLocation(bareTimeLayout, text, now.Location())
	if err != nil {
		return 0, ErrUnparsable
	}
	return withDate(t, now).Unix(), nil
}

// NormalizeExtracted parses free-form model output against the accepted
// layouts. A bare time with no AM/PM designator is resolved with hint
// ("AM"/"PM") when one is supplied, before falling back to a 24-hour read.
// Layouts without a date component take now's date.
func NormalizeExtracted(text, hint string, now time.Time) (int64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	if hint != "" && bareTimeRe.MatchString(text) {
		if t, err := time.ParseInLocation("3:04 PM", text+" "+hint, now.Location()); err == nil {
			return withDate(t, now).Unix(), true
		}
	}

	for _, l := range extractedLayouts {
		t, err := time.ParseInLocation(l.format, text, now.Location())
		if err != nil {
			continue
		}
		if !l.hasDate {
			t = withDate(t, now)
		}
		return t.Unix(), true
	}

	return 0, false
}

// DominantMeridiem counts explicit AM/PM markers among candidates and
// returns the majority label, or "" on a tie or no markers.
func DominantMeridiem(candidates []string) string {
	var am, pm int
	for _, c := range candidates {
		switch strings.ToUpper(meridiemRe.FindString(c)) {
		case "AM":
			am++
		case "PM":
			pm++
		}
	}
	switch {
	case am > pm:
		return "AM"
	case pm > am:
		return "PM"
	}
	return ""
}

// DedupeCandidates drops duplicate time candidates before the meridiem vote.
// The key is lowercased text with AM/PM markers stripped; first occurrence
// wins, so a marked candidate shadows its bare twin.
func DedupeCandidates(candidates []string) []string {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := strings.TrimSpace(meridiemRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(c)), ""))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

func withDate(t, now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, now.Location())
}
