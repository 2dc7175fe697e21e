package parser

import (
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/archiveworks/mailarch/internal/archerrors"
)

// Date headers in the wild carry invented timezones, locale month
// names and malformed offsets. Each fix below was observed on real
// list traffic; they run in order before parsing is attempted.
type dateFix struct {
	suffix     bool
	old, fixed string
}

var dateFixes = []dateFix{
	{true, "-7700 (EST)", "EST"},
	{true, "+6700 (EST)", "EST"},
	{true, "+-4-30", "+0430"},
	{true, "+1.00", "+0100"},
	{true, "+-100", "+0100"},
	{true, "+500", "+0500"},
	{true, "-500", "-0500"},
	{true, "-700", "-0700"},
	{true, "-800", "-0800"},
	{true, "+05-30", "+0530"},
	{true, "+0-900", "-0900"},
	{true, "Mexico/General", "CDT"},
	{true, "Pacific Daylight Time", "PDT"},
	{true, " ZE2", " +0200"},
	{false, "-Juin-", "-Jun-"},
	{false, "-Juil-", "-Jul-"},
	{false, " 0 (GMT)", " +0000"},
}

var (
	// "-  -0400" and similar doubled signs.
	reDoubleSign = regexp.MustCompile(` -(-\d+)$`)
	// Bare 4-digit offset with the sign missing.
	reBareOffset = regexp.MustCompile(` (\d{4})$`)
	// Trailing parenthesized timezone comments the parsers choke on.
	reTzComment = regexp.MustCompile(` \(([^\s]+\s[^\s]+(\s+[^\s]+)*|)\)$`)
	// Numeric offset followed by a comment; the offset wins.
	reOffsetComment = regexp.MustCompile(` ([+-]\d{4}) \([^)]+\)$`)
	// Any trailing numeric offset, checked for sanity before parsing.
	reNumericOffset = regexp.MustCompile(` [+-](\d{2})(\d{2})$`)
)

const maxSaneOffset = 16*3600 - 1

// DecodeDate parses a Date header leniently. Offsets no real
// timezone could produce are treated as garbage: the wall clock
// is kept and reinterpreted as UTC. Unparsable dates are ignorable.
func DecodeDate(d string) (time.Time, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return time.Time{}, archerrors.Ignorablef("date header is empty")
	}

	for _, f := range dateFixes {
		if f.suffix {
			if strings.HasSuffix(d, f.old) {
				d = strings.Replace(d, f.old, f.fixed, 1)
			}
		} else if strings.Contains(d, f.old) {
			d = strings.Replace(d, f.old, f.fixed, 1)
		}
	}

	d = reDoubleSign.ReplaceAllString(d, ` $1`)
	d = reBareOffset.ReplaceAllString(d, ` +$1`)
	d = reTzComment.ReplaceAllString(d, ``)
	d = reOffsetComment.ReplaceAllString(d, ` $1`)

	// Offsets no timezone could produce make the parsers refuse the
	// whole string. Drop the offset up front and keep the wall clock.
	if m := reNumericOffset.FindStringSubmatch(d); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes, _ := strconv.Atoi(m[2])
		if hours*3600+minutes*60 > maxSaneOffset {
			t, err := parseLenient(strings.TrimSpace(strings.TrimSuffix(d, m[0])))
			if err != nil {
				return time.Time{}, archerrors.Ignorablef("failed to parse date '%s': %s", d, err)
			}
			return asWallClockUTC(t), nil
		}
	}

	t, err := parseLenient(d)
	if err != nil {
		return time.Time{}, archerrors.Ignorablef("failed to parse date '%s': %s", d, err)
	}

	if _, offset := t.Zone(); offset > maxSaneOffset || offset < -maxSaneOffset {
		t = asWallClockUTC(t)
	}
	return t, nil
}

func asWallClockUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func parseLenient(d string) (time.Time, error) {
	if t, err := mail.ParseDate(d); err == nil {
		return t, nil
	}
	return dateparse.ParseAny(d)
}
