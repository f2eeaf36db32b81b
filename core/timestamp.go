package core

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts are the ISO-8601 forms accepted for sample timestamps,
// extended forms first, then basic. Layouts without a zone designator are
// read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04",
	"2006-01-02",
	"20060102T150405Z07:00",
	"20060102T150405Z0700",
	"20060102T150405Z07",
	"20060102T150405",
	"20060102T1504Z0700",
	"20060102T1504",
	"20060102",
}

// ParseTimestamp parses an ISO-8601 timestamp into a UTC instant. A leap
// second (hh:mm:60) resolves to the first instant of the following minute.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty timestamp", ErrParse)
	}
	if t, ok := parseLayouts(s); ok {
		return t, nil
	}
	if folded, ok := foldLeapSecond(s); ok {
		if t, ok := parseLayouts(folded); ok {
			return t.Add(time.Second), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q is not ISO-8601", ErrParse, s)
}

func parseLayouts(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// foldLeapSecond rewrites an extended-format seconds field of 60 to 59.
func foldLeapSecond(s string) (string, bool) {
	t := strings.IndexByte(s, 'T')
	if t < 0 {
		return "", false
	}
	i := strings.LastIndex(s[t:], ":60")
	if i < 0 || strings.Count(s[t:t+i], ":") != 1 {
		return "", false
	}
	i += t
	if end := i + 3; end < len(s) && !strings.ContainsRune(".,Z+-", rune(s[end])) {
		return "", false
	}
	return s[:i] + ":59" + s[i+3:], true
}
