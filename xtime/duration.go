// Package xtime formats and parses durations in the compact units used by the
// configuration file and the CLI tables.
package xtime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day
)

var durationRx = regexp.MustCompile(`^(\d*\.\d+|\d+)(w|d|h|ms|m|s|us|µs|ns)`)

var unitMap = map[string]time.Duration{
	"w":  week,
	"d":  day,
	"h":  time.Hour,
	"m":  time.Minute,
	"s":  time.Second,
	"ms": time.Millisecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ns": time.Nanosecond,
}

// ParseDuration parses a duration string such as "90s", "1h30m" or "2d".
// It accepts the units of time.ParseDuration plus "d" (days) and "w" (weeks).
// A bare number is interpreted as seconds.
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("invalid duration '%s'", orig)
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}

	var total time.Duration
	for s != "" {
		m := durationRx.FindStringSubmatch(s)
		if m == nil {
			return 0, fmt.Errorf("invalid duration '%s'", orig)
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid duration '%s': %w", orig, err)
		}
		total += time.Duration(n * float64(unitMap[m[2]]))
		s = s[len(m[0]):]
	}

	return total, nil
}

// FormatDuration formats d compactly, dropping units smaller than round,
// e.g. "2d3h", "1m30s" or "250ms".
func FormatDuration(d, round time.Duration) string {
	if round > 0 {
		d = d.Round(round)
	}
	if d == 0 {
		return "0s"
	}

	var sb strings.Builder
	if d < 0 {
		sb.WriteByte('-')
		d = -d
	}

	if d < time.Second {
		switch {
		case d%time.Millisecond == 0:
			fmt.Fprintf(&sb, "%dms", d/time.Millisecond)
		case d%time.Microsecond == 0:
			fmt.Fprintf(&sb, "%dµs", d/time.Microsecond)
		default:
			fmt.Fprintf(&sb, "%dns", d)
		}
		return sb.String()
	}

	for _, u := range []struct {
		dur  time.Duration
		name string
	}{{week, "w"}, {day, "d"}, {time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"}} {
		if n := d / u.dur; n > 0 {
			fmt.Fprintf(&sb, "%d%s", n, u.name)
			d -= n * u.dur
		}
	}

	return sb.String()
}

// FormatAge returns how long ago t was relative to now, in its largest unit,
// e.g. "3d ago". The zero time formats as "never".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	age := now.Sub(t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", age/time.Minute)
	case age < day:
		return fmt.Sprintf("%dh ago", age/time.Hour)
	case age < week:
		return fmt.Sprintf("%dd ago", age/day)
	}
	return fmt.Sprintf("%dw ago", age/week)
}
