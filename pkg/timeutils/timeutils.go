package timeutils

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParseWeekdays parses a comma-separated day list (0=Sunday, 1=Monday, ..., 6=Saturday).
// Ranges like "1-6" are accepted too.
func ParseWeekdays(raw string) ([]time.Weekday, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("weekday list is empty")
	}

	seen := make(map[time.Weekday]bool)
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lo, hi := p, p
		if i := strings.IndexByte(p, '-'); i > 0 {
			lo, hi = p[:i], p[i+1:]
		}
		from, err := parseDay(lo)
		if err != nil {
			return nil, err
		}
		to, err := parseDay(hi)
		if err != nil {
			return nil, err
		}
		if to < from {
			return nil, fmt.Errorf("invalid day range: %s", p)
		}
		for d := from; d <= to; d++ {
			seen[time.Weekday(d)] = true
		}
	}

	days := make([]time.Weekday, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })
	return days, nil
}

// FormatWeekdays is the inverse of ParseWeekdays.
func FormatWeekdays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func parseDay(s string) (int, error) {
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid day: %s", s)
	}
	if d < 0 || d > 6 {
		return 0, fmt.Errorf("day must be between 0 and 6")
	}
	return d, nil
}

// NextWindowOpening returns the first instant at or after from, in loc, that falls on
// one of days at startHour:00. If from is already inside [startHour, endHour) on an
// allowed day, from itself is returned.
func NextWindowOpening(from time.Time, days []time.Weekday, startHour, endHour int, loc *time.Location) (time.Time, error) {
	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no business days configured")
	}
	allowed := make(map[time.Weekday]bool, len(days))
	for _, d := range days {
		allowed[d] = true
	}

	local := from.In(loc)
	if allowed[local.Weekday()] && local.Hour() >= startHour && local.Hour() < endHour {
		return from, nil
	}

	candidate := time.Date(local.Year(), local.Month(), local.Day(), startHour, 0, 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	for i := 0; i < 8; i++ {
		if allowed[candidate.Weekday()] {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, 1)
	}

	return time.Time{}, fmt.Errorf("could not find next window opening")
}
