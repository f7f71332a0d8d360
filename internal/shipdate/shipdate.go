// Package shipdate parses the loosely formatted 일시 column shared by import,
// filtering and listing.
package shipdate

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

var (
	reSixDigits   = regexp.MustCompile(`^\d{6}$`)
	reEightDigits = regexp.MustCompile(`^\d{8}$`)
	reSlashMDY    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2})$`)
	reDashYMD     = regexp.MustCompile(`^(\d{2})-(\d{1,2})-(\d{1,2})$`)
)

var genericLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006.01.02",
	"2006. 1. 2",
	"2006. 1. 2.",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
}

// Parse returns the calendar day a value denotes. Two-digit years are 20YY.
func Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(width.Narrow.String(s))
	if s == "" {
		return time.Time{}, false
	}

	switch {
	case reSixDigits.MatchString(s):
		return date(2000+atoi(s[0:2]), atoi(s[2:4]), atoi(s[4:6]))
	case reEightDigits.MatchString(s):
		return date(atoi(s[0:4]), atoi(s[4:6]), atoi(s[6:8]))
	}
	if m := reSlashMDY.FindStringSubmatch(s); m != nil {
		return date(2000+atoi(m[3]), atoi(m[1]), atoi(m[2]))
	}
	if m := reDashYMD.FindStringSubmatch(s); m != nil {
		return date(2000+atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}

	for _, layout := range genericLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// SortKey orders values by date. Empty and unparseable values sort as the oldest.
func SortKey(s string) int64 {
	t, ok := Parse(s)
	if !ok {
		return math.MinInt64
	}
	return t.UnixMilli()
}

// SortNewestFirst is a stable descending sort on the date returned by dateOf.
func SortNewestFirst[T any](items []T, dateOf func(T) string) {
	keys := make(map[int]int64, len(items))
	idx := make([]int, len(items))
	for i := range items {
		idx[i] = i
		keys[i] = SortKey(dateOf(items[i]))
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] > keys[idx[b]] })

	sorted := make([]T, len(items))
	for i, j := range idx {
		sorted[i] = items[j]
	}
	copy(items, sorted)
}

// InRange reports whether s falls within [from, to] by calendar day.
// Zero bounds are open. Values that do not parse are always in range.
func InRange(s string, from, to time.Time) bool {
	t, ok := Parse(s)
	if !ok {
		return true
	}
	if !from.IsZero() && t.Before(startOfDay(from)) {
		return false
	}
	if !to.IsZero() && !t.Before(startOfDay(to).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

func date(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// time.Date нормализует 31 февраля в март, такие даты отбрасываем
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
