// Package dashboard provides the display formatting and summary statistics
// shared by the console and the command-line tools.
package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"annfeed/internal/domain"
	"annfeed/internal/feed"
)

// TimestampLayout is the display format for announcement times.
const TimestampLayout = "02 Jan 2006 15:04:05"

// FormatTimestamp renders t in IST using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.In(domain.IST).Format(TimestampLayout)
}

// ParseTimestamp inverts FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), domain.IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatRecordTime renders a record's trade time, or "-" when it has none.
func FormatRecordTime(a *domain.Announcement) string {
	t, ok := a.Time()
	if !ok {
		return "-"
	}
	return FormatTimestamp(t)
}

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatCount formats a record count, using K suffix for large values.
func FormatCount(n int) string {
	if n >= 100_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	}
	return FormatInt(n)
}

// PageLabels renders a page-number list, bracketing the current page:
// "1 … 4 [5] 6 … 10".
func PageLabels(items []feed.PageItem, current int) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		switch {
		case it.Ellipsis:
			parts = append(parts, "…")
		case it.Page == current:
			parts = append(parts, "["+strconv.Itoa(it.Page)+"]")
		default:
			parts = append(parts, strconv.Itoa(it.Page))
		}
	}
	return strings.Join(parts, " ")
}

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
