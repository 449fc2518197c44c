package util

import (
	"fmt"
	"math"
	"time"
)

// FormatNumber formats a count with K/M suffix for readability.
// Examples: 500 -> "500", 1500 -> "1.5K", 1500000 -> "1.5M"
func FormatNumber(n int64) string {
	switch {
	case n < 0:
		return "-" + FormatNumber(-n)
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// FormatRate formats a per-minute rate with one decimal.
func FormatRate(r float64) string {
	return fmt.Sprintf("%.1f/min", r)
}

// FormatPercent formats a ratio (0.42) as "42%".
func FormatPercent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}

// FormatChange formats a percentage change with an explicit sign.
// Examples: 12.34 -> "+12.3%", -4 -> "-4.0%"
func FormatChange(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.1f%%", pct)
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// FormatDuration formats seconds as "1h 2m", "3m 4s" or "5s".
func FormatDuration(seconds float64) string {
	s := int64(math.Round(seconds))
	switch {
	case s >= 3600:
		return fmt.Sprintf("%dh %dm", s/3600, (s%3600)/60)
	case s >= 60:
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatDate formats t as "Jan 2, 2006". The zero time formats as "-".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("Jan 2, 2006")
}

// FormatDateTime formats t as "2006-01-02 15:04". The zero time formats as "-".
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

// FormatDateShort formats a "2006-01-02" day as "Jan 2".
// Returns the original string if parsing fails.
func FormatDateShort(day string) string {
	t, err := time.Parse(time.DateOnly, day)
	if err != nil {
		return day
	}
	return t.Format("Jan 2")
}

// FormatAgo formats how long before now t happened: "just now", "5m ago",
// "3h ago", "2d ago".
func FormatAgo(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// RangeDays returns the number of days in a range parameter such as "30d".
// Returns 0 if the value is not a day range.
func RangeDays(rng string) int {
	var n int
	if _, err := fmt.Sscanf(rng, "%dd", &n); err != nil || n < 1 {
		return 0
	}
	return n
}

// RangeDuration parses a realtime range such as "30m", "1h" or "24h".
func RangeDuration(rng string) (time.Duration, error) {
	d, err := time.ParseDuration(rng)
	if err != nil {
		return 0, fmt.Errorf("invalid time range %q: %w", rng, err)
	}
	return d, nil
}
