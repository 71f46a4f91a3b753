package utils

import (
	"fmt"
	"strconv"
	"time"
)

// Number formats an integer with thousands separators.
// For example: 1234567 becomes "1,234,567"
func Number(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}

	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range len(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return sign + string(out)
}

// Bytes formats a byte count with a binary unit suffix.
// Examples: 512 -> "512 B", 1536 -> "1.5 KiB", 3<<30 -> "3.0 GiB"
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Duration formats time duration in human-readable form.
// Examples:
//   - Less than 1 second: "0s"
//   - Less than 1 minute: "5.2s"
//   - Less than 1 hour: "3m5.2s"
//   - 1 hour or more: "2h15m"
func Duration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		minutes := int(d.Minutes())
		seconds := d.Seconds() - float64(minutes*60)
		return fmt.Sprintf("%dm%.1fs", minutes, seconds)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// Rate formats a per-second rate with K/M suffixes.
func Rate(count int, d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	rate := float64(count) / d.Seconds()
	switch {
	case rate < 1000:
		return fmt.Sprintf("%.2f/s", rate)
	case rate < 1000000:
		return fmt.Sprintf("%.2fK/s", rate/1000)
	default:
		return fmt.Sprintf("%.2fM/s", rate/1000000)
	}
}
