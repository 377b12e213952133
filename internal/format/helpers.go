package format

import (
	"fmt"
	"time"
)

// FmtPercent formats a 0..1 fraction as a whole percentage, e.g. 0.667 → "67%".
func FmtPercent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}

// FmtRatio formats "matched of total" counts as "2/3".
func FmtRatio(matched, total int) string {
	return fmt.Sprintf("%d/%d", matched, total)
}

// FmtDuration formats a duration as "Xm Ys" or "Ys".
func FmtDuration(d time.Duration) string {
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Truncate shortens s to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// BoolMark returns "✓" for true and "✗" for false.
func BoolMark(v bool) string {
	if v {
		return "✓"
	}
	return "✗"
}
