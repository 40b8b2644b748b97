package dashboard

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPct formats a fraction as a percentage, "-" when undefined.
// Drops the decimal for magnitudes >= 100% to keep width compact.
func FormatPct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	pct := v * 100
	if math.Abs(pct) >= 100 {
		return fmt.Sprintf("%.0f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatDelta formats a signed percentage-point difference as "+X.XX%".
func FormatDelta(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", v*100)
}

// FormatRatio formats a Sharpe ratio or its delta.
func FormatRatio(v float64, signed bool) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	if signed {
		return fmt.Sprintf("%+.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
