package aggregator

import (
	"fmt"
	"time"
)

// FormatDuration renders a duration for human inspection:
//
//	< 1m   "12.500000s"
//	< 1h   "3m 4.000000s"
//	< 1d   "2h 3m 4s"
//	else   "1 days 02:03:04" (fractional seconds appended when present)
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	secs := d.Seconds()
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.6fs", secs)
	case d < time.Hour:
		minutes := int64(d / time.Minute)
		rem := (d % time.Minute).Seconds()
		return fmt.Sprintf("%dm %.6fs", minutes, rem)
	case d < 24*time.Hour:
		hours := int64(d / time.Hour)
		minutes := int64((d % time.Hour) / time.Minute)
		seconds := int64((d % time.Minute) / time.Second)
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	default:
		days := int64(d / (24 * time.Hour))
		rest := d % (24 * time.Hour)
		hours := int64(rest / time.Hour)
		minutes := int64((rest % time.Hour) / time.Minute)
		seconds := int64((rest % time.Minute) / time.Second)
		out := fmt.Sprintf("%d days %02d:%02d:%02d", days, hours, minutes, seconds)
		if frac := rest % time.Second; frac != 0 {
			out += fmt.Sprintf(".%06d", int64(frac/time.Microsecond))
		}
		return out
	}
}
