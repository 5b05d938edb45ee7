package pipeline

import (
	"fmt"
	"time"
)

// FormatDuration renders wall times for the run report: seconds up to two
// minutes, minutes beyond that.
func FormatDuration(d time.Duration) string {
	if d < 2*time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
