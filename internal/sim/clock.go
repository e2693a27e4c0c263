package sim

import (
	"fmt"
	"math"
)

// FormatClock renders elapsed minutes t as wall-clock HH:MM, starting at
// OperationStart and wrapping at midnight.
func FormatClock(t float64, cfg Config) string {
	total := cfg.OperationStart*60 + int(math.Floor(t))
	total = ((total % (24 * 60)) + 24*60) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
