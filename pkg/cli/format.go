package cli

import (
	"fmt"
	"strings"
	"time"
)

// FormatDuration renders d as "MM:SS", or "H:MM:SS" from an hour up, the
// way call timers are shown.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// FormatBytes formats a byte count for humans.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// LevelBar draws level in [0,1] as a bar of width cells.
func LevelBar(level float32, width int) string {
	if width <= 0 {
		return ""
	}
	level = min(max(level, 0), 1)
	n := int(level*float32(width) + 0.5)
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}
