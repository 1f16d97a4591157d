package rooms

import (
	"fmt"
	"time"
)

// NameToColor derives a stable hex color from a display name. Identical names
// always produce identical colors.
func NameToColor(name string) string {
	var hash uint32
	for _, b := range []byte(name) {
		hash = (hash + uint32(b)) * 31
	}

	r := (hash % 200) + 55 // +55 to avoid going too dark
	g := ((hash >> 8) % 200) + 55
	b := ((hash >> 16) % 200) + 55

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

// FormatRemaining renders a countdown as "HH:MM:SS remaining...".
func FormatRemaining(remaining time.Duration) string {
	totalSeconds := int64(remaining / time.Second)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	return fmt.Sprintf("%02d:%02d:%02d remaining...", hours, minutes, seconds)
}
