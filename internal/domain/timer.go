package domain

import "fmt"

// FormatTimer renders a countdown as zero padded minutes and seconds.
func FormatTimer(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
