package ui

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	starFull  = "★"
	starEmpty = "☆"
	maxStars  = 5
)

// Rating renders an average rating as five stars followed by the value and
// the number of ratings, e.g. "★★★★☆ 4.2 (13)". Unrated skills show "no ratings".
func Rating(avg float64, count int) string {
	if count <= 0 {
		return Dim("no ratings")
	}
	filled := int(math.Round(math.Max(0, math.Min(avg, maxStars))))
	stars := strings.Repeat(starFull, filled) + strings.Repeat(starEmpty, maxStars-filled)
	return fmt.Sprintf("%s %.1f (%d)", Warning(stars), avg, count)
}

// FileSize formats a size given in megabytes.
func FileSize(mb float64) string {
	switch {
	case mb <= 0:
		return "-"
	case mb < 1:
		return fmt.Sprintf("%.0f KB", math.Max(1, mb*1024))
	default:
		return fmt.Sprintf("%.1f MB", mb)
	}
}

// Truncate shortens s to at most width runes, ending with "..." when cut.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

// Plural returns singular when n is 1 and singular+"s" otherwise.
func Plural(n int, singular string) string {
	if n == 1 {
		return singular
	}
	return singular + "s"
}
