package relay

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Color is a display color drawn from a fixed palette, rendered as an ANSI
// escape on the wire.
type Color string

// DefaultColor is assigned to every session until changed with /color.
const DefaultColor Color = "green"

var colorCodes = map[Color]string{
	"red":     "31",
	"green":   "32",
	"yellow":  "33",
	"blue":    "34",
	"magenta": "35",
	"cyan":    "36",
	"white":   "37",
}

// ParseColor resolves a color name from the palette.
func ParseColor(name string) (Color, bool) {
	c := Color(strings.ToLower(name))
	_, ok := colorCodes[c]
	return c, ok
}

// ColorNames lists the palette, sorted, for help and error text.
func ColorNames() []string {
	names := make([]string, 0, len(colorCodes))
	for c := range colorCodes {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}

// Paint wraps s in the color's ANSI escape sequence.
func (c Color) Paint(s string) string {
	code, ok := colorCodes[c]
	if !ok {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

// dim renders s in the faint bright-black style used for timestamps.
func dim(s string) string {
	return "\x1b[90m" + s + "\x1b[0m"
}

// formatChat renders a chat line as "HH:MM:SS sender: text" with the
// sender's display color.
func formatChat(ts time.Time, sender string, color Color, text string) string {
	return fmt.Sprintf("%s %s: %s", dim(ts.Format("15:04:05")), color.Paint(sender), text)
}
