package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseColor(t *testing.T) {
	c, ok := ParseColor("Cyan")
	assert.True(t, ok)
	assert.Equal(t, Color("cyan"), c)

	_, ok = ParseColor("chartreuse")
	assert.False(t, ok)
}

func TestPaint(t *testing.T) {
	assert.Equal(t, "\x1b[31mhi\x1b[0m", Color("red").Paint("hi"))
	assert.Equal(t, "hi", Color("nope").Paint("hi"), "unknown colors pass text through")
}

func TestFormatChat(t *testing.T) {
	ts := time.Date(2025, 6, 1, 9, 30, 5, 0, time.UTC)
	line := formatChat(ts, "alice", DefaultColor, "hello")
	assert.Contains(t, line, "09:30:05")
	assert.Contains(t, line, "alice")
	assert.Contains(t, line, "hello")
	assert.Contains(t, line, "\x1b[32m", "sender carries the display color")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	rl := newRateLimiter(2)
	assert.True(t, rl.allow(now))
	assert.True(t, rl.allow(now))
	assert.False(t, rl.allow(now))

	// a fresh window resets the budget
	assert.True(t, rl.allow(now.Add(time.Minute)))

	var disabled *rateLimiter
	assert.True(t, disabled.allow(now), "nil limiter never blocks")
	assert.True(t, newRateLimiter(0).allow(now), "zero limit disables limiting")
}
