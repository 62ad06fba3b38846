package ui

import (
	"fmt"
	"os"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorGood   = 114 // green
	colorWarn   = 179 // amber
	colorBad    = 167 // red
	colorStar   = 221 // yellow
)

var noColor bool

// eventColors maps event types to their watch color.
var eventColors = map[string]int{
	"new_answer":        colorGood,
	"vote_update":       colorAccent,
	"question_update":   colorCmd,
	"moderation_update": colorWarn,
	"best_answer":       colorStar,
	"heartbeat":         colorMuted,
	"close":             colorMuted,
}

// tierColors maps delivery tiers to their indicator color.
var tierColors = map[string]int{
	"stream":        colorGood,
	"blocking_poll": colorWarn,
	"timed_poll":    colorBad,
}

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderError returns s in the error (red) color.
func RenderError(s string) string { return paint(colorBad, s) }

// RenderEvent returns an event type name in its color.
func RenderEvent(typ string) string {
	if c, ok := eventColors[typ]; ok {
		return paint(c, typ)
	}
	return typ
}

// RenderTier returns a delivery tier name as a bracketed indicator.
func RenderTier(tier string) string {
	if c, ok := tierColors[tier]; ok {
		return paint(c, "["+tier+"]")
	}
	return "[" + tier + "]"
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// Init disables color unless ShouldUseColor allows it for f.
func Init(f *os.File) {
	if !ShouldUseColor(f) {
		ForceNoColor()
	}
}
