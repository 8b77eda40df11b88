// Package palette assigns deterministic colors to tables.
package palette

// FallbackColor is used for edges whose source table has no color.
const FallbackColor = "#94a3b8"

// colors is ordered so neighbouring indexes stay visually distinct.
var colors = [...]string{
	"#6366f1", // indigo
	"#f59e0b", // amber
	"#10b981", // emerald
	"#ef4444", // red
	"#3b82f6", // blue
	"#ec4899", // pink
	"#14b8a6", // teal
	"#f97316", // orange
	"#8b5cf6", // violet
	"#84cc16", // lime
	"#06b6d4", // cyan
	"#e11d48", // rose
}

// Len returns the palette size.
func Len() int { return len(colors) }

// Colors returns a copy of the palette in order.
func Colors() []string {
	out := make([]string, len(colors))
	copy(out, colors[:])
	return out
}

// ForIndex returns the color of the i-th table.
// Negative indexes wrap the same way positive ones do.
func ForIndex(i int) string {
	n := len(colors)
	return colors[((i%n)+n)%n]
}
