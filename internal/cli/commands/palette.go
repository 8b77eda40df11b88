package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/schemagraph/internal/palette"
)

// PaletteEntry is one palette color in structured output.
type PaletteEntry struct {
	Index int    `json:"index" yaml:"index"`
	Color string `json:"color" yaml:"color"`
}

// NewPaletteCommand creates the palette command.
func NewPaletteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "palette",
		Short: "Show the table color palette",
		Long: `Show the colors assigned to tables by position. Table i gets
palette color i modulo the palette size; edges without a source color use
the fallback color.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := NewCommandContext(cmd).Renderer

			entries := make([]PaletteEntry, 0, palette.Len())
			for i, c := range palette.Colors() {
				entries = append(entries, PaletteEntry{Index: i, Color: c})
			}
			if ok, err := r.Structured(map[string]any{
				"colors":   entries,
				"fallback": palette.FallbackColor,
			}); ok || err != nil {
				return err
			}

			styles := r.Styles()
			r.Header(1, fmt.Sprintf("Palette (%d colors)", len(entries)))
			for _, e := range entries {
				r.Printf("  %2d  %s  %s\n", e.Index, styles.Swatch(e.Color), e.Color)
			}
			r.Println(styles.Muted.Render(fmt.Sprintf("  fallback  %s  %s", styles.Swatch(palette.FallbackColor), palette.FallbackColor)))
			return nil
		},
	}
}
