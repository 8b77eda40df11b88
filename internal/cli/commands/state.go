package commands

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/schemagraph/internal/cli/output"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// StateOptions holds options for the state commands.
type StateOptions struct {
	UserID string
}

// StateOutput is the structured form of one user's local state.
type StateOutput struct {
	UserID         string                         `json:"userId" yaml:"user_id"`
	Positions      map[core.TableID]core.Position `json:"positions" yaml:"positions"`
	CustomColors   map[core.TableID]string        `json:"customColors" yaml:"custom_colors"`
	Filters        []string                       `json:"filters" yaml:"filters"`
	HiddenDBs      []string                       `json:"hiddenDbs" yaml:"hidden_dbs"`
	HideIsolated   bool                           `json:"hideIsolated" yaml:"hide_isolated"`
	Connected      bool                           `json:"connected" yaml:"connected"`
	OnboardingSeen bool                           `json:"onboardingSeen" yaml:"onboarding_seen"`
	Keys           []string                       `json:"keys" yaml:"keys"`
}

// NewStateCommand creates the state command group.
func NewStateCommand() *cobra.Command {
	opts := &StateOptions{}

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or clear a user's local state",
		Long: `Inspect or clear the state schemagraph keeps in its local store.
All keys are scoped per user; one user's state never touches another's.`,
	}
	cmd.PersistentFlags().StringVarP(&opts.UserID, "user", "u", "", "User id (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show a user's local state",
		Example: `  # Show state for a user
  schemagraph state show --user 3f1c...`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStateShow(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete a user's local state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStateClear(cmd, opts)
		},
	})

	return cmd
}

func runStateShow(cmd *cobra.Command, opts *StateOptions) error {
	if opts.UserID == "" {
		return errors.New("--user is required")
	}
	cmdCtx := NewCommandContext(cmd)

	kv, store, err := openLocalStore(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = kv.Close() }()

	scope := store.Scope(opts.UserID)
	snap := scope.Load()
	keys, err := kv.Keys(scope.Key(""))
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	out := StateOutput{
		UserID:         opts.UserID,
		Positions:      snap.Positions,
		CustomColors:   snap.CustomColors,
		Filters:        snap.Filters,
		HiddenDBs:      snap.HiddenDBs,
		HideIsolated:   snap.HideIsolated,
		Connected:      snap.ProviderToken != nil && *snap.ProviderToken != "",
		OnboardingSeen: scope.OnboardingSeen(),
		Keys:           keys,
	}

	r := cmdCtx.Renderer
	if ok, err := r.Structured(out); ok || err != nil {
		return err
	}
	return stateText(r, out)
}

// stateText outputs state in styled text format. The provider token is
// never printed.
func stateText(r *output.Renderer, out StateOutput) error {
	styles := r.Styles()

	r.Println("")
	r.Header(1, "Local state for "+out.UserID)
	r.Println("")
	r.Printf("  %s  %s\n", styles.Bold.Render("Connected:    "), yesNo(out.Connected))
	r.Printf("  %s  %s\n", styles.Bold.Render("Type filters: "), typeList(out.Filters))
	r.Printf("  %s  %s\n", styles.Bold.Render("Hidden tables:"), typeList(out.HiddenDBs))
	r.Printf("  %s  %s\n", styles.Bold.Render("Hide isolated:"), yesNo(out.HideIsolated))
	r.Printf("  %s  %s\n", styles.Bold.Render("Onboarding:   "), yesNo(out.OnboardingSeen))
	r.Println("")

	if len(out.Positions) > 0 || len(out.CustomColors) > 0 {
		ids := make([]string, 0, len(out.Positions))
		seen := make(map[string]bool)
		for id := range out.Positions {
			ids = append(ids, id)
			seen[id] = true
		}
		for id := range out.CustomColors {
			if !seen[id] {
				ids = append(ids, id)
			}
		}
		sort.Strings(ids)

		rows := make([][]any, 0, len(ids))
		for _, id := range ids {
			pos := "-"
			if p, ok := out.Positions[id]; ok {
				pos = fmt.Sprintf("%.0f, %.0f", p.X, p.Y)
			}
			color := "-"
			if c, ok := out.CustomColors[id]; ok {
				color = styles.Swatch(c) + " " + c
			}
			rows = append(rows, []any{id, pos, color})
		}
		r.Table([]string{"Table", "Position", "Color"}, rows)
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("%d stored keys", len(out.Keys))))
	return nil
}

func runStateClear(cmd *cobra.Command, opts *StateOptions) error {
	if opts.UserID == "" {
		return errors.New("--user is required")
	}
	cmdCtx := NewCommandContext(cmd)

	kv, store, err := openLocalStore(cmdCtx.Cfg, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = kv.Close() }()

	if err := store.Scope(opts.UserID).Clear(); err != nil {
		return fmt.Errorf("failed to clear state: %w", err)
	}
	cmdCtx.Logger.Info("cleared local state", "user_id", opts.UserID)

	r := cmdCtx.Renderer
	if ok, err := r.Structured(map[string]any{"userId": opts.UserID, "cleared": true}); ok || err != nil {
		return err
	}
	r.Println(r.Styles().Success.Render("Cleared local state for " + opts.UserID))
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
