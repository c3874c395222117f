package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/cli/ui"
)

// NewStatusCommand creates the status command
func NewStatusCommand(global *globalOptions) *cobra.Command {
	var (
		typeID  string
		state   string
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "List assets and their compile state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if state != "" && asset.ParseCompileState(state).String() != state {
				return fmt.Errorf("unknown compile state %q", state)
			}

			ctx := cmd.Context()
			sess, err := openSession(ctx, global, false)
			if err != nil {
				return err
			}
			defer sess.Close()
			if err := sess.svc.Start(ctx); err != nil {
				return err
			}

			var assets []asset.Asset
			for _, a := range sess.svc.All() {
				if typeID != "" && a.TypeID != typeID {
					continue
				}
				if state != "" && a.State.String() != state {
					continue
				}
				assets = append(assets, a)
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if assets == nil {
					assets = []asset.Asset{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(assets)
			}

			table := ui.NewTable(out, global.noColor, "PATH", "TYPE", "STATE", "OPENS")
			var failed []asset.Asset
			for _, a := range assets {
				upToDate := sess.svc.IsCompiledAndUpToDate(a.Handle)
				label := a.State.String()
				if a.State == asset.Compiled && !upToDate {
					label += " (stale)"
				}
				table.AddRow(a.RelativePath, a.TypeID, label, fmt.Sprint(a.OpenCount))
				if a.State == asset.Failed {
					failed = append(failed, a)
				}
			}
			table.Render()
			fmt.Fprintf(out, "\n%d assets\n", table.Len())

			for _, a := range failed {
				ui.CompileFailed(a.RelativePath, a.FailureReason, global.noColor).Write(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&typeID, "type", "", "Only show assets of this type")
	cmd.Flags().StringVar(&state, "state", "", "Only show assets in this compile state")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print assets as JSON")

	return cmd
}
