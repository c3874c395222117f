package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/assetforge/internal/cli/ui"
)

// NewScanCommand creates the scan command
func NewScanCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Register every asset under the content root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, global, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.svc.Restore(ctx); err != nil {
				return err
			}
			result, err := sess.svc.Scan(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kv := ui.NewKeyValueTable(out, global.noColor)
			kv.AddRow("Content root", sess.cfg.ContentRoot)
			kv.AddRow("New assets", fmt.Sprint(result.Registered))
			kv.AddRow("Known assets", fmt.Sprint(result.Known))
			kv.AddRow("Skipped files", fmt.Sprint(result.Skipped))
			kv.Render()
			fmt.Fprintln(out, ui.Success(fmt.Sprintf("%d assets registered", len(sess.svc.All())), global.noColor))
			return nil
		},
	}
}
