package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/assetforge/internal/cli/ui"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/handle"
)

// NewCompileCommand creates the compile command
func NewCompileCommand(global *globalOptions) *cobra.Command {
	var (
		full  bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "compile [paths...]",
		Short: "Compile assets",
		Long: `Compile the given assets, or every asset when no paths are given.

Assets are compiled in dependency order on the worker pool. Up-to-date assets
are skipped unless --force is given; --full also rewrites child resources
whose output did not change.

Examples:
  assetforge compile
  assetforge compile materials/wood.mat --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx, global, false)
			if err != nil {
				return err
			}
			defer sess.Close()
			if err := sess.svc.Start(ctx); err != nil {
				return err
			}

			var handles []handle.Handle
			if len(args) == 0 {
				for _, a := range sess.svc.All() {
					if a.Record != nil && a.Record.GeneratedBy != "" {
						continue
					}
					handles = append(handles, a.Handle)
				}
			}
			for _, arg := range args {
				a, err := resolveAsset(sess.svc, arg, global.noColor)
				if err != nil {
					return err
				}
				handles = append(handles, a.Handle)
			}
			if len(handles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), ui.Warning("nothing to compile", global.noColor))
				return nil
			}

			bar := ui.NewProgressBar(cmd.ErrOrStderr(), len(handles), "compiling", global.noColor)
			type outcome struct {
				results []*compiler.Result
				err     error
			}
			done := make(chan outcome, 1)
			go func() {
				results, err := sess.svc.CompileMany(ctx, handles, full, force || full)
				done <- outcome{results, err}
			}()

			orch := sess.svc.Orchestrator()
			ticker := time.NewTicker(50 * time.Millisecond)
			defer ticker.Stop()
			var res outcome
		wait:
			for {
				select {
				case res = <-done:
					break wait
				case <-ticker.C:
					bar.Add(len(orch.DrainCompleted()))
				}
			}
			orch.DrainCompleted()
			bar.Finish()
			if res.err != nil {
				return res.err
			}
			return reportCompile(cmd, global, res.results)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Rewrite every child resource (implies --force)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Recompile up-to-date assets")

	return cmd
}

func reportCompile(cmd *cobra.Command, global *globalOptions, results []*compiler.Result) error {
	out := cmd.OutOrStdout()
	var compiled, skipped, failed int
	for _, r := range results {
		switch {
		case !r.Success:
			failed++
			ui.CompileFailed(r.RelativePath, r.Reason, global.noColor).Write(cmd.ErrOrStderr())
		case r.Skipped:
			skipped++
		default:
			compiled++
		}
	}

	summary := fmt.Sprintf("%d compiled, %d up to date, %d failed", compiled, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("compile finished with failures: %s", summary)
	}
	fmt.Fprintln(out, ui.Success(summary, global.noColor))
	return nil
}
