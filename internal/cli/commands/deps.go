package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/assetforge/internal/cli/ui"
	"github.com/conduit-lang/assetforge/internal/service"
)

// NewDepsCommand creates the deps command
func NewDepsCommand(global *globalOptions) *cobra.Command {
	var (
		deep  bool
		kinds []string
	)

	cmd := &cobra.Command{
		Use:   "deps <path>",
		Short: "Show the dependency relations of an asset",
		Long: `Show what an asset depends on and what depends on it.

Relations come from the most recent compiles, so compile first for a complete
picture.

Examples:
  assetforge deps materials/wood.mat
  assetforge deps textures/wood.png --kind referencers --deep`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			queries, err := parseQueries(kinds)
			if err != nil {
				return err
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

			a, err := resolveAsset(sess.svc, args[0], global.noColor)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kv := ui.NewKeyValueTable(out, global.noColor)
			kv.AddRow("Asset", a.RelativePath)
			kv.AddRow("Type", a.TypeID)
			kv.AddRow("State", ui.StateLabel(a.State, sess.svc.IsCompiledAndUpToDate(a.Handle), global.noColor))
			kv.Render()
			fmt.Fprintln(out)

			table := ui.NewTable(out, global.noColor, "RELATION", "ASSET")
			for _, q := range queries {
				keys, err := sess.svc.Dependencies(a.Handle, q, deep)
				if err != nil {
					return err
				}
				for _, key := range keys {
					table.AddRow(string(q), key)
				}
			}
			if table.Len() == 0 {
				fmt.Fprintf(out, "%s has no recorded relations\n", a.RelativePath)
				return nil
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&deep, "deep", false, "Follow relations transitively")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "Relations to show (default all): "+joinQueries())

	return cmd
}

func parseQueries(kinds []string) ([]service.Query, error) {
	if len(kinds) == 0 {
		return service.Queries(), nil
	}
	known := make(map[string]bool)
	for _, q := range service.Queries() {
		known[string(q)] = true
	}
	queries := make([]service.Query, 0, len(kinds))
	for _, k := range kinds {
		if !known[k] {
			return nil, fmt.Errorf("unknown relation %q, expected one of %s", k, joinQueries())
		}
		queries = append(queries, service.Query(k))
	}
	return queries, nil
}

func joinQueries() string {
	names := make([]string, 0, len(service.Queries()))
	for _, q := range service.Queries() {
		names = append(names, string(q))
	}
	return strings.Join(names, ", ")
}
