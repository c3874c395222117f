package commands

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/assetforge/internal/cli/ui"
	"github.com/conduit-lang/assetforge/internal/preview"
)

// NewThumbnailCommand creates the thumbnail command
func NewThumbnailCommand(global *globalOptions) *cobra.Command {
	var (
		output  string
		size    int
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "thumbnail <path>",
		Short: "Render an asset thumbnail to a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if size < 0 || size > 1024 {
				return fmt.Errorf("--size must be between 1 and 1024, got %d", size)
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

			req, err := sess.svc.RenderThumbnail(a.Handle, preview.Pixmap{Width: size, Height: size})
			if err != nil {
				return err
			}
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			thumb, ok, err := req.Wait(waitCtx)
			if err != nil {
				return fmt.Errorf("thumbnail render did not finish: %w", err)
			}
			if !ok {
				return fmt.Errorf("no thumbnail could be rendered for %s", a.RelativePath)
			}

			data, err := thumb.PNG()
			if err != nil {
				return err
			}
			if output == "" {
				output = strings.TrimSuffix(path.Base(a.RelativePath), path.Ext(a.RelativePath)) + ".thumb.png"
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("failed to write thumbnail: %w", err)
			}
			b := thumb.Image.Bounds()
			fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("wrote %dx%d thumbnail to %s", b.Dx(), b.Dy(), output), global.noColor))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: <name>.thumb.png)")
	cmd.Flags().IntVar(&size, "size", 0, "Edge length in pixels (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "How long to wait for the render")

	return cmd
}
