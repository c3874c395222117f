package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/assetforge/internal/httpapi"
	"github.com/conduit-lang/assetforge/internal/rpc"
	"github.com/conduit-lang/assetforge/internal/service"
)

type serveOptions struct {
	stdio         bool
	rpcListen     string
	httpListen    string
	noHTTP        bool
	frameInterval time.Duration
}

// NewServeCommand creates the serve command
func NewServeCommand(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the asset service",
		Long: `Run the asset service until interrupted.

The service watches the content root, recompiles loaded assets when their
sources or dependencies change, and serves JSON-RPC clients on a TCP socket
(or on stdin/stdout with --stdio). The HTTP inspection API runs alongside
unless --no-http is given.

Examples:
  # Serve with the configured listen addresses
  assetforge serve

  # Serve a single editor process over stdio
  assetforge serve --stdio --no-http`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, global, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "Serve JSON-RPC on stdin/stdout instead of TCP")
	cmd.Flags().StringVar(&opts.rpcListen, "rpc", "", "JSON-RPC listen address (default from config)")
	cmd.Flags().StringVar(&opts.httpListen, "http", "", "HTTP API listen address (default from config)")
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "Disable the HTTP API")
	cmd.Flags().DurationVar(&opts.frameInterval, "frame-interval", 50*time.Millisecond, "Interval between service frames")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts *serveOptions) error {
	if opts.frameInterval <= 0 {
		return fmt.Errorf("--frame-interval must be positive, got %s", opts.frameInterval)
	}

	sess, err := openSession(ctx, global, true)
	if err != nil {
		return err
	}
	defer sess.Close()
	if err := sess.svc.Start(ctx); err != nil {
		return err
	}

	rpcAddr := firstNonEmpty(opts.rpcListen, sess.cfg.RPC.Listen)
	httpAddr := firstNonEmpty(opts.httpListen, sess.cfg.HTTP.Listen)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	rpcServer := rpc.NewServer(sess.svc, rpc.Options{Logger: sess.logger.Named("rpc")})
	if opts.stdio {
		g.Go(func() error {
			// the session ends when the client closes stdin
			defer cancel()
			return rpcServer.ServeStdio(ctx)
		})
	} else {
		ln, err := net.Listen("tcp", rpcAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", rpcAddr, err)
		}
		rpcAddr = ln.Addr().String()
		g.Go(func() error { return rpcServer.Serve(ctx, ln) })
	}

	if !opts.noHTTP && httpAddr != "" {
		api := httpapi.New(sess.svc, httpapi.Options{
			Logger:      sess.logger.Named("http"),
			TokenSecret: sess.cfg.HTTP.TokenSecret,
		})
		defer api.Close()
		g.Go(func() error { return api.ListenAndServe(ctx, httpAddr) })
	} else {
		httpAddr = ""
	}

	g.Go(func() error {
		runFrames(ctx, sess.svc, sess.logger, opts.frameInterval)
		return nil
	})

	// stdout belongs to the protocol in stdio mode
	printBanner(cmd, sess, opts.stdio, rpcAddr, httpAddr)

	err = g.Wait()
	fmt.Fprintln(cmd.ErrOrStderr(), "Shutting down...")
	return err
}

// runFrames drives the service until ctx ends
func runFrames(ctx context.Context, svc *service.Service, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := svc.RunFrame()
			if stats.WatchEvents > 0 || stats.Completed > 0 {
				logger.Debug("frame",
					zap.Int("watch_events", stats.WatchEvents),
					zap.Int("requested", stats.Requested),
					zap.Int("submitted", stats.Submitted),
					zap.Int("completed", stats.Completed),
					zap.Int("cached", stats.Cached),
				)
			}
		}
	}
}

func printBanner(cmd *cobra.Command, sess *session, stdio bool, rpcAddr, httpAddr string) {
	out := cmd.ErrOrStderr()
	banner := color.New(color.FgCyan, color.Bold)
	info := color.New(color.FgWhite)

	fmt.Fprintln(out)
	banner.Fprintln(out, "assetforge service")
	info.Fprintf(out, "   Content:  %s (%d assets)\n", sess.cfg.ContentRoot, len(sess.svc.All()))
	if stdio {
		info.Fprintln(out, "   JSON-RPC: stdio")
	} else {
		info.Fprintf(out, "   JSON-RPC: %s\n", rpcAddr)
	}
	if httpAddr != "" {
		info.Fprintf(out, "   HTTP API: http://%s/api\n", httpAddr)
	}
	fmt.Fprintln(out)
	color.New(color.FgYellow).Fprintln(out, "Press Ctrl+C to stop")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
