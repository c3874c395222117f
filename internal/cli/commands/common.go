package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/cli/ui"
	"github.com/conduit-lang/assetforge/internal/config"
	"github.com/conduit-lang/assetforge/internal/logging"
	"github.com/conduit-lang/assetforge/internal/service"
)

// oneShotLogLevel keeps short-lived commands quiet unless asked otherwise
const oneShotLogLevel = "warn"

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.LoadFrom(opts.dir)
	if err != nil {
		return nil, &reportedError{msg: ui.ConfigError(err, opts.noColor)}
	}
	return cfg, nil
}

// session is an opened service plus the logger it writes to
type session struct {
	cfg    *config.Config
	svc    *service.Service
	logger *zap.Logger
}

func (s *session) Close() {
	if err := s.svc.Close(); err != nil {
		s.logger.Warn("failed to close service", zap.Error(err))
	}
	s.logger.Sync()
}

// openSession loads the configuration and builds the service. One-shot
// commands never watch the content root.
func openSession(ctx context.Context, opts *globalOptions, longRunning bool) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if !longRunning {
		cfg.Watch.Enabled = false
	}

	level := cfg.Log.Level
	if !longRunning {
		level = oneShotLogLevel
	}
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := logging.New(level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.ContentRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content root: %w", err)
	}

	svc, err := service.New(ctx, cfg, service.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, svc: svc, logger: logger}, nil
}

// resolveAsset accepts a content-relative path or a file path relative to
// the working directory
func resolveAsset(svc *service.Service, arg string, noColor bool) (asset.Asset, error) {
	h := svc.FindByRelativePath(arg)
	if h.IsNil() {
		if abs, err := filepath.Abs(arg); err == nil {
			h = svc.FindByFilename(abs)
		}
	}
	if a, ok := svc.Get(h); ok {
		return a, nil
	}

	all := svc.All()
	paths := make([]string, len(all))
	for i, a := range all {
		paths[i] = a.RelativePath
	}
	return asset.Asset{}, &reportedError{msg: ui.AssetNotFound(arg, ui.SuggestPaths(arg, paths), noColor)}
}
