// Package service is the asset system's facade. A Service is constructed
// once, owns every component and is handed to the RPC, HTTP and CLI
// surfaces; there is no global instance.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/compiler/builtin"
	"github.com/conduit-lang/assetforge/internal/config"
	"github.com/conduit-lang/assetforge/internal/deps"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
	"github.com/conduit-lang/assetforge/internal/preview"
	"github.com/conduit-lang/assetforge/internal/residency"
	"github.com/conduit-lang/assetforge/internal/store"
	"github.com/conduit-lang/assetforge/internal/watch"
)

// Options supplies collaborators. Nil fields are built from the config.
type Options struct {
	// Host receives callbacks in addition to the service's own event bus
	Host   host.Host
	Logger *zap.Logger
	Store  *store.Store
	Cache  residency.Cache
	// Types replaces the default asset types
	Types *asset.TypeRegistry
}

// Service owns the registry, graph, orchestrator, preview service, store,
// residency cache and watcher
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	hosts    *host.Multi
	bus      *Bus
	types    *asset.TypeRegistry
	registry *asset.Registry
	graph    *deps.Graph
	orch     *compiler.Orchestrator
	previews *preview.Service
	db       *store.Store
	cache    residency.Cache

	queue   *watch.Queue
	watcher *watch.FileWatcher

	// assets waiting for a compile before they become resident
	pendingCache map[handle.Handle]*compiler.Job
	closed       bool
	mu           sync.Mutex
}

// New builds a service. Call Start to restore persisted state, scan the
// content root and start watching.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	types := opts.Types
	if types == nil {
		types = asset.NewDefaultTypeRegistry()
	}

	if err := os.MkdirAll(cfg.ContentRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content root: %w", err)
	}
	if err := os.MkdirAll(cfg.CompiledRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create compiled root: %w", err)
	}

	s := &Service{
		cfg:          cfg,
		logger:       logger,
		bus:          NewBus(),
		types:        types,
		graph:        deps.NewGraph(),
		queue:        watch.NewQueue(),
		pendingCache: make(map[handle.Handle]*compiler.Job),
	}
	s.hosts = host.NewMulti(s.bus, opts.Host)

	registry, err := asset.NewRegistry(cfg.ContentRoot, cfg.CompiledRoot, types, s.hosts)
	if err != nil {
		return nil, err
	}
	s.registry = registry

	s.db = opts.Store
	if s.db == nil {
		if err := ensureDatabaseDir(cfg); err != nil {
			return nil, err
		}
		if s.db, err = store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN); err != nil {
			return nil, err
		}
	}

	s.cache = opts.Cache
	if s.cache == nil {
		s.cache, err = residency.Open(cfg.Cache.Backend, residency.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		}, residency.Config{DefaultTTL: cfg.Cache.TTL, Prefix: residency.DefaultConfig().Prefix})
		if err != nil {
			s.db.Close()
			return nil, err
		}
	}

	s.orch = compiler.NewOrchestrator(registry, s.graph, compiler.Options{
		Host:    s.hosts,
		Store:   s.db,
		Logger:  logger.Named("compiler"),
		Workers: cfg.Compile.Workers,
	})
	builtin.Register(s.orch, builtin.TextureSettings{MaxSize: cfg.Compile.TextureMaxSize})

	s.previews = preview.NewService(registry, preview.Options{
		Host:    s.hosts,
		Logger:  logger.Named("preview"),
		Workers: cfg.Preview.Workers,
		Size:    cfg.Preview.Size,
	})
	s.previews.RegisterRenderer("texture", preview.TextureRenderer{})
	s.previews.RegisterRenderer("model", preview.ModelRenderer{})

	return s, nil
}

func ensureDatabaseDir(cfg *config.Config) error {
	if cfg.Database.Driver != store.DriverSQLite || cfg.Database.DSN == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

// Start restores persisted state, scans the content root and starts the
// watcher when enabled
func (s *Service) Start(ctx context.Context) error {
	if err := s.Restore(ctx); err != nil {
		return err
	}
	if _, err := s.Scan(ctx); err != nil {
		return err
	}
	if !s.cfg.Watch.Enabled {
		return nil
	}

	w, err := watch.NewFileWatcher(s.registry.ContentRoot(), watch.Options{
		Debounce: s.cfg.Watch.Debounce,
		Ignore:   s.cfg.Watch.Ignore,
		Logger:   s.logger.Named("watch"),
	}, s.queue.Push)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return err
	}

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	s.logger.Info("watching content root", zap.String("root", s.registry.ContentRoot()))
	return nil
}

// Restore loads assets and edges from the store. Assets whose source is gone
// are dropped from the store unless they were generated by another compile.
func (s *Service) Restore(ctx context.Context) error {
	rows, err := s.db.LoadAssets(ctx)
	if err != nil {
		return err
	}

	restored := make(map[string]bool, len(rows))
	for _, row := range rows {
		generated := row.Record != nil && row.Record.GeneratedBy != ""
		_, abs, err := s.registry.Normalize(row.RelativePath)
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(abs); statErr != nil && !generated {
			if err := s.db.DeleteAsset(ctx, row.RelativePath); err != nil {
				s.logger.Warn("failed to drop stale asset", zap.String("asset", row.RelativePath), zap.Error(err))
			}
			continue
		}
		if _, err := s.registry.Restore(row.RelativePath, row.State, row.Reason, row.Record, row.OpenCount, row.LastOpened); err != nil {
			return err
		}
		restored[asset.Key(row.RelativePath)] = true
	}

	edges, err := s.db.LoadEdges(ctx)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if restored[e.From] {
			s.graph.AddEdge(e)
		}
	}

	s.logger.Info("restored asset database", zap.Int("assets", len(restored)), zap.Int("edges", len(edges)))
	return nil
}

// Scan registers every typed file under the content root
func (s *Service) Scan(ctx context.Context) (asset.ScanResult, error) {
	result, err := s.registry.Scan(ctx)
	if err != nil {
		return result, err
	}
	s.hosts.AssetScanComplete(result)
	return result, nil
}

// Close stops the watcher and workers and closes the store and cache
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.mu.Unlock()

	if w != nil {
		w.Stop()
	}
	s.orch.Close()
	s.previews.Close()

	var firstErr error
	if err := s.cache.Close(); err != nil {
		firstErr = err
	}
	if err := s.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Config returns the service configuration
func (s *Service) Config() *config.Config { return s.cfg }

// Events returns the event bus
func (s *Service) Events() *Bus { return s.bus }

// Hosts returns the host fan-out; remote hosts join and leave through it
func (s *Service) Hosts() *host.Multi { return s.hosts }

// Registry returns the asset registry
func (s *Service) Registry() *asset.Registry { return s.registry }

// Graph returns the dependency graph
func (s *Service) Graph() *deps.Graph { return s.graph }

// Orchestrator returns the compiler orchestrator
func (s *Service) Orchestrator() *compiler.Orchestrator { return s.orch }

// Types returns the asset type registry
func (s *Service) Types() *asset.TypeRegistry { return s.types }

// Previews returns the thumbnail service
func (s *Service) Previews() *preview.Service { return s.previews }

// WatchQueue returns the queue the watcher feeds. Tests and embedders may
// push events directly.
func (s *Service) WatchQueue() *watch.Queue { return s.queue }
