package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/deps"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/preview"
)

// Register records a file as an asset; registering a known path returns the
// existing handle
func (s *Service) Register(path string) (handle.Handle, error) {
	return s.registry.Register(path)
}

// Unregister removes an asset, its edges, its resident blob and its
// persisted row. The handle becomes stale.
func (s *Service) Unregister(ctx context.Context, h handle.Handle) bool {
	a, ok := s.registry.Get(h)
	if !ok {
		return false
	}

	if err := s.cache.Delete(ctx, a.Key()); err != nil {
		s.logger.Warn("failed to evict asset", zap.String("asset", a.RelativePath), zap.Error(err))
	}
	if err := s.db.DeleteAsset(ctx, a.RelativePath); err != nil {
		s.logger.Warn("failed to delete asset row", zap.String("asset", a.RelativePath), zap.Error(err))
	}
	s.graph.RemoveNode(a.Key())

	s.mu.Lock()
	delete(s.pendingCache, h)
	s.mu.Unlock()

	return s.registry.Unregister(h)
}

// Get returns a snapshot of an asset
func (s *Service) Get(h handle.Handle) (asset.Asset, bool) {
	return s.registry.Get(h)
}

// All returns every registered asset
func (s *Service) All() []asset.Asset {
	return s.registry.All()
}

// FindByFilename resolves an absolute or content-relative file name
func (s *Service) FindByFilename(name string) handle.Handle {
	return s.registry.FindByFilename(name)
}

// FindByRelativePath resolves a content-relative path
func (s *Service) FindByRelativePath(rel string) handle.Handle {
	return s.registry.FindByRelativePath(rel)
}

// RecordOpen bumps usage telemetry and persists it
func (s *Service) RecordOpen(ctx context.Context, h handle.Handle) bool {
	if !s.registry.RecordOpen(h) {
		return false
	}
	s.persist(ctx, h)
	return true
}

// RecordOpenByFilename is RecordOpen by file name
func (s *Service) RecordOpenByFilename(ctx context.Context, name string) (handle.Handle, error) {
	h, err := s.registry.RecordOpenByFilename(name)
	if err != nil {
		return handle.Nil, err
	}
	s.persist(ctx, h)
	return h, nil
}

func (s *Service) persist(ctx context.Context, h handle.Handle) {
	a, ok := s.registry.Get(h)
	if !ok {
		return
	}
	if err := s.db.SaveState(ctx, a); err != nil {
		s.logger.Warn("failed to persist asset", zap.String("asset", a.RelativePath), zap.Error(err))
	}
}

func (s *Service) IsCached(h handle.Handle) bool             { return s.registry.IsCached(h) }
func (s *Service) HasSourceFile(h handle.Handle) bool        { return s.registry.HasSourceFile(h) }
func (s *Service) HasCompiledFile(h handle.Handle) bool      { return s.registry.HasCompiledFile(h) }
func (s *Service) IsCompiled(h handle.Handle) bool           { return s.registry.IsCompiled(h) }
func (s *Service) IsCompileFailed(h handle.Handle) bool      { return s.registry.IsCompileFailed(h) }
func (s *Service) CompileStateReason(h handle.Handle) string { return s.orch.CompileStateReason(h) }

// IsCompiledAndUpToDate reports whether the compiled output reflects the
// current source, inputs, special dependencies and upstream compiles
func (s *Service) IsCompiledAndUpToDate(h handle.Handle) bool {
	return s.orch.IsCompiledAndUpToDate(h)
}

// NeedAnyDependencyUpdate reports whether anything the asset's compile
// consumed has changed since
func (s *Service) NeedAnyDependencyUpdate(h handle.Handle) bool {
	return s.orch.NeedAnyDependencyUpdate(h)
}

// CompileIfNeeded compiles h when it is stale and waits for the result
func (s *Service) CompileIfNeeded(ctx context.Context, h handle.Handle) (*compiler.Result, error) {
	return s.orch.CompileIfNeeded(ctx, h)
}

// RecompileAsset compiles h unconditionally and waits for the result
func (s *Service) RecompileAsset(ctx context.Context, h handle.Handle, full bool) (*compiler.Result, error) {
	return s.orch.RecompileAsset(ctx, h, full)
}

// CompileAll compiles every registered asset in dependency order. Without
// force, up-to-date assets are skipped.
func (s *Service) CompileAll(ctx context.Context, full, force bool) ([]*compiler.Result, error) {
	all := s.registry.All()
	handles := make([]handle.Handle, 0, len(all))
	for _, a := range all {
		// generated children are compiled by their parents
		if a.Record != nil && a.Record.GeneratedBy != "" {
			continue
		}
		handles = append(handles, a.Handle)
	}
	return s.orch.CompileMany(ctx, handles, full, force)
}

// CompileMany compiles the given assets in dependency order
func (s *Service) CompileMany(ctx context.Context, handles []handle.Handle, full, force bool) ([]*compiler.Result, error) {
	return s.orch.CompileMany(ctx, handles, full, force)
}

// OnDemandRecompile queues a recompile for the next RunFrame
func (s *Service) OnDemandRecompile(h handle.Handle, reason string) bool {
	return s.orch.OnDemandRecompile(h, reason)
}

// SetInMemoryReplacement overrides the source of h until discarded
func (s *Service) SetInMemoryReplacement(h handle.Handle, data []byte) bool {
	return s.registry.SetInMemoryReplacement(h, data)
}

// DiscardInMemoryReplacement restores the on-disk source of h
func (s *Service) DiscardInMemoryReplacement(h handle.Handle) bool {
	return s.registry.DiscardInMemoryReplacement(h)
}

// AddRelatedFile attaches a related file to h
func (s *Service) AddRelatedFile(h handle.Handle, path string) bool {
	return s.registry.AddRelatedFile(h, path)
}

// AddInputDependency declares an extra input file of h
func (s *Service) AddInputDependency(h handle.Handle, path string) bool {
	return s.registry.AddInputDependency(h, path)
}

// Dependencies lists the keys related to h by kind. deep follows edges of
// that kind transitively.
func (s *Service) Dependencies(h handle.Handle, query Query, deep bool) ([]string, error) {
	a, ok := s.registry.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", asset.ErrNotFound, h)
	}
	key := a.Key()

	switch query {
	case QueryDependencies:
		return s.graph.Dependencies(key, deep), nil
	case QueryDependents:
		return s.graph.Dependents(key, deep), nil
	case QueryParents:
		return s.graph.Parents(key, deep), nil
	case QueryChildren:
		return s.graph.Children(key, deep), nil
	case QueryReferences:
		return s.graph.References(key, deep), nil
	case QueryReferencers:
		return s.graph.Referencers(key, deep), nil
	default:
		return nil, fmt.Errorf("unknown dependency query %q", query)
	}
}

// Query selects a dependency relation
type Query string

const (
	QueryDependencies Query = "dependencies"
	QueryDependents   Query = "dependents"
	QueryParents      Query = "parents"
	QueryChildren     Query = "children"
	QueryReferences   Query = "references"
	QueryReferencers  Query = "referencers"
)

// Queries lists every supported relation
func Queries() []Query {
	return []Query{QueryDependencies, QueryDependents, QueryParents, QueryChildren, QueryReferences, QueryReferencers}
}

// Outgoing returns the raw outgoing edges of h
func (s *Service) Outgoing(h handle.Handle) []deps.Edge {
	a, ok := s.registry.Get(h)
	if !ok {
		return nil
	}
	return s.graph.Outgoing(a.Key())
}

// RenderThumbnail queues a thumbnail render
func (s *Service) RenderThumbnail(h handle.Handle, target preview.Pixmap) (*preview.Request, error) {
	return s.previews.Render(h, target)
}

// CompiledBlob reads and decodes the compiled output of h
func (s *Service) CompiledBlob(h handle.Handle) (*compiler.Blob, error) {
	a, ok := s.registry.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", asset.ErrNotFound, h)
	}
	if a.Record == nil || a.Record.CompiledPath == "" {
		return nil, fmt.Errorf("asset %s has not been compiled", a.RelativePath)
	}
	data, err := os.ReadFile(a.Record.CompiledPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read compiled output of %s: %w", a.RelativePath, err)
	}
	return compiler.DecodeBlob(data)
}
