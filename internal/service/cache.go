package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
)

// Cache makes the compiled output of h resident. An up-to-date asset becomes
// resident at once. Otherwise a blocking call compiles and waits; a
// non-blocking call schedules the compile, returns false, and the asset
// becomes resident on the RunFrame after the compile succeeds.
func (s *Service) Cache(ctx context.Context, h handle.Handle, blocking bool) (bool, error) {
	if !s.registry.Contains(h) {
		return false, fmt.Errorf("%w: %s", asset.ErrNotFound, h)
	}

	if s.orch.IsCompiledAndUpToDate(h) {
		return true, s.makeResident(ctx, h)
	}

	if blocking {
		if _, err := s.orch.CompileIfNeeded(ctx, h); err != nil {
			return false, err
		}
		return true, s.makeResident(ctx, h)
	}

	job, err := s.orch.Submit(h, false, "cache")
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.pendingCache[h] = job
	s.mu.Unlock()
	return false, nil
}

// Uncache evicts the resident output of h
func (s *Service) Uncache(ctx context.Context, h handle.Handle) bool {
	a, ok := s.registry.Get(h)
	if !ok {
		return false
	}

	s.mu.Lock()
	delete(s.pendingCache, h)
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, a.Key()); err != nil {
		s.logger.Warn("failed to evict asset", zap.String("asset", a.RelativePath), zap.Error(err))
	}
	s.registry.SetCached(h, false)
	return true
}

// Resident returns the resident bytes of a cached asset
func (s *Service) Resident(ctx context.Context, h handle.Handle) ([]byte, error) {
	a, ok := s.registry.Get(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", asset.ErrNotFound, h)
	}
	return s.cache.Get(ctx, a.Key())
}

// makeResident loads the compiled output into the residency cache. Types
// that ignore compiled state have no output; their source is resident.
func (s *Service) makeResident(ctx context.Context, h handle.Handle) error {
	a, ok := s.registry.Get(h)
	if !ok {
		return fmt.Errorf("%w: %s", asset.ErrNotFound, h)
	}

	var data []byte
	var err error
	if a.Record != nil && a.Record.CompiledPath != "" {
		data, err = os.ReadFile(a.Record.CompiledPath)
		if err != nil {
			return fmt.Errorf("failed to read compiled output of %s: %w", a.RelativePath, err)
		}
	} else if data, err = s.registry.ReadSource(h); err != nil {
		return err
	}

	if err := s.cache.Set(ctx, a.Key(), data, 0); err != nil {
		return fmt.Errorf("failed to cache %s: %w", a.RelativePath, err)
	}
	s.registry.SetCached(h, true)
	return nil
}
