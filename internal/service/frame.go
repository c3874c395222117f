package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/watch"
)

// FrameStats summarizes one RunFrame
type FrameStats struct {
	WatchEvents int `json:"watch_events"`
	Registered  int `json:"registered"`
	Removed     int `json:"removed"`
	Requested   int `json:"requested"`
	Submitted   int `json:"submitted"`
	Completed   int `json:"completed"`
	Cached      int `json:"cached"`
}

// RunFrame advances asynchronous work without waiting on it. It applies
// debounced file changes, delivers finished compiles, requests recompiles of
// loaded dependents, schedules queued recompiles and makes finished
// non-blocking caches resident. The host calls it periodically.
func (s *Service) RunFrame() FrameStats {
	ctx := context.Background()
	var stats FrameStats

	for _, ev := range s.queue.Drain() {
		stats.WatchEvents++
		s.applyWatchEvent(ctx, ev, &stats)
	}

	for _, res := range s.orch.DrainCompleted() {
		stats.Completed++
		s.bus.Publish(Event{Type: EventCompileFinished, Result: res})
		if !res.Success || res.Skipped {
			continue
		}
		if s.registry.IsCached(res.Handle) {
			if err := s.makeResident(ctx, res.Handle); err != nil {
				s.logger.Warn("failed to refresh resident asset", zap.String("asset", res.RelativePath), zap.Error(err))
			}
		}
		stats.Requested += s.requestDependents(res.RelativePath)
	}

	stats.Submitted = s.orch.Pump()
	stats.Cached = s.finishPendingCaches(ctx)
	return stats
}

func (s *Service) applyWatchEvent(ctx context.Context, ev watch.Event, stats *FrameStats) {
	h := s.registry.FindByFilename(ev.Path)

	if ev.Op == watch.Removed {
		if !h.IsNil() && s.Unregister(ctx, h) {
			stats.Removed++
		}
		stats.Requested += s.requestInputUsers(ev.Path)
		return
	}

	if h.IsNil() {
		if _, typed := s.types.ForExtension(ev.Path); typed {
			var err error
			if h, err = s.registry.Register(ev.Path); err != nil {
				s.logger.Warn("failed to register new file", zap.String("path", ev.Path), zap.Error(err))
				return
			}
			stats.Registered++
		}
	}

	if !h.IsNil() && s.loaded(h) && s.orch.OnDemandRecompile(h, "source changed") {
		stats.Requested++
	}
	stats.Requested += s.requestInputUsers(ev.Path)
}

// loaded reports whether h has been compiled or cached, i.e. whether anyone
// cares about keeping it current
func (s *Service) loaded(h handle.Handle) bool {
	a, ok := s.registry.Get(h)
	return ok && (a.Cached || a.Record != nil)
}

// requestInputUsers requests recompiles of assets that consumed path as an
// input file
func (s *Service) requestInputUsers(path string) int {
	n := 0
	for _, a := range s.registry.All() {
		if a.Record == nil {
			continue
		}
		if _, used := a.Record.Inputs[path]; used && s.orch.OnDemandRecompile(a.Handle, "input changed") {
			n++
		}
	}
	return n
}

// requestDependents requests recompiles of loaded direct dependents and
// referencers that are now stale. Dependents that are also upstream of key
// sit on a cycle with it and are left alone.
func (s *Service) requestDependents(rel string) int {
	key := asset.Key(rel)
	upstream := make(map[string]bool)
	for _, k := range s.graph.Upstream(key) {
		upstream[k] = true
	}

	n := 0
	seen := make(map[string]bool)
	for _, k := range append(s.graph.Dependents(key, false), s.graph.Referencers(key, false)...) {
		if seen[k] || upstream[k] {
			continue
		}
		seen[k] = true
		h := s.registry.FindByRelativePath(k)
		if h.IsNil() || !s.loaded(h) || !s.orch.NeedAnyDependencyUpdate(h) {
			continue
		}
		if s.orch.OnDemandRecompile(h, "dependency recompiled") {
			n++
		}
	}
	return n
}

func (s *Service) finishPendingCaches(ctx context.Context) int {
	s.mu.Lock()
	var done []handle.Handle
	for h, job := range s.pendingCache {
		select {
		case <-job.Done():
			done = append(done, h)
		default:
		}
	}
	jobs := make(map[handle.Handle]bool, len(done))
	for _, h := range done {
		jobs[h] = s.pendingCache[h].Result().Success
		delete(s.pendingCache, h)
	}
	s.mu.Unlock()

	n := 0
	for _, h := range done {
		if !jobs[h] {
			continue
		}
		if err := s.makeResident(ctx, h); err != nil {
			s.logger.Warn("failed to make asset resident", zap.String("handle", h.String()), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// PendingCaches returns the number of non-blocking caches still compiling
func (s *Service) PendingCaches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingCache)
}
