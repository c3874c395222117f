package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conduit-lang/assetforge/internal/fingerprint"
	"github.com/conduit-lang/assetforge/internal/handle"
)

// CompiledSuffix is appended to a relative path to name its compiled output
const CompiledSuffix = "_c"

type entry struct {
	asset       Asset
	replacement []byte
}

// Registry owns the set of known assets. Reads may run concurrently; every
// mutation takes the write lock and emits its notification after unlocking.
type Registry struct {
	contentRoot  string
	compiledRoot string
	types        *TypeRegistry
	table        *handle.Table[*entry]
	byKey        map[string]handle.Handle
	listener     Listener
	stamp        uint64
	mu           sync.RWMutex
}

// NewRegistry creates a registry rooted at contentRoot. Compiled outputs live
// under compiledRoot. listener may be nil.
func NewRegistry(contentRoot, compiledRoot string, types *TypeRegistry, listener Listener) (*Registry, error) {
	absContent, err := filepath.Abs(contentRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve content root: %w", err)
	}
	absCompiled, err := filepath.Abs(compiledRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve compiled root: %w", err)
	}
	if types == nil {
		types = NewDefaultTypeRegistry()
	}
	if listener == nil {
		listener = ListenerFuncs{}
	}

	return &Registry{
		contentRoot:  absContent,
		compiledRoot: absCompiled,
		types:        types,
		table:        handle.NewTable[*entry](),
		byKey:        make(map[string]handle.Handle),
		listener:     listener,
	}, nil
}

// Key normalizes a relative path into a registry key
func Key(rel string) string {
	return strings.ToLower(filepath.ToSlash(rel))
}

// ContentRoot returns the absolute content root
func (r *Registry) ContentRoot() string { return r.contentRoot }

// CompiledRoot returns the absolute compiled output root
func (r *Registry) CompiledRoot() string { return r.compiledRoot }

// Types returns the type registry
func (r *Registry) Types() *TypeRegistry { return r.types }

// CompiledPath returns the compiled output path of a relative path
func (r *Registry) CompiledPath(rel string) string {
	return filepath.Join(r.compiledRoot, filepath.FromSlash(rel)+CompiledSuffix)
}

// Normalize converts an absolute path inside the content root, or a path
// relative to it, into a slash separated relative path and an absolute path.
func (r *Registry) Normalize(path string) (rel, abs string, err error) {
	if path == "" {
		return "", "", fmt.Errorf("empty asset path")
	}

	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
		rel, err = filepath.Rel(r.contentRoot, abs)
		if err != nil {
			return "", "", fmt.Errorf("path %s is not inside content root: %w", path, err)
		}
	} else {
		rel = filepath.Clean(filepath.FromSlash(path))
		abs = filepath.Join(r.contentRoot, rel)
	}

	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("path %s is outside content root %s", path, r.contentRoot)
	}

	return filepath.ToSlash(rel), abs, nil
}

// Register records path as an asset. Registering a known path returns the
// existing handle.
func (r *Registry) Register(path string) (handle.Handle, error) {
	rel, abs, err := r.Normalize(path)
	if err != nil {
		return handle.Nil, err
	}

	r.mu.Lock()
	if h, ok := r.byKey[Key(rel)]; ok {
		r.mu.Unlock()
		return h, nil
	}

	a := Asset{
		RelativePath: rel,
		AbsolutePath: abs,
		Name:         friendlyName(rel),
		State:        NeverCompiled,
	}
	if t, ok := r.types.ForExtension(rel); ok {
		a.Type = t.Handle
		a.TypeID = t.ID
	}

	h := r.table.Insert(&entry{asset: a})
	e, _ := r.table.Get(h)
	e.asset.Handle = h
	r.byKey[Key(rel)] = h
	snapshot := e.asset.clone()
	r.mu.Unlock()

	r.listener.AssetAdded(snapshot)
	return h, nil
}

// Unregister removes an asset. Its handle becomes stale.
func (r *Registry) Unregister(h handle.Handle) bool {
	r.mu.Lock()
	e, ok := r.table.Remove(h)
	if !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.byKey, e.asset.Key())
	snapshot := e.asset.clone()
	r.mu.Unlock()

	r.listener.AssetRemoved(snapshot)
	return true
}

// Get returns a snapshot of the asset behind h
func (r *Registry) Get(h handle.Handle) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.table.Get(h)
	if !ok {
		return Asset{}, false
	}
	return e.asset.clone(), true
}

// Contains reports whether h refers to a registered asset
func (r *Registry) Contains(h handle.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Contains(h)
}

// FindByRelativePath returns the handle registered for rel, or handle.Nil
func (r *Registry) FindByRelativePath(rel string) handle.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.byKey[Key(strings.TrimPrefix(filepath.ToSlash(rel), "./"))]; ok {
		return h
	}
	return handle.Nil
}

// FindByFilename resolves an absolute or content-relative file name, or handle.Nil
func (r *Registry) FindByFilename(name string) handle.Handle {
	rel, _, err := r.Normalize(name)
	if err != nil {
		return handle.Nil
	}
	return r.FindByRelativePath(rel)
}

// GetByRelativePath is FindByRelativePath followed by Get
func (r *Registry) GetByRelativePath(rel string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.byKey[Key(rel)]
	if !ok {
		return Asset{}, false
	}
	e, ok := r.table.Get(h)
	if !ok {
		return Asset{}, false
	}
	return e.asset.clone(), true
}

// RecordOpen records a usage of the asset
func (r *Registry) RecordOpen(h handle.Handle) bool {
	return r.update(h, func(a *Asset) bool {
		a.OpenCount++
		a.LastOpened = time.Now()
		return true
	})
}

// RecordOpenByFilename records a usage by file name, registering the file on
// first open
func (r *Registry) RecordOpenByFilename(name string) (handle.Handle, error) {
	h, err := r.Register(name)
	if err != nil {
		return handle.Nil, err
	}
	r.RecordOpen(h)
	return h, nil
}

// SetCached marks whether the compiled output is resident
func (r *Registry) SetCached(h handle.Handle, cached bool) bool {
	return r.update(h, func(a *Asset) bool {
		if a.Cached == cached {
			return false
		}
		a.Cached = cached
		return true
	})
}

// IsCached reports whether the compiled output is resident
func (r *Registry) IsCached(h handle.Handle) bool {
	a, ok := r.Get(h)
	return ok && a.Cached
}

// HasSourceFile reports whether the source file exists on disk
func (r *Registry) HasSourceFile(h handle.Handle) bool {
	a, ok := r.Get(h)
	if !ok {
		return false
	}
	info, err := os.Stat(a.AbsolutePath)
	return err == nil && !info.IsDir()
}

// HasCompiledFile reports whether the compiled output exists on disk
func (r *Registry) HasCompiledFile(h handle.Handle) bool {
	a, ok := r.Get(h)
	if !ok {
		return false
	}
	path := r.CompiledPath(a.RelativePath)
	if a.Record != nil && a.Record.CompiledPath != "" {
		path = a.Record.CompiledPath
	}
	_, err := os.Stat(path)
	return err == nil
}

// IsCompiled reports whether the asset has a successful compile on record
func (r *Registry) IsCompiled(h handle.Handle) bool {
	a, ok := r.Get(h)
	return ok && a.Record != nil
}

// IsCompileFailed reports whether the most recent compile failed
func (r *Registry) IsCompileFailed(h handle.Handle) bool {
	a, ok := r.Get(h)
	return ok && a.State == Failed
}

// CompileStateReason returns the failure reason of the most recent compile
func (r *Registry) CompileStateReason(h handle.Handle) string {
	a, ok := r.Get(h)
	if !ok {
		return ""
	}
	return a.FailureReason
}

// SetCompiling moves the asset into the Compiling state
func (r *Registry) SetCompiling(h handle.Handle) bool {
	return r.update(h, func(a *Asset) bool {
		a.State = Compiling
		return true
	})
}

// MarkFailed records a failed compile. The last successful record is kept.
func (r *Registry) MarkFailed(h handle.Handle, reason string) bool {
	if reason == "" {
		reason = "compile failed"
	}
	return r.update(h, func(a *Asset) bool {
		a.State = Failed
		a.FailureReason = reason
		return true
	})
}

// NextStamp reserves the next compile stamp
func (r *Registry) NextStamp() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stamp++
	return r.stamp
}

// CommitCompile stores a successful compile record and clears any failure
func (r *Registry) CommitCompile(h handle.Handle, rec *CompileRecord) bool {
	rec = rec.Clone()
	return r.update(h, func(a *Asset) bool {
		a.State = Compiled
		a.FailureReason = ""
		a.Record = rec
		return true
	})
}

// Restore reapplies persisted state to an asset, registering it if needed
func (r *Registry) Restore(rel string, state CompileState, reason string, rec *CompileRecord, openCount int, lastOpened time.Time) (handle.Handle, error) {
	h, err := r.Register(rel)
	if err != nil {
		return handle.Nil, err
	}

	r.mu.Lock()
	if rec != nil && rec.Stamp > r.stamp {
		r.stamp = rec.Stamp
	}
	r.mu.Unlock()

	// an interrupted compile never finished
	if state == Compiling {
		state = NeverCompiled
		if rec != nil {
			state = Compiled
		}
	}

	rec = rec.Clone()
	r.update(h, func(a *Asset) bool {
		a.State = state
		a.FailureReason = reason
		a.Record = rec
		a.OpenCount = openCount
		a.LastOpened = lastOpened
		return true
	})
	return h, nil
}

// SetInMemoryReplacement overrides the on-disk source with data until discarded
func (r *Registry) SetInMemoryReplacement(h handle.Handle, data []byte) bool {
	r.mu.Lock()
	e, ok := r.table.Get(h)
	if !ok {
		r.mu.Unlock()
		return false
	}
	e.replacement = append([]byte{}, data...)
	e.asset.HasReplacement = true
	snapshot := e.asset.clone()
	r.mu.Unlock()

	r.listener.AssetChanged(snapshot)
	return true
}

// DiscardInMemoryReplacement drops a replacement payload
func (r *Registry) DiscardInMemoryReplacement(h handle.Handle) bool {
	r.mu.Lock()
	e, ok := r.table.Get(h)
	if !ok || !e.asset.HasReplacement {
		r.mu.Unlock()
		return false
	}
	e.replacement = nil
	e.asset.HasReplacement = false
	snapshot := e.asset.clone()
	r.mu.Unlock()

	r.listener.AssetChanged(snapshot)
	return true
}

// ReadSource returns the in-memory replacement if present, else the file
func (r *Registry) ReadSource(h handle.Handle) ([]byte, error) {
	r.mu.RLock()
	e, ok := r.table.Get(h)
	if !ok {
		r.mu.RUnlock()
		return nil, ErrNotFound
	}
	if e.asset.HasReplacement {
		data := append([]byte{}, e.replacement...)
		r.mu.RUnlock()
		return data, nil
	}
	path := e.asset.AbsolutePath
	r.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source %s: %w", path, err)
	}
	return data, nil
}

// SourceFingerprint fingerprints the current source. A missing source file
// yields fingerprint.Missing.
func (r *Registry) SourceFingerprint(h handle.Handle) (string, error) {
	r.mu.RLock()
	e, ok := r.table.Get(h)
	if !ok {
		r.mu.RUnlock()
		return "", ErrNotFound
	}
	if e.asset.HasReplacement {
		fp := fingerprint.Bytes(e.replacement)
		r.mu.RUnlock()
		return fp, nil
	}
	path := e.asset.AbsolutePath
	r.mu.RUnlock()

	return fingerprint.FileOrMissing(path)
}

// AddRelatedFile attaches an additional related file to the asset
func (r *Registry) AddRelatedFile(h handle.Handle, path string) bool {
	return r.update(h, func(a *Asset) bool {
		if containsString(a.RelatedFiles, path) {
			return false
		}
		a.RelatedFiles = append(a.RelatedFiles, path)
		return true
	})
}

// AddInputDependency attaches an additional input dependency to the asset.
// These are checked for staleness next to the compile-declared inputs.
func (r *Registry) AddInputDependency(h handle.Handle, path string) bool {
	return r.update(h, func(a *Asset) bool {
		if containsString(a.InputDependencies, path) {
			return false
		}
		a.InputDependencies = append(a.InputDependencies, path)
		return true
	})
}

// All returns snapshots of every asset ordered by relative path
func (r *Registry) All() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Asset, 0, r.table.Len())
	r.table.Each(func(_ handle.Handle, e *entry) bool {
		result = append(result, e.asset.clone())
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].RelativePath < result[j].RelativePath })
	return result
}

// Len returns the number of registered assets
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Len()
}

// update applies fn under the write lock and emits AssetChanged when fn
// reports a change
func (r *Registry) update(h handle.Handle, fn func(a *Asset) bool) bool {
	r.mu.Lock()
	e, ok := r.table.Get(h)
	if !ok {
		r.mu.Unlock()
		return false
	}
	changed := fn(&e.asset)
	snapshot := e.asset.clone()
	r.mu.Unlock()

	if changed {
		r.listener.AssetChanged(snapshot)
	}
	return true
}

func friendlyName(rel string) string {
	base := filepath.Base(filepath.FromSlash(rel))
	if ext := filepath.Ext(base); ext != "" {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
