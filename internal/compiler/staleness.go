package compiler

import (
	"os"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/fingerprint"
	"github.com/conduit-lang/assetforge/internal/handle"
)

// IsCompiledAndUpToDate reports whether h has a compiled output that
// reflects its current source, inputs and upstream assets
func (o *Orchestrator) IsCompiledAndUpToDate(h handle.Handle) bool {
	a, ok := o.registry.Get(h)
	if !ok {
		return false
	}
	return o.upToDate(a, a.Key(), map[string]bool{a.Key(): true})
}

// NeedAnyDependencyUpdate reports whether any input of h, or any asset
// reachable from it over DependsOn and References edges, changed since h
// was last compiled
func (o *Orchestrator) NeedAnyDependencyUpdate(h handle.Handle) bool {
	a, ok := o.registry.Get(h)
	if !ok {
		return false
	}
	if a.Record == nil {
		return !o.ignoresCompiledState(a)
	}
	return o.dependenciesStale(a, a.Key(), map[string]bool{a.Key(): true})
}

func (o *Orchestrator) upToDate(a asset.Asset, root string, visited map[string]bool) bool {
	if o.ignoresCompiledState(a) {
		return true
	}
	if a.Record == nil {
		return false
	}
	if _, err := os.Stat(a.Record.CompiledPath); err != nil {
		return false
	}
	if o.sourceStale(a) || o.dependenciesStale(a, root, visited) {
		return false
	}

	// a sub-resource is only as fresh as the asset generating it
	if parentKey := a.Record.GeneratedBy; parentKey != "" && !visited[parentKey] {
		visited[parentKey] = true
		parent, ok := o.registry.GetByRelativePath(parentKey)
		if !ok || !o.upToDate(parent, root, visited) {
			return false
		}
	}
	return true
}

func (o *Orchestrator) ignoresCompiledState(a asset.Asset) bool {
	t, ok := o.registry.Types().ByHandle(a.Type)
	return ok && t.Has(asset.TypeIgnoreCompiledState)
}

// sourceStale compares the current source fingerprint with the record
func (o *Orchestrator) sourceStale(a asset.Asset) bool {
	if o.ignoresCompiledState(a) {
		return false
	}
	if a.Record == nil {
		return true
	}
	current, err := o.registry.SourceFingerprint(a.Handle)
	return err != nil || current != a.Record.SourceFingerprint
}

// dependenciesStale walks the inputs and upstream assets of a; visited
// holds the keys already on or done by the walk. Edges leading back to root
// are ignored so that reference cycles can settle.
func (o *Orchestrator) dependenciesStale(a asset.Asset, root string, visited map[string]bool) bool {
	rec := a.Record
	if rec == nil {
		return !o.ignoresCompiledState(a)
	}

	for path, recorded := range rec.Inputs {
		current, err := fingerprint.FileOrMissing(path)
		if err != nil || current != recorded {
			return true
		}
	}
	for _, p := range a.InputDependencies {
		if _, recorded := rec.Inputs[o.absPath(p)]; !recorded {
			return true
		}
	}

	for _, sp := range rec.Specials {
		resolve, ok := o.specialResolver(sp.Tag)
		if !ok {
			continue
		}
		current, err := resolve(sp.UserData)
		if err != nil || current != sp.Fingerprint {
			return true
		}
	}

	for key, stamp := range rec.DependencyStamps {
		if key == root {
			continue
		}
		dep, ok := o.registry.GetByRelativePath(key)
		if !ok {
			return true
		}
		var current uint64
		if dep.Record != nil {
			current = dep.Record.Stamp
		}
		if current != stamp {
			return true
		}
		if visited[key] {
			continue
		}
		visited[key] = true
		if o.sourceStale(dep) || o.dependenciesStale(dep, root, visited) {
			return true
		}
	}
	return false
}
