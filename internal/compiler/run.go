package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/deps"
	"github.com/conduit-lang/assetforge/internal/fingerprint"
)

// stagedOutput is a compiled resource written to a temp file and waiting
// for the commit
type stagedOutput struct {
	rc          *ResourceContext
	name        string
	path        string
	tmp         string
	fingerprint string
	reused      bool
	blocks      int
}

func (o *Orchestrator) run(job *Job) *Result {
	start := time.Now()
	res := &Result{JobID: job.ID, Handle: job.Handle}

	a, ok := o.registry.Get(job.Handle)
	if !ok {
		res.Err = newCompileError(job.Handle.String(), asset.ErrNotFound)
		res.Reason = asset.ErrNotFound.Error()
		res.Duration = time.Since(start)
		return res
	}
	res.RelativePath = a.RelativePath
	logger := o.logger.With(zap.String("asset", a.RelativePath), zap.String("job", job.ID))

	err := o.compile(job, a, res)
	res.Duration = time.Since(start)
	if err != nil {
		cerr := newCompileError(a.RelativePath, err)
		res.Err = cerr
		res.Reason = cerr.Reason
		o.registry.MarkFailed(job.Handle, cerr.Reason)
		if o.store != nil {
			if failed, ok := o.registry.Get(job.Handle); ok {
				if err := o.store.SaveState(context.Background(), failed); err != nil {
					logger.Warn("failed to persist compile failure", zap.Error(err))
				}
			}
		}
		logger.Warn("compile failed", zap.String("reason", cerr.Reason), zap.Duration("duration", res.Duration))
		return res
	}

	res.Success = true
	logger.Debug("compiled",
		zap.String("compiler", res.Compiler),
		zap.Int("blocks", res.Blocks),
		zap.Int("children", len(res.Children)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (o *Orchestrator) compile(job *Job, a asset.Asset, res *Result) error {
	o.initialize(a)

	source, err := o.registry.ReadSource(job.Handle)
	if err != nil {
		return err
	}

	rc := newRootContext(o.contexts, o.registry, a, source, job.Full)
	defer rc.close()

	if err := o.invoke(rc); err != nil {
		return err
	}

	outputs, err := o.stage(job, a, rc)
	defer discard(outputs)
	if err != nil {
		return err
	}

	commit := o.buildCommit(a, rc, fingerprint.Bytes(source), outputs)

	// an asset unregistered mid-compile must not come back through its commit
	if !o.registry.Contains(job.Handle) {
		return asset.ErrNotFound
	}
	if o.store != nil {
		if err := o.store.SaveCommit(context.Background(), commit); err != nil {
			return fmt.Errorf("failed to persist compile: %w", err)
		}
	}
	if err := promote(outputs); err != nil {
		return err
	}
	o.apply(commit)

	res.Compiler = commit.Record.Compiler
	res.Blocks = outputs[0].blocks
	res.References = rc.References()
	res.Unresolved = rc.UnresolvedReferences()
	for _, out := range outputs[1:] {
		res.Children = append(res.Children, out.name)
		if out.reused {
			res.Reused = append(res.Reused, out.name)
		}
	}
	return nil
}

// invoke gives the host the first chance, then runs the registered compiler.
// Panics become compile failures.
func (o *Orchestrator) invoke(rc *ResourceContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compiler panicked: %v", r)
		}
	}()

	// compiles run to completion regardless of who asked for them
	ctx := context.Background()

	handled, err := o.host.TryManagedCompile(ctx, rc)
	if err != nil {
		return fmt.Errorf("managed compile failed: %w", err)
	}
	if handled {
		if rc.Compiler() == "" {
			rc.SetCompiler("managed")
		}
		return nil
	}

	typeID := rc.Asset().TypeID
	c, ok := o.CompilerFor(typeID)
	if !ok {
		return fmt.Errorf("no compiler registered for type %q", typeID)
	}
	if rc.Compiler() == "" {
		rc.SetCompiler(c.Name())
	}
	return c.Compile(ctx, rc)
}

// stage writes every resource of the compile to a temp file. Unchanged
// child resources are reused unless the job is full.
func (o *Orchestrator) stage(job *Job, a asset.Asset, rc *ResourceContext) ([]*stagedOutput, error) {
	contexts := append([]*ResourceContext{rc}, rc.Descendants()...)
	outputs := make([]*stagedOutput, 0, len(contexts))

	for i, c := range contexts {
		data := c.Bytes()
		out := &stagedOutput{
			rc:          c,
			name:        c.ResourceName(),
			path:        o.registry.CompiledPath(c.ResourceName()),
			fingerprint: fingerprint.Bytes(data),
			blocks:      len(c.Blocks()),
		}
		outputs = append(outputs, out)

		if i > 0 && !job.Full && o.childUnchanged(out) {
			out.reused = true
			continue
		}

		if err := os.MkdirAll(filepath.Dir(out.path), 0755); err != nil {
			return outputs, fmt.Errorf("failed to create output directory: %w", err)
		}
		out.tmp = out.path + ".tmp-" + job.ID
		if err := os.WriteFile(out.tmp, data, 0644); err != nil {
			return outputs, fmt.Errorf("failed to write compiled resource %s: %w", out.name, err)
		}
	}
	return outputs, nil
}

func (o *Orchestrator) childUnchanged(out *stagedOutput) bool {
	prev, ok := o.registry.GetByRelativePath(out.name)
	if !ok || prev.Record == nil || prev.Record.OutputFingerprint != out.fingerprint {
		return false
	}
	_, err := os.Stat(out.path)
	return err == nil
}

// promote renames staged temp files onto their final paths
func promote(outputs []*stagedOutput) error {
	for _, out := range outputs {
		if out.tmp == "" {
			continue
		}
		if err := os.Rename(out.tmp, out.path); err != nil {
			return fmt.Errorf("failed to commit compiled resource %s: %w", out.name, err)
		}
		out.tmp = ""
	}
	return nil
}

// discard removes temp files that were never promoted
func discard(outputs []*stagedOutput) {
	for _, out := range outputs {
		if out.tmp != "" {
			os.Remove(out.tmp)
		}
	}
}

func (o *Orchestrator) buildCommit(a asset.Asset, rc *ResourceContext, sourceFP string, outputs []*stagedOutput) *Commit {
	key := a.Key()
	stamp := o.registry.NextStamp()
	now := time.Now()

	var edges []deps.Edge
	seen := make(map[string]bool)
	addEdge := func(to string, kind deps.Kind) {
		id := kind.String() + "\x00" + to
		if to == key || seen[id] {
			return
		}
		seen[id] = true
		edges = append(edges, deps.Edge{From: key, To: to, Kind: kind})
	}

	for _, ref := range rc.References() {
		addEdge(ref, deps.References)
	}
	inputs := make(map[string]string)
	for _, in := range rc.InputDependencies() {
		inputs[in.Path] = in.Fingerprint
		if in.Key != "" {
			addEdge(in.Key, deps.DependsOn)
		}
	}
	for _, p := range a.InputDependencies {
		abs := o.absPath(p)
		if _, declared := inputs[abs]; declared {
			continue
		}
		if fp, err := fingerprint.FileOrMissing(abs); err == nil {
			inputs[abs] = fp
		}
	}
	for _, out := range outputs[1:] {
		addEdge(asset.Key(out.name), deps.ParentOf)
	}

	depStamps := make(map[string]uint64)
	for _, e := range edges {
		if e.Kind == deps.ParentOf {
			continue
		}
		var s uint64
		if dep, ok := o.registry.GetByRelativePath(e.To); ok && dep.Record != nil {
			s = dep.Record.Stamp
		}
		depStamps[e.To] = s
	}

	root := outputs[0]
	rec := &asset.CompileRecord{
		Stamp:             stamp,
		SourceFingerprint: sourceFP,
		Inputs:            inputs,
		Specials:          rc.SpecialDependencies(),
		DependencyStamps:  depStamps,
		CompiledPath:      root.path,
		OutputFingerprint: root.fingerprint,
		ResourceVersion:   rc.ResourceVersion(),
		Compiler:          rc.Compiler(),
		Extension:         rc.Extension(),
		CompiledAt:        now,
	}

	commit := &Commit{Record: rec, Edges: edges}

	produced := make(map[string]bool)
	for _, out := range outputs[1:] {
		rec.Children = append(rec.Children, out.name)
		produced[asset.Key(out.name)] = true
		if out.reused {
			continue
		}
		commit.Children = append(commit.Children, ChildCommit{
			RelativePath: out.name,
			Record:       &asset.CompileRecord{
				Stamp:             stamp,
				SourceFingerprint: fingerprint.Missing,
				CompiledPath:      out.path,
				OutputFingerprint: out.fingerprint,
				ResourceVersion:   out.rc.ResourceVersion(),
				Compiler:          rec.Compiler,
				Extension:         out.rc.Extension(),
				GeneratedBy:       key,
				CompiledAt:        now,
			},
		})
	}
	if a.Record != nil {
		for _, prev := range a.Record.Children {
			if !produced[asset.Key(prev)] {
				commit.Removed = append(commit.Removed, prev)
			}
		}
	}

	committed := a
	committed.State = asset.Compiled
	committed.FailureReason = ""
	committed.Record = rec
	commit.Asset = committed
	return commit
}

// apply flushes a persisted commit into the registry and graph
func (o *Orchestrator) apply(c *Commit) {
	key := c.Asset.Key()
	if err := o.graph.ReplaceOutgoing(key, c.Edges); err != nil {
		// edges are built with From == key, so this cannot happen
		o.logger.Error("failed to replace edges", zap.String("asset", key), zap.Error(err))
	}

	for _, child := range c.Children {
		h, err := o.registry.Register(child.RelativePath)
		if err != nil {
			o.logger.Warn("failed to register child resource", zap.String("child", child.RelativePath), zap.Error(err))
			continue
		}
		o.registry.CommitCompile(h, child.Record)
	}

	for _, rel := range c.Removed {
		if h := o.registry.FindByRelativePath(rel); !h.IsNil() {
			o.registry.Unregister(h)
		}
		o.graph.RemoveNode(asset.Key(rel))
		if err := os.Remove(o.registry.CompiledPath(rel)); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.logger.Warn("failed to remove stale child output", zap.String("child", rel), zap.Error(err))
		}
	}

	o.registry.CommitCompile(c.Asset.Handle, c.Record)
}

func (o *Orchestrator) absPath(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(o.registry.ContentRoot(), filepath.FromSlash(p))
}
