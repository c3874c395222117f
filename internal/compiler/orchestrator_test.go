package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/deps"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
)

type fixture struct {
	root  string
	reg   *asset.Registry
	graph *deps.Graph
	orch  *Orchestrator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(root, 0755))
	reg, err := asset.NewRegistry(root, filepath.Join(dir, "compiled"), nil, nil)
	require.NoError(t, err)

	if opts.Workers == 0 {
		opts.Workers = 2
	}
	g := deps.NewGraph()
	o := NewOrchestrator(reg, g, opts)
	t.Cleanup(o.Close)

	for _, typeID := range []string{"material", "model", "bundle", "texture"} {
		o.RegisterCompiler(typeID, lineCompiler())
	}
	return &fixture{root: root, reg: reg, graph: g, orch: o}
}

func (f *fixture) write(t *testing.T, rel, content string) handle.Handle {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	h, err := f.reg.Register(rel)
	require.NoError(t, err)
	return h
}

func (f *fixture) compile(t *testing.T, h handle.Handle) *Result {
	t.Helper()
	res, err := f.orch.RecompileAsset(context.Background(), h, false)
	require.NoError(t, err)
	require.True(t, res.Success)
	return res
}

// lineCompiler interprets its source one directive per line
func lineCompiler() Compiler {
	return Func("lines", func(_ context.Context, rc *ResourceContext) error {
		for _, line := range strings.Split(string(rc.Source()), "\n") {
			switch {
			case strings.HasPrefix(line, "ref:"):
				rc.RegisterReference(strings.TrimPrefix(line, "ref:"))
			case strings.HasPrefix(line, "input:"):
				if err := rc.RegisterInputFileDependency(strings.TrimPrefix(line, "input:"), 0); err != nil {
					return err
				}
			case strings.HasPrefix(line, "child:"):
				child, err := rc.CreateChildContext(strings.TrimPrefix(line, "child:"))
				if err != nil {
					return err
				}
				if err := child.WriteBlock("DATA", []byte(line)); err != nil {
					return err
				}
			case line == "fail":
				return errors.New("asked to fail")
			case line == "panic":
				panic("boom")
			}
		}
		return rc.WriteBlock("DATA", rc.Source())
	})
}

func TestOrchestrator_CompileWritesBlob(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "materials/wood.mat", "wood")

	res := f.compile(t, h)
	assert.Equal(t, "lines", res.Compiler)
	assert.Equal(t, 1, res.Blocks)
	assert.NotEmpty(t, res.JobID)

	a, ok := f.reg.Get(h)
	require.True(t, ok)
	assert.Equal(t, asset.Compiled, a.State)
	require.NotNil(t, a.Record)
	assert.Equal(t, f.reg.CompiledPath("materials/wood.mat"), a.Record.CompiledPath)

	data, err := os.ReadFile(a.Record.CompiledPath)
	require.NoError(t, err)
	blob, err := DecodeBlob(data)
	require.NoError(t, err)
	payload, ok := blob.Block("DATA")
	require.True(t, ok)
	assert.Equal(t, "wood", string(payload))

	assert.True(t, f.reg.HasCompiledFile(h))
	assert.True(t, f.orch.IsCompiledAndUpToDate(h))
	assert.Equal(t, 0, f.orch.LiveContexts())
}

func TestOrchestrator_CompileIfNeeded(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "a.mat", "v1")

	res, err := f.orch.CompileIfNeeded(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	res, err = f.orch.CompileIfNeeded(context.Background(), h)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	f.write(t, "a.mat", "v2")
	assert.False(t, f.orch.IsCompiledAndUpToDate(h))
	res, err = f.orch.CompileIfNeeded(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.True(t, f.orch.IsCompiledAndUpToDate(h))

	_, err = f.orch.CompileIfNeeded(context.Background(), handle.Handle{Index: 99, Generation: 1})
	assert.Equal(t, asset.ErrNotFound, err)
}

func TestOrchestrator_InMemoryReplacementIsCompiled(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "a.mat", "disk")
	f.compile(t, h)

	f.reg.SetInMemoryReplacement(h, []byte("memory"))
	assert.False(t, f.orch.IsCompiledAndUpToDate(h))

	f.compile(t, h)
	a, _ := f.reg.Get(h)
	data, err := os.ReadFile(a.Record.CompiledPath)
	require.NoError(t, err)
	blob, err := DecodeBlob(data)
	require.NoError(t, err)
	payload, _ := blob.Block("DATA")
	assert.Equal(t, "memory", string(payload))
	assert.True(t, f.orch.IsCompiledAndUpToDate(h))
}

func TestOrchestrator_FailureKeepsLastGoodState(t *testing.T) {
	f := newFixture(t, Options{})
	f.write(t, "b.png", "b")
	h := f.write(t, "a.mat", "ref:b.png")
	f.compile(t, h)
	before, _ := f.reg.Get(h)
	require.Equal(t, []string{"b.png"}, f.graph.References("a.mat", false))

	f.write(t, "a.mat", "ref:c.png\nfail")
	res, err := f.orch.RecompileAsset(context.Background(), h, false)

	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "a.mat", cerr.Path)
	assert.Equal(t, "asked to fail", cerr.Reason)
	require.NotNil(t, res)
	assert.False(t, res.Success)

	assert.True(t, f.reg.IsCompileFailed(h))
	assert.True(t, f.reg.IsCompiled(h), "previous record survives a failed compile")
	assert.Equal(t, "asked to fail", f.orch.CompileStateReason(h))
	assert.Equal(t, []string{"b.png"}, f.graph.References("a.mat", false), "failed compiles never touch edges")

	after, _ := f.reg.Get(h)
	assert.Equal(t, before.Record.Stamp, after.Record.Stamp)

	f.write(t, "a.mat", "ok")
	f.compile(t, h)
	assert.False(t, f.reg.IsCompileFailed(h))
	assert.Empty(t, f.orch.CompileStateReason(h))
	assert.Empty(t, f.graph.References("a.mat", false))
}

func TestOrchestrator_FailedForcedRecompileKeepsUpToDate(t *testing.T) {
	f := newFixture(t, Options{})

	var mu sync.Mutex
	broken := false
	f.orch.RegisterCompiler("material", Func("flaky", func(_ context.Context, rc *ResourceContext) error {
		mu.Lock()
		defer mu.Unlock()
		if broken {
			return errors.New("license server unreachable")
		}
		return rc.WriteBlock("DATA", rc.Source())
	}))

	f.write(t, "b.png", "b")
	h := f.write(t, "a.mat", "ref:b.png")
	f.compile(t, h)
	require.True(t, f.orch.IsCompiledAndUpToDate(h))
	edges := f.graph.Outgoing("a.mat")

	mu.Lock()
	broken = true
	mu.Unlock()

	_, err := f.orch.RecompileAsset(context.Background(), h, true)
	require.Error(t, err)

	assert.True(t, f.reg.IsCompileFailed(h))
	assert.Equal(t, "license server unreachable", f.orch.CompileStateReason(h))
	assert.True(t, f.orch.IsCompiledAndUpToDate(h), "the last good output still matches the source")
	assert.Equal(t, edges, f.graph.Outgoing("a.mat"))
}

func TestOrchestrator_FastFailuresAlwaysEndFailed(t *testing.T) {
	f := newFixture(t, Options{Workers: 4})
	h := f.write(t, "missing.mat", "fail")

	for i := 0; i < 2000; i++ {
		_, err := f.orch.RecompileAsset(context.Background(), h, false)
		require.Error(t, err)
		a, ok := f.reg.Get(h)
		require.True(t, ok)
		require.Equal(t, asset.Failed, a.State, "iteration %d", i)
	}
	assert.True(t, f.reg.IsCompileFailed(h))
}

func TestOrchestrator_UnregisteredDuringCompile(t *testing.T) {
	f := newFixture(t, Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	f.orch.RegisterCompiler("material", Func("gated", func(_ context.Context, rc *ResourceContext) error {
		rc.RegisterReference("b.png")
		close(started)
		<-release
		return rc.WriteBlock("DATA", rc.Source())
	}))

	f.write(t, "b.png", "b")
	h := f.write(t, "a.mat", "a")
	job, err := f.orch.Submit(h, false, "test")
	require.NoError(t, err)
	<-started

	require.True(t, f.reg.Unregister(h))
	f.graph.RemoveNode("a.mat")
	close(release)

	res, err := job.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, asset.ErrNotFound))
	assert.False(t, res.Success)
	assert.Empty(t, f.graph.Outgoing("a.mat"))
	assert.True(t, f.reg.FindByRelativePath("a.mat").IsNil())
	_, statErr := os.Stat(f.reg.CompiledPath("a.mat"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestOrchestrator_MissingCompiler(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "clip.wav", "riff")

	_, err := f.orch.RecompileAsset(context.Background(), h, false)
	require.Error(t, err)
	assert.Equal(t, `no compiler registered for type "sound"`, f.orch.CompileStateReason(h))
}

func TestOrchestrator_PanicBecomesFailure(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "a.mat", "panic")

	_, err := f.orch.RecompileAsset(context.Background(), h, false)
	require.Error(t, err)
	assert.Contains(t, f.orch.CompileStateReason(h), "compiler panicked: boom")

	// the pool survives the panic
	ok := f.write(t, "b.mat", "fine")
	f.compile(t, ok)
}

func TestOrchestrator_UpstreamChangesMakeDependentsStale(t *testing.T) {
	f := newFixture(t, Options{})
	c := f.write(t, "c.png", "c1")
	b := f.write(t, "b.mat", "ref:c.png")
	a := f.write(t, "a.mdl", "ref:b.mat")
	f.compile(t, c)
	f.compile(t, b)
	f.compile(t, a)

	assert.True(t, f.orch.IsCompiledAndUpToDate(a))
	assert.False(t, f.orch.NeedAnyDependencyUpdate(a))

	// two levels down, not yet recompiled
	f.write(t, "c.png", "c2")
	assert.True(t, f.orch.NeedAnyDependencyUpdate(a))
	assert.False(t, f.orch.IsCompiledAndUpToDate(a))

	f.compile(t, c)
	assert.True(t, f.orch.NeedAnyDependencyUpdate(b), "c has a new stamp")
	assert.True(t, f.orch.NeedAnyDependencyUpdate(a))

	f.compile(t, b)
	f.compile(t, a)
	assert.False(t, f.orch.NeedAnyDependencyUpdate(a))
	assert.True(t, f.orch.IsCompiledAndUpToDate(a))
}

func TestOrchestrator_ReferenceCyclesTerminate(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.write(t, "a.mat", "ref:b.mat")
	b := f.write(t, "b.mat", "ref:a.mat")
	f.compile(t, a)
	f.compile(t, b)
	f.compile(t, a)

	assert.False(t, f.orch.NeedAnyDependencyUpdate(a))
	assert.Equal(t, []string{"b.mat"}, f.graph.References("a.mat", true))
}

func TestOrchestrator_InputFileChangesMakeStale(t *testing.T) {
	f := newFixture(t, Options{})
	table := filepath.Join(f.root, "data", "table.cfg")
	require.NoError(t, os.MkdirAll(filepath.Dir(table), 0755))
	require.NoError(t, os.WriteFile(table, []byte("1"), 0644))
	h := f.write(t, "level.bundle", "input:data/table.cfg")
	f.compile(t, h)
	assert.True(t, f.orch.IsCompiledAndUpToDate(h))

	require.NoError(t, os.WriteFile(table, []byte("2"), 0644))
	assert.True(t, f.orch.NeedAnyDependencyUpdate(h))

	f.compile(t, h)
	assert.False(t, f.orch.NeedAnyDependencyUpdate(h))

	require.NoError(t, os.Remove(table))
	_, err := f.orch.RecompileAsset(context.Background(), h, false)
	assert.Error(t, err, "a required input that vanished fails the compile")
}

func TestOrchestrator_AdditionalInputDependency(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "a.mat", "a")
	extra := filepath.Join(f.root, "extra.cfg")
	require.NoError(t, os.WriteFile(extra, []byte("x"), 0644))
	f.compile(t, h)

	f.reg.AddInputDependency(h, "extra.cfg")
	assert.True(t, f.orch.NeedAnyDependencyUpdate(h), "a new input needs a compile to be recorded")

	f.compile(t, h)
	assert.False(t, f.orch.NeedAnyDependencyUpdate(h))

	require.NoError(t, os.WriteFile(extra, []byte("y"), 0644))
	assert.True(t, f.orch.NeedAnyDependencyUpdate(h))
}

func TestOrchestrator_SpecialDependencies(t *testing.T) {
	f := newFixture(t, Options{})

	var mu sync.Mutex
	setting := "linear"
	current := func() string {
		mu.Lock()
		defer mu.Unlock()
		return setting
	}

	f.orch.RegisterSpecialResolver("colorspace", func(userData string) (string, error) {
		return userData + "=" + current(), nil
	})
	f.orch.RegisterCompiler("texture", Func("tex", func(_ context.Context, rc *ResourceContext) error {
		if err := rc.RegisterSpecialDependency("colorspace", "albedo", "albedo="+current()); err != nil {
			return err
		}
		return rc.WriteBlock("DATA", rc.Source())
	}))

	h := f.write(t, "t.png", "px")
	f.compile(t, h)
	assert.False(t, f.orch.NeedAnyDependencyUpdate(h))

	mu.Lock()
	setting = "srgb"
	mu.Unlock()
	assert.True(t, f.orch.NeedAnyDependencyUpdate(h))

	f.compile(t, h)
	assert.False(t, f.orch.NeedAnyDependencyUpdate(h))
}

func TestOrchestrator_ChildResources(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "level.bundle", "child:level/a.bin\nchild:level/b.bin")

	res := f.compile(t, h)
	assert.Equal(t, []string{"level/a.bin", "level/b.bin"}, res.Children)
	assert.Empty(t, res.Reused)

	child := f.reg.FindByRelativePath("level/a.bin")
	require.False(t, child.IsNil())
	ca, _ := f.reg.Get(child)
	require.NotNil(t, ca.Record)
	assert.Equal(t, "level.bundle", ca.Record.GeneratedBy)
	assert.True(t, f.reg.HasCompiledFile(child))
	assert.True(t, f.orch.IsCompiledAndUpToDate(child))
	assert.Equal(t, []string{"level/a.bin", "level/b.bin"}, f.graph.Children("level.bundle", false))
	assert.Equal(t, []string{"level.bundle"}, f.graph.Parents("level/a.bin", false))

	// unchanged children keep their output and stamp
	res = f.compile(t, h)
	assert.Equal(t, []string{"level/a.bin", "level/b.bin"}, res.Reused)
	again, _ := f.reg.Get(child)
	assert.Equal(t, ca.Record.Stamp, again.Record.Stamp)

	res, err := f.orch.RecompileAsset(context.Background(), h, true)
	require.NoError(t, err)
	assert.Empty(t, res.Reused, "full compiles rewrite every child")

	// a child compile is routed to its parent
	job, err := f.orch.Submit(child, false, "test")
	require.NoError(t, err)
	assert.Equal(t, h, job.Handle)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)

	// dropped children are removed
	f.write(t, "level.bundle", "child:level/a.bin")
	f.compile(t, h)
	assert.True(t, f.reg.FindByRelativePath("level/b.bin").IsNil())
	_, err = os.Stat(f.reg.CompiledPath("level/b.bin"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{"level/a.bin"}, f.graph.Children("level.bundle", false))
}

func TestOrchestrator_ConcurrentRequestsJoin(t *testing.T) {
	f := newFixture(t, Options{Workers: 4})

	started := make(chan struct{})
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	f.orch.RegisterCompiler("material", Func("slow", func(_ context.Context, rc *ResourceContext) error {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
		}
		<-release
		return rc.WriteBlock("DATA", nil)
	}))

	h := f.write(t, "a.mat", "a")
	first, err := f.orch.Submit(h, false, "one")
	require.NoError(t, err)
	<-started

	a, _ := f.reg.Get(h)
	assert.Equal(t, asset.Compiling, a.State)

	second, err := f.orch.Submit(h, false, "two")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.True(t, f.orch.IsInFlight(h))

	close(release)
	r1, err := first.Wait(context.Background())
	require.NoError(t, err)
	r2, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, r1, r2)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	assert.False(t, f.orch.IsInFlight(h))
}

func TestOrchestrator_WaitHonoursContext(t *testing.T) {
	f := newFixture(t, Options{})
	release := make(chan struct{})
	defer close(release)
	f.orch.RegisterCompiler("material", Func("slow", func(_ context.Context, rc *ResourceContext) error {
		<-release
		return nil
	}))

	h := f.write(t, "a.mat", "a")
	job, err := f.orch.Submit(h, false, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = job.Wait(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)
	assert.Nil(t, job.Result())
}

func TestOrchestrator_OnDemandRecompile(t *testing.T) {
	f := newFixture(t, Options{})
	release := make(chan struct{})
	f.orch.RegisterCompiler("material", Func("gated", func(_ context.Context, rc *ResourceContext) error {
		<-release
		return rc.WriteBlock("DATA", rc.Source())
	}))

	h := f.write(t, "a.mat", "a")
	job, err := f.orch.Submit(h, false, "initial")
	require.NoError(t, err)

	assert.True(t, f.orch.OnDemandRecompile(h, "file changed"))
	assert.True(t, f.orch.OnDemandRecompile(h, "file changed again"))
	assert.Equal(t, 1, f.orch.PendingRecompiles())
	assert.Equal(t, 0, f.orch.Pump(), "in-flight assets stay pending")
	assert.Equal(t, 1, f.orch.PendingRecompiles())

	close(release)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.orch.Pump())
	assert.Equal(t, 0, f.orch.PendingRecompiles())

	var results []*Result
	require.Eventually(t, func() bool {
		results = append(results, f.orch.DrainCompleted()...)
		return len(results) == 2
	}, 5*time.Second, 10*time.Millisecond)
	for _, r := range results {
		assert.True(t, r.Success)
	}

	assert.False(t, f.orch.OnDemandRecompile(handle.Handle{Index: 42, Generation: 3}, "gone"))
}

type managedHost struct {
	host.Nop
	mu          sync.Mutex
	initialized []string
	recompiles  []string
}

func (m *managedHost) InitializeCompilerForFilename(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = append(m.initialized, filepath.Base(name))
}

func (m *managedHost) OnDemandRecompile(a asset.Asset, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recompiles = append(m.recompiles, a.RelativePath+": "+reason)
}

func (m *managedHost) TryManagedCompile(_ context.Context, req host.CompileRequest) (bool, error) {
	if req.Asset().TypeID != "sound" {
		return false, nil
	}
	rc := req.(*ResourceContext)
	rc.SetCompiler("host-audio")
	return true, rc.WriteBlock("SND", rc.Source())
}

func TestOrchestrator_ManagedCompileAndInitialization(t *testing.T) {
	mh := &managedHost{}
	f := newFixture(t, Options{Host: mh})

	snd := f.write(t, "clip.wav", "riff")
	res := f.compile(t, snd)
	assert.Equal(t, "host-audio", res.Compiler)

	mat := f.write(t, "a.mat", "a")
	f.compile(t, mat)
	f.compile(t, mat)
	f.orch.OnDemandRecompile(mat, "touched")

	mh.mu.Lock()
	defer mh.mu.Unlock()
	assert.Equal(t, []string{"clip.wav", "a.mat"}, mh.initialized, "initialization runs once per file")
	assert.Equal(t, []string{"a.mat: touched"}, mh.recompiles)
}

type failingStore struct {
	mu     sync.Mutex
	states []asset.CompileState
}

func (s *failingStore) SaveCommit(context.Context, *Commit) error {
	return errors.New("disk full")
}

func (s *failingStore) SaveState(_ context.Context, a asset.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, a.State)
	return nil
}

func TestOrchestrator_StoreFailureFailsCompile(t *testing.T) {
	store := &failingStore{}
	f := newFixture(t, Options{Store: store})
	f.write(t, "b.png", "b")
	h := f.write(t, "a.mat", "ref:b.png")

	_, err := f.orch.RecompileAsset(context.Background(), h, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.False(t, f.reg.IsCompiled(h))
	assert.Empty(t, f.graph.References("a.mat", false))
	assert.False(t, f.reg.HasCompiledFile(h), "staged output is discarded")

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, []asset.CompileState{asset.Failed}, store.states)
}

func TestOrchestrator_CompileMany(t *testing.T) {
	f := newFixture(t, Options{})
	var handles []handle.Handle
	handles = append(handles, f.write(t, "a.mat", "ref:b.png"))
	handles = append(handles, f.write(t, "b.png", "b"))
	handles = append(handles, f.write(t, "c.mat", "fail"))

	results, err := f.orch.CompileMany(context.Background(), handles, false, false)
	require.NoError(t, err)
	require.Len(t, results, 3)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			assert.Equal(t, "c.mat", r.RelativePath)
		}
	}
	assert.Equal(t, 1, failed)

	// the first batch had no edges to order by; the second settles a.mat
	_, err = f.orch.CompileMany(context.Background(), handles[:2], false, false)
	require.NoError(t, err)
	results, err = f.orch.CompileMany(context.Background(), handles[:2], false, false)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Skipped, "%s should be up to date", r.RelativePath)
	}
}

func TestOrchestrator_ClosedRejectsWork(t *testing.T) {
	f := newFixture(t, Options{})
	h := f.write(t, "a.mat", "a")
	f.orch.Close()

	_, err := f.orch.Submit(h, false, "late")
	assert.Equal(t, ErrClosed, err)
	assert.False(t, f.orch.OnDemandRecompile(h, "late"))
}
