// Package compiler runs asset compiles: it owns the compile state machine,
// the worker pool, the per-compile resource contexts and the staleness rules.
package compiler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/deps"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
)

// maxCompleted bounds the completed-result backlog between pumps
const maxCompleted = 1024

// Compiler turns one asset into compiled blocks
type Compiler interface {
	Name() string
	Compile(ctx context.Context, rc *ResourceContext) error
}

type funcCompiler struct {
	name string
	fn   func(ctx context.Context, rc *ResourceContext) error
}

func (f funcCompiler) Name() string { return f.name }

func (f funcCompiler) Compile(ctx context.Context, rc *ResourceContext) error {
	return f.fn(ctx, rc)
}

// Func adapts a function to the Compiler interface
func Func(name string, fn func(ctx context.Context, rc *ResourceContext) error) Compiler {
	return funcCompiler{name: name, fn: fn}
}

// SpecialResolver returns the current fingerprint of a special dependency
type SpecialResolver func(userData string) (string, error)

// Options configures an Orchestrator
type Options struct {
	Host    host.Host
	Store   Store
	Logger  *zap.Logger
	Workers int
}

type pendingRecompile struct {
	handle handle.Handle
	reason string
}

// Orchestrator schedules compiles onto a worker pool. Compiles of one asset
// never overlap: a request for an asset already queued or running joins
// that job.
type Orchestrator struct {
	registry *asset.Registry
	graph    *deps.Graph
	host     host.Host
	store    Store
	logger   *zap.Logger
	contexts *contextTable

	compilers map[string]Compiler
	specials  map[string]SpecialResolver
	regMu     sync.RWMutex

	queue       []*Job
	inflight    map[handle.Handle]*Job
	pending     []pendingRecompile
	completed   []*Result
	initialized map[string]bool
	closed      bool
	mu          sync.Mutex
	cond        *sync.Cond
	wg          sync.WaitGroup
}

// NewOrchestrator creates an orchestrator and starts its workers
func NewOrchestrator(registry *asset.Registry, graph *deps.Graph, opts Options) *Orchestrator {
	if opts.Host == nil {
		opts.Host = host.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	o := &Orchestrator{
		registry:    registry,
		graph:       graph,
		host:        opts.Host,
		store:       opts.Store,
		logger:      opts.Logger,
		contexts:    newContextTable(),
		compilers:   make(map[string]Compiler),
		specials:    make(map[string]SpecialResolver),
		inflight:    make(map[handle.Handle]*Job),
		initialized: make(map[string]bool),
	}
	o.cond = sync.NewCond(&o.mu)

	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}
	return o
}

// RegisterCompiler binds a compiler to an asset type id
func (o *Orchestrator) RegisterCompiler(typeID string, c Compiler) {
	o.regMu.Lock()
	defer o.regMu.Unlock()
	o.compilers[typeID] = c
}

// CompilerFor returns the compiler bound to a type id
func (o *Orchestrator) CompilerFor(typeID string) (Compiler, bool) {
	o.regMu.RLock()
	defer o.regMu.RUnlock()
	c, ok := o.compilers[typeID]
	return c, ok
}

// RegisterSpecialResolver binds a resolver to a special dependency tag
func (o *Orchestrator) RegisterSpecialResolver(tag string, r SpecialResolver) {
	o.regMu.Lock()
	defer o.regMu.Unlock()
	o.specials[tag] = r
}

func (o *Orchestrator) specialResolver(tag string) (SpecialResolver, bool) {
	o.regMu.RLock()
	defer o.regMu.RUnlock()
	r, ok := o.specials[tag]
	return r, ok
}

// LookupContext resolves a live compiler context by handle
func (o *Orchestrator) LookupContext(h handle.Handle) (*ResourceContext, bool) {
	return o.contexts.get(h)
}

// LiveContexts returns the number of open compiler contexts
func (o *Orchestrator) LiveContexts() int {
	return o.contexts.len()
}

// Submit queues a compile of h and returns its job. Sub-resources are
// compiled through the asset that generates them.
func (o *Orchestrator) Submit(h handle.Handle, full bool, reason string) (*Job, error) {
	a, ok := o.registry.Get(h)
	if !ok {
		return nil, asset.ErrNotFound
	}
	if a.Record != nil && a.Record.GeneratedBy != "" {
		if parent := o.registry.FindByRelativePath(a.Record.GeneratedBy); !parent.IsNil() {
			h = parent
		}
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if job, ok := o.inflight[h]; ok {
		o.mu.Unlock()
		return job, nil
	}
	job := newJob(uuid.NewString(), h, full, reason)
	o.inflight[h] = job
	o.mu.Unlock()

	// the state changes before any worker can see the job, so a fast
	// compile never finishes ahead of it
	o.registry.SetCompiling(h)

	o.mu.Lock()
	if o.closed {
		delete(o.inflight, h)
		o.mu.Unlock()
		job.finish(&Result{JobID: job.ID, Handle: h, Reason: ErrClosed.Error(), Err: ErrClosed})
		return nil, ErrClosed
	}
	o.queue = append(o.queue, job)
	o.cond.Signal()
	o.mu.Unlock()
	return job, nil
}

// CompileIfNeeded compiles h unless it is compiled and up to date
func (o *Orchestrator) CompileIfNeeded(ctx context.Context, h handle.Handle) (*Result, error) {
	a, ok := o.registry.Get(h)
	if !ok {
		return nil, asset.ErrNotFound
	}
	if o.IsCompiledAndUpToDate(h) {
		return &Result{Handle: h, RelativePath: a.RelativePath, Success: true, Skipped: true}, nil
	}

	job, err := o.Submit(h, false, "stale")
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}

// RecompileAsset compiles h regardless of staleness. full rewrites every
// child resource even when its output is unchanged.
func (o *Orchestrator) RecompileAsset(ctx context.Context, h handle.Handle, full bool) (*Result, error) {
	job, err := o.Submit(h, full, "forced")
	if err != nil {
		return nil, err
	}
	return job.Wait(ctx)
}

// CompileMany submits every handle, upstream assets first where the graph
// already knows the order, and waits for all of them
func (o *Orchestrator) CompileMany(ctx context.Context, handles []handle.Handle, full, force bool) ([]*Result, error) {
	byKey := make(map[string]handle.Handle, len(handles))
	keys := make([]string, 0, len(handles))
	for _, h := range handles {
		a, ok := o.registry.Get(h)
		if !ok {
			continue
		}
		byKey[a.Key()] = h
		keys = append(keys, a.Key())
	}
	sort.Strings(keys)

	ordered, err := o.graph.TopologicalOrder(keys)
	if err != nil {
		o.logger.Warn("dependency cycle, compiling in path order", zap.Error(err))
		ordered = keys
	}

	var jobs []*Job
	var results []*Result
	submitted := make(map[string]*Job)
	for _, key := range ordered {
		h := byKey[key]

		// upstream assets of this batch finish first so their stamps are recorded
		for _, up := range o.graph.Upstream(key) {
			if job, ok := submitted[up]; ok {
				if _, err := job.Wait(ctx); err != nil && ctx.Err() != nil {
					return results, ctx.Err()
				}
			}
		}

		if !force && o.IsCompiledAndUpToDate(h) {
			a, _ := o.registry.Get(h)
			results = append(results, &Result{Handle: h, RelativePath: a.RelativePath, Success: true, Skipped: true})
			continue
		}
		job, err := o.Submit(h, full, "batch")
		if err != nil {
			return results, fmt.Errorf("failed to submit %s: %w", key, err)
		}
		jobs = append(jobs, job)
		submitted[key] = job
	}

	for _, job := range jobs {
		r, err := job.Wait(ctx)
		if r == nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

// OnDemandRecompile queues an externally triggered recompile. The request is
// scheduled by the next Pump; while the asset is in flight it stays pending.
func (o *Orchestrator) OnDemandRecompile(h handle.Handle, reason string) bool {
	a, ok := o.registry.Get(h)
	if !ok {
		return false
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	queued := false
	for _, p := range o.pending {
		if p.handle == h {
			queued = true
			break
		}
	}
	if !queued {
		o.pending = append(o.pending, pendingRecompile{handle: h, reason: reason})
	}
	o.mu.Unlock()

	o.host.OnDemandRecompile(a, reason)
	return true
}

// Pump schedules pending on-demand recompiles and returns how many were
// submitted. It never blocks on compile work.
func (o *Orchestrator) Pump() int {
	o.mu.Lock()
	var ready, keep []pendingRecompile
	for _, p := range o.pending {
		if _, busy := o.inflight[p.handle]; busy {
			keep = append(keep, p)
		} else {
			ready = append(ready, p)
		}
	}
	o.pending = keep
	o.mu.Unlock()

	submitted := 0
	for _, p := range ready {
		if _, err := o.Submit(p.handle, false, p.reason); err != nil {
			o.logger.Debug("dropping on-demand recompile", zap.String("handle", p.handle.String()), zap.Error(err))
			continue
		}
		submitted++
	}
	return submitted
}

// PendingRecompiles returns the number of on-demand requests not yet scheduled
func (o *Orchestrator) PendingRecompiles() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// InFlight returns the number of queued or running jobs
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// IsInFlight reports whether h has a queued or running job
func (o *Orchestrator) IsInFlight(h handle.Handle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.inflight[h]
	return ok
}

// DrainCompleted returns and clears the results finished since the last drain
func (o *Orchestrator) DrainCompleted() []*Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.completed
	o.completed = nil
	return out
}

// CompileStateReason returns the failure reason of the most recent compile
func (o *Orchestrator) CompileStateReason(h handle.Handle) string {
	return o.registry.CompileStateReason(h)
}

// Close stops the workers after their current jobs. Jobs that never started
// finish with ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	queued := o.queue
	o.queue = nil
	for _, job := range queued {
		delete(o.inflight, job.Handle)
	}
	o.pending = nil
	o.cond.Broadcast()
	o.mu.Unlock()

	for _, job := range queued {
		job.finish(&Result{JobID: job.ID, Handle: job.Handle, Reason: ErrClosed.Error(), Err: ErrClosed})
	}
	o.wg.Wait()
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		o.mu.Lock()
		for len(o.queue) == 0 && !o.closed {
			o.cond.Wait()
		}
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return
		}
		job := o.queue[0]
		o.queue = o.queue[1:]
		o.mu.Unlock()

		result := o.run(job)

		o.mu.Lock()
		delete(o.inflight, job.Handle)
		o.completed = append(o.completed, result)
		if len(o.completed) > maxCompleted {
			o.completed = o.completed[len(o.completed)-maxCompleted:]
		}
		o.mu.Unlock()

		job.finish(result)
	}
}

// initialize tells the host about a file before its first compile
func (o *Orchestrator) initialize(a asset.Asset) {
	o.mu.Lock()
	seen := o.initialized[a.Key()]
	o.initialized[a.Key()] = true
	o.mu.Unlock()

	if !seen {
		o.host.InitializeCompilerForFilename(a.AbsolutePath)
	}
}
