package compiler

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/fingerprint"
	"github.com/conduit-lang/assetforge/internal/handle"
)

var (
	// ErrContextClosed is returned by operations on a context after its compile ended
	ErrContextClosed = errors.New("compiler context is closed")

	// ErrDuplicateBlock is returned when a block name is written twice
	ErrDuplicateBlock = errors.New("duplicate block")

	// ErrInvalidBlockName is returned for empty or oversized block names
	ErrInvalidBlockName = errors.New("invalid block name")
)

// InputFlags modify how an input file dependency is tracked
type InputFlags uint32

const (
	// InputOptional tolerates the file being missing at compile time
	InputOptional InputFlags = 1 << iota

	// InputNoAssetEdge tracks the file for staleness without adding a
	// DependsOn edge even when the file is a registered asset
	InputNoAssetEdge
)

// InputDependency is one declared input file
type InputDependency struct {
	Path        string     `json:"path"`
	Key         string     `json:"key,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	Flags       InputFlags `json:"flags"`
}

// Resolver maps file names seen during a compile onto registered assets.
// *asset.Registry implements it.
type Resolver interface {
	Normalize(path string) (rel, abs string, err error)
	FindByRelativePath(rel string) handle.Handle
}

// declarations accumulates what a compile and all of its child contexts
// declared. It is flushed only after the root compile succeeds.
type declarations struct {
	references map[string]bool
	unresolved []string
	inputs     map[string]InputDependency
	specials   map[string]asset.SpecialDependency
	childNames map[string]bool
	mu         sync.Mutex
}

func newDeclarations() *declarations {
	return &declarations{
		references: make(map[string]bool),
		inputs:     make(map[string]InputDependency),
		specials:   make(map[string]asset.SpecialDependency),
		childNames: make(map[string]bool),
	}
}

// ResourceContext is the per-compile handle through which a compiler declares
// dependencies and writes output blocks
type ResourceContext struct {
	handle       handle.Handle
	target       asset.Asset
	resourceName string
	source       []byte
	full         bool

	extension    string
	compilerName string
	version      int
	blocks       []Block
	blockIndex   map[string]int

	parent   *ResourceContext
	children []*ResourceContext
	decl     *declarations
	resolver Resolver
	table    *contextTable
	closed   bool

	mu sync.Mutex
}

func newRootContext(table *contextTable, resolver Resolver, target asset.Asset, source []byte, full bool) *ResourceContext {
	rc := &ResourceContext{
		target:       target,
		resourceName: target.RelativePath,
		source:       source,
		full:         full,
		version:      1,
		blockIndex:   make(map[string]int),
		decl:         newDeclarations(),
		resolver:     resolver,
		table:        table,
	}
	rc.handle = table.insert(rc)
	return rc
}

// Handle returns the context's handle in the compiler context table
func (rc *ResourceContext) Handle() handle.Handle { return rc.handle }

// Asset returns the asset being compiled. Child contexts return their root's asset.
func (rc *ResourceContext) Asset() asset.Asset { return rc.target }

// ResourceName returns the relative path this context's output is written for
func (rc *ResourceContext) ResourceName() string { return rc.resourceName }

// Source returns the source bytes of the compile. Child contexts have none.
func (rc *ResourceContext) Source() []byte { return rc.source }

// Full reports whether child resources must be rewritten even when unchanged
func (rc *ResourceContext) Full() bool { return rc.full }

// Parent returns the parent context, or nil for the root
func (rc *ResourceContext) Parent() *ResourceContext { return rc.parent }

// SetExtension sets the extension recorded for the compiled resource
func (rc *ResourceContext) SetExtension(ext string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return ErrContextClosed
	}
	rc.extension = strings.TrimPrefix(ext, ".")
	return nil
}

// Extension returns the recorded extension
func (rc *ResourceContext) Extension() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.extension
}

// SetCompiler names the compiler that produced the resource
func (rc *ResourceContext) SetCompiler(name string) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return ErrContextClosed
	}
	rc.compilerName = name
	return nil
}

// Compiler returns the compiler name
func (rc *ResourceContext) Compiler() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.compilerName
}

// SpecifyResourceVersion sets the version written into the blob header
func (rc *ResourceContext) SpecifyResourceVersion(version int) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return ErrContextClosed
	}
	if version < 0 {
		return fmt.Errorf("resource version must not be negative, got %d", version)
	}
	rc.version = version
	return nil
}

// ResourceVersion returns the version written into the blob header
func (rc *ResourceContext) ResourceVersion() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.version
}

// RegisterReference records a runtime reference to another asset. It returns
// false when the name does not resolve to a registered asset; the name is
// still remembered as unresolved.
func (rc *ResourceContext) RegisterReference(filename string) bool {
	if rc.isClosed() {
		return false
	}

	rel, _, err := rc.resolve(filename)
	if err != nil {
		rc.decl.addUnresolved(filename)
		return false
	}
	if rc.resolver.FindByRelativePath(rel).IsNil() {
		rc.decl.addUnresolved(rel)
		return false
	}

	rc.decl.mu.Lock()
	rc.decl.references[asset.Key(rel)] = true
	rc.decl.mu.Unlock()
	return true
}

// RegisterInputFileDependency records a file the compile read. Its content
// fingerprint is taken now and compared on every staleness check.
func (rc *ResourceContext) RegisterInputFileDependency(filename string, flags InputFlags) error {
	if rc.isClosed() {
		return ErrContextClosed
	}

	rel, abs, err := rc.resolve(filename)
	if err != nil {
		if filepath.IsAbs(filename) {
			// inputs outside the content root are tracked by path only
			abs, rel = filepath.Clean(filename), ""
		} else {
			return fmt.Errorf("invalid input dependency %s: %w", filename, err)
		}
	}

	fp, err := fingerprint.FileOrMissing(abs)
	if err != nil {
		return fmt.Errorf("failed to fingerprint input %s: %w", abs, err)
	}
	if fp == fingerprint.Missing && flags&InputOptional == 0 {
		return fmt.Errorf("input dependency %s does not exist", abs)
	}

	dep := InputDependency{Path: abs, Fingerprint: fp, Flags: flags}
	if rel != "" && flags&InputNoAssetEdge == 0 && !rc.resolver.FindByRelativePath(rel).IsNil() {
		dep.Key = asset.Key(rel)
	}

	rc.decl.mu.Lock()
	rc.decl.inputs[abs] = dep
	rc.decl.mu.Unlock()
	return nil
}

// RegisterSpecialDependency records a non-file input. fp is compared against
// the registered SpecialResolver for tag on later staleness checks.
func (rc *ResourceContext) RegisterSpecialDependency(tag, userData, fp string) error {
	if rc.isClosed() {
		return ErrContextClosed
	}
	if tag == "" {
		return errors.New("special dependency tag must not be empty")
	}

	rc.decl.mu.Lock()
	rc.decl.specials[tag+"\x00"+userData] = asset.SpecialDependency{Tag: tag, UserData: userData, Fingerprint: fp}
	rc.decl.mu.Unlock()
	return nil
}

// WriteBlock appends a named block to this context's resource
func (rc *ResourceContext) WriteBlock(name string, data []byte) error {
	if name == "" || len(name) > MaxBlockNameLength {
		return fmt.Errorf("%w: %q", ErrInvalidBlockName, name)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return ErrContextClosed
	}
	if _, exists := rc.blockIndex[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateBlock, name)
	}

	rc.blockIndex[name] = len(rc.blocks)
	rc.blocks = append(rc.blocks, Block{Name: name, Data: append([]byte{}, data...)})
	return nil
}

// Block returns a previously written block
func (rc *ResourceContext) Block(name string) ([]byte, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	i, ok := rc.blockIndex[name]
	if !ok {
		return nil, false
	}
	return rc.blocks[i].Data, true
}

// Blocks returns the written blocks in write order
func (rc *ResourceContext) Blocks() []Block {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]Block(nil), rc.blocks...)
}

// Bytes encodes the context's blocks into a compiled blob
func (rc *ResourceContext) Bytes() []byte {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return EncodeBlob(rc.version, rc.blocks)
}

// CreateChildContext creates a context for an embedded sub-resource named by
// filename. The child shares this compile's declarations but writes its own
// resource.
func (rc *ResourceContext) CreateChildContext(filename string) (*ResourceContext, error) {
	rel, _, err := rc.resolve(filename)
	if err != nil {
		return nil, fmt.Errorf("invalid child resource %s: %w", filename, err)
	}
	if asset.Key(rel) == rc.root().target.Key() {
		return nil, fmt.Errorf("child resource %s collides with the asset being compiled", rel)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return nil, ErrContextClosed
	}

	rc.decl.mu.Lock()
	if rc.decl.childNames[asset.Key(rel)] {
		rc.decl.mu.Unlock()
		return nil, fmt.Errorf("child resource %s already exists", rel)
	}
	rc.decl.childNames[asset.Key(rel)] = true
	rc.decl.mu.Unlock()

	child := &ResourceContext{
		target:       rc.target,
		resourceName: rel,
		full:         rc.full,
		version:      1,
		blockIndex:   make(map[string]int),
		parent:       rc,
		decl:         rc.decl,
		resolver:     rc.resolver,
		table:        rc.table,
	}
	child.handle = rc.table.insert(child)
	rc.children = append(rc.children, child)
	return child, nil
}

// Children returns the direct child contexts
func (rc *ResourceContext) Children() []*ResourceContext {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]*ResourceContext(nil), rc.children...)
}

// Descendants returns every child context depth first
func (rc *ResourceContext) Descendants() []*ResourceContext {
	var out []*ResourceContext
	for _, c := range rc.Children() {
		out = append(out, c)
		out = append(out, c.Descendants()...)
	}
	return out
}

// References returns the keys of resolved references, sorted
func (rc *ResourceContext) References() []string {
	rc.decl.mu.Lock()
	defer rc.decl.mu.Unlock()
	out := make([]string, 0, len(rc.decl.references))
	for k := range rc.decl.references {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UnresolvedReferences returns names passed to RegisterReference that did
// not resolve
func (rc *ResourceContext) UnresolvedReferences() []string {
	rc.decl.mu.Lock()
	defer rc.decl.mu.Unlock()
	return append([]string(nil), rc.decl.unresolved...)
}

// InputDependencies returns the declared input files ordered by path
func (rc *ResourceContext) InputDependencies() []InputDependency {
	rc.decl.mu.Lock()
	defer rc.decl.mu.Unlock()
	out := make([]InputDependency, 0, len(rc.decl.inputs))
	for _, in := range rc.decl.inputs {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SpecialDependencies returns the declared special dependencies ordered by tag
func (rc *ResourceContext) SpecialDependencies() []asset.SpecialDependency {
	rc.decl.mu.Lock()
	defer rc.decl.mu.Unlock()
	out := make([]asset.SpecialDependency, 0, len(rc.decl.specials))
	for _, sp := range rc.decl.specials {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tag != out[j].Tag {
			return out[i].Tag < out[j].Tag
		}
		return out[i].UserData < out[j].UserData
	})
	return out
}

// close ends the context and its children and frees their handles
func (rc *ResourceContext) close() {
	for _, c := range rc.Children() {
		c.close()
	}
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return
	}
	rc.closed = true
	rc.mu.Unlock()
	rc.table.remove(rc.handle)
}

func (rc *ResourceContext) isClosed() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.closed
}

func (rc *ResourceContext) root() *ResourceContext {
	r := rc
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// ResolvePath returns the absolute path filename refers to in this compile
func (rc *ResourceContext) ResolvePath(filename string) (string, error) {
	_, abs, err := rc.resolve(filename)
	return abs, err
}

// resolve interprets filename: "./" and "../" prefixes are relative to the
// directory of the asset being compiled, anything else is relative to the
// content root or absolute.
func (rc *ResourceContext) resolve(filename string) (rel, abs string, err error) {
	name := filepath.ToSlash(filename)
	if strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../") {
		dir := path.Dir(rc.target.RelativePath)
		name = path.Join(dir, name)
	}
	return rc.resolver.Normalize(name)
}

func (d *declarations) addUnresolved(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.unresolved {
		if existing == name {
			return
		}
	}
	d.unresolved = append(d.unresolved, name)
}

// contextTable holds the live compiler contexts so remote compilers can
// address them by handle
type contextTable struct {
	table *handle.Table[*ResourceContext]
	mu    sync.RWMutex
}

func newContextTable() *contextTable {
	return &contextTable{table: handle.NewTable[*ResourceContext]()}
}

func (t *contextTable) insert(rc *ResourceContext) handle.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table.Insert(rc)
}

func (t *contextTable) get(h handle.Handle) (*ResourceContext, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.table.Get(h)
}

func (t *contextTable) remove(h handle.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table.Remove(h)
}

func (t *contextTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.table.Len()
}
