// Package asset implements the asset registry: the set of known assets keyed
// by relative path, their types, compile state and usage telemetry.
package asset

import (
	"errors"
	"time"

	"github.com/conduit-lang/assetforge/internal/handle"
)

// ErrNotFound is returned by registry methods that must return an error when
// a handle or path does not resolve. Lookups return handle.Nil instead.
var ErrNotFound = errors.New("asset not found")

// CompileState is the compile state machine position of an asset
type CompileState int

const (
	NeverCompiled CompileState = iota
	Compiling
	Compiled
	Failed
)

func (s CompileState) String() string {
	switch s {
	case NeverCompiled:
		return "never_compiled"
	case Compiling:
		return "compiling"
	case Compiled:
		return "compiled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseCompileState is the inverse of CompileState.String
func ParseCompileState(s string) CompileState {
	switch s {
	case "compiling":
		return Compiling
	case "compiled":
		return Compiled
	case "failed":
		return Failed
	default:
		return NeverCompiled
	}
}

func (s CompileState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CompileState) UnmarshalText(text []byte) error {
	*s = ParseCompileState(string(text))
	return nil
}

// SpecialDependency is a non-file input of a compile, identified by tag and
// user data and compared by fingerprint
type SpecialDependency struct {
	Tag         string `json:"tag"`
	UserData    string `json:"user_data"`
	Fingerprint string `json:"fingerprint"`
}

// CompileRecord captures what the last successful compile of an asset
// consumed and produced
type CompileRecord struct {
	Stamp             uint64              `json:"stamp"`
	SourceFingerprint string              `json:"source_fingerprint"`
	Inputs            map[string]string   `json:"inputs,omitempty"`
	Specials          []SpecialDependency `json:"specials,omitempty"`
	DependencyStamps  map[string]uint64   `json:"dependency_stamps,omitempty"`
	Children          []string            `json:"children,omitempty"`
	CompiledPath      string              `json:"compiled_path"`
	OutputFingerprint string              `json:"output_fingerprint"`
	ResourceVersion   int                 `json:"resource_version"`
	Compiler          string              `json:"compiler,omitempty"`
	Extension         string              `json:"extension,omitempty"`
	GeneratedBy       string              `json:"generated_by,omitempty"`
	CompiledAt        time.Time           `json:"compiled_at"`
}

// Clone returns a deep copy of the record
func (r *CompileRecord) Clone() *CompileRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Inputs != nil {
		c.Inputs = make(map[string]string, len(r.Inputs))
		for k, v := range r.Inputs {
			c.Inputs[k] = v
		}
	}
	if r.DependencyStamps != nil {
		c.DependencyStamps = make(map[string]uint64, len(r.DependencyStamps))
		for k, v := range r.DependencyStamps {
			c.DependencyStamps[k] = v
		}
	}
	c.Specials = append([]SpecialDependency(nil), r.Specials...)
	c.Children = append([]string(nil), r.Children...)
	return &c
}

// Asset is a point-in-time view of a registered asset
type Asset struct {
	Handle            handle.Handle  `json:"handle"`
	RelativePath      string         `json:"relative_path"`
	AbsolutePath      string         `json:"absolute_path"`
	Name              string         `json:"name"`
	Type              handle.Handle  `json:"type"`
	TypeID            string         `json:"type_id"`
	Cached            bool           `json:"cached"`
	State             CompileState   `json:"state"`
	FailureReason     string         `json:"failure_reason,omitempty"`
	RelatedFiles      []string       `json:"related_files,omitempty"`
	InputDependencies []string       `json:"input_dependencies,omitempty"`
	HasReplacement    bool           `json:"has_replacement"`
	OpenCount         int            `json:"open_count"`
	LastOpened        time.Time      `json:"last_opened,omitempty"`
	Record            *CompileRecord `json:"record,omitempty"`
}

// Key returns the registry key of the asset
func (a Asset) Key() string {
	return Key(a.RelativePath)
}

func (a Asset) clone() Asset {
	c := a
	c.RelatedFiles = append([]string(nil), a.RelatedFiles...)
	c.InputDependencies = append([]string(nil), a.InputDependencies...)
	c.Record = a.Record.Clone()
	return c
}

// Listener receives registry notifications. Calls happen after the registry
// lock is released, so listeners may call back into the registry.
type Listener interface {
	AssetAdded(a Asset)
	AssetRemoved(a Asset)
	AssetChanged(a Asset)
}

// ListenerFuncs adapts plain functions to Listener; nil fields are skipped
type ListenerFuncs struct {
	Added   func(Asset)
	Removed func(Asset)
	Changed func(Asset)
}

func (l ListenerFuncs) AssetAdded(a Asset) {
	if l.Added != nil {
		l.Added(a)
	}
}

func (l ListenerFuncs) AssetRemoved(a Asset) {
	if l.Removed != nil {
		l.Removed(a)
	}
}

func (l ListenerFuncs) AssetChanged(a Asset) {
	if l.Changed != nil {
		l.Changed(a)
	}
}
