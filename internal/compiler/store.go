package compiler

import (
	"context"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/deps"
)

// ChildCommit is a sub-resource written by a compile
type ChildCommit struct {
	RelativePath string
	Record       *asset.CompileRecord
}

// Commit is everything a successful compile flushes
type Commit struct {
	Asset    asset.Asset
	Record   *asset.CompileRecord
	Edges    []deps.Edge
	Children []ChildCommit
	Removed  []string
}

// Store persists compile results. SaveCommit must be all or nothing; a
// failure fails the compile and leaves in-memory state untouched.
type Store interface {
	SaveCommit(ctx context.Context, c *Commit) error
	SaveState(ctx context.Context, a asset.Asset) error
}
