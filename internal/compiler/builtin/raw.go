package builtin

import (
	"context"
	"path"

	"github.com/conduit-lang/assetforge/internal/compiler"
)

// RawCompiler copies the source into a single DATA block
type RawCompiler struct{}

func (RawCompiler) Name() string { return "raw" }

func (RawCompiler) Compile(_ context.Context, rc *compiler.ResourceContext) error {
	if err := rc.SetExtension(path.Ext(rc.ResourceName()) + "_c"); err != nil {
		return err
	}
	return rc.WriteBlock("DATA", rc.Source())
}
