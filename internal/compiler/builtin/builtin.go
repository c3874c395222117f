// Package builtin provides the compilers for the default asset types
package builtin

import (
	"github.com/conduit-lang/assetforge/internal/compiler"
)

// Register binds every built-in compiler and special resolver to o
func Register(o *compiler.Orchestrator, textures TextureSettings) {
	o.RegisterCompiler("texture", NewTextureCompiler(textures))
	o.RegisterSpecialResolver(TextureSettingsTag, textures.resolve)
	o.RegisterCompiler("material", MaterialCompiler{})
	o.RegisterCompiler("model", ModelCompiler{})
	o.RegisterCompiler("bundle", BundleCompiler{})
	o.RegisterCompiler("sound", RawCompiler{})
	o.RegisterCompiler("raw", RawCompiler{})
}
