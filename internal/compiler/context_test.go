package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/assetforge/internal/asset"
)

func newTestContext(t *testing.T, rel string, files ...string) (*ResourceContext, *asset.Registry, string) {
	t.Helper()

	dir := t.TempDir()
	root := filepath.Join(dir, "content")
	reg, err := asset.NewRegistry(root, filepath.Join(dir, "compiled"), nil, nil)
	require.NoError(t, err)

	for _, f := range append([]string{rel}, files...) {
		p := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
		_, err := reg.Register(f)
		require.NoError(t, err)
	}

	a, ok := reg.GetByRelativePath(rel)
	require.True(t, ok)
	return newRootContext(newContextTable(), reg, a, []byte(rel), false), reg, root
}

func TestResourceContext_WriteBlock(t *testing.T) {
	rc, _, _ := newTestContext(t, "a.mat")

	require.NoError(t, rc.WriteBlock("MTRL", []byte("one")))
	err := rc.WriteBlock("MTRL", []byte("two"))
	assert.True(t, errors.Is(err, ErrDuplicateBlock))

	assert.True(t, errors.Is(rc.WriteBlock("", nil), ErrInvalidBlockName))
	assert.True(t, errors.Is(rc.WriteBlock(strings.Repeat("x", 256), nil), ErrInvalidBlockName))
	assert.NoError(t, rc.WriteBlock(strings.Repeat("y", 255), nil))

	data, ok := rc.Block("MTRL")
	require.True(t, ok)
	assert.Equal(t, "one", string(data))
	assert.Len(t, rc.Blocks(), 2)

	blob, err := DecodeBlob(rc.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 1, blob.Version)
	assert.Len(t, blob.Blocks, 2)
}

func TestResourceContext_References(t *testing.T) {
	rc, _, _ := newTestContext(t, "materials/wood.mat", "textures/wood.png", "materials/wood_n.png")

	assert.True(t, rc.RegisterReference("textures/wood.png"))
	assert.True(t, rc.RegisterReference("./wood_n.png"), "./ resolves against the asset's directory")
	assert.False(t, rc.RegisterReference("textures/missing.png"))
	assert.False(t, rc.RegisterReference("../../outside.png"))

	assert.Equal(t, []string{"materials/wood_n.png", "textures/wood.png"}, rc.References())
	assert.Equal(t, []string{"textures/missing.png", "../../outside.png"}, rc.UnresolvedReferences())
}

func TestResourceContext_InputDependencies(t *testing.T) {
	rc, _, root := newTestContext(t, "level.bundle", "props/rock.mdl")
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.cfg"), []byte("cfg"), 0644))

	require.NoError(t, rc.RegisterInputFileDependency("props/rock.mdl", 0))
	require.NoError(t, rc.RegisterInputFileDependency("notes.cfg", 0))
	require.NoError(t, rc.RegisterInputFileDependency("props/rock.mdl", InputNoAssetEdge))
	assert.Error(t, rc.RegisterInputFileDependency("absent.cfg", 0))
	require.NoError(t, rc.RegisterInputFileDependency("absent.cfg", InputOptional))

	inputs := rc.InputDependencies()
	require.Len(t, inputs, 3)

	byPath := map[string]InputDependency{}
	for _, in := range inputs {
		byPath[filepath.Base(in.Path)] = in
	}
	assert.Empty(t, byPath["rock.mdl"].Key, "re-registration with InputNoAssetEdge drops the edge")
	assert.Empty(t, byPath["notes.cfg"].Key, "unregistered files carry no asset key")
	assert.NotEmpty(t, byPath["notes.cfg"].Fingerprint)
	assert.Empty(t, byPath["absent.cfg"].Fingerprint)
}

func TestResourceContext_ChildrenShareDeclarations(t *testing.T) {
	rc, _, _ := newTestContext(t, "level.bundle", "textures/sky.png")

	child, err := rc.CreateChildContext("level/sky_cube.bin")
	require.NoError(t, err)
	assert.Equal(t, "level/sky_cube.bin", child.ResourceName())
	assert.Equal(t, rc.Asset().RelativePath, child.Asset().RelativePath)
	assert.NotEqual(t, rc.Handle(), child.Handle())

	assert.True(t, child.RegisterReference("textures/sky.png"))
	require.NoError(t, child.RegisterSpecialDependency("settings", "sky", "fp1"))
	require.NoError(t, child.WriteBlock("DATA", []byte("cube")))

	assert.Equal(t, []string{"textures/sky.png"}, rc.References())
	assert.Len(t, rc.SpecialDependencies(), 1)
	_, ok := rc.Block("DATA")
	assert.False(t, ok, "child blocks belong to the child resource")

	_, err = rc.CreateChildContext("level/sky_cube.bin")
	assert.Error(t, err, "duplicate child names are rejected")
	_, err = rc.CreateChildContext("level.bundle")
	assert.Error(t, err, "a child cannot replace its root")

	grandchild, err := child.CreateChildContext("level/sky_face0.bin")
	require.NoError(t, err)
	assert.Equal(t, []*ResourceContext{child, grandchild}, rc.Descendants())
}

func TestResourceContext_ClosedRejectsWrites(t *testing.T) {
	rc, _, _ := newTestContext(t, "a.mat", "b.png")
	table := rc.table
	child, err := rc.CreateChildContext("a/child.bin")
	require.NoError(t, err)
	assert.Equal(t, 2, table.len())

	rc.close()

	assert.Equal(t, 0, table.len())
	assert.Equal(t, ErrContextClosed, rc.WriteBlock("DATA", nil))
	assert.Equal(t, ErrContextClosed, child.WriteBlock("DATA", nil))
	assert.Equal(t, ErrContextClosed, rc.SetExtension("vmat_c"))
	assert.False(t, rc.RegisterReference("b.png"))
	_, err = rc.CreateChildContext("a/other.bin")
	assert.Equal(t, ErrContextClosed, err)
}
