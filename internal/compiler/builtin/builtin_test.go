package builtin

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/deps"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/modeldoc"
)

type env struct {
	root  string
	reg   *asset.Registry
	graph *deps.Graph
	orch  *compiler.Orchestrator
}

func newEnv(t *testing.T, settings TextureSettings) *env {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(root, 0755))
	reg, err := asset.NewRegistry(root, filepath.Join(dir, "compiled"), nil, nil)
	require.NoError(t, err)

	g := deps.NewGraph()
	o := compiler.NewOrchestrator(reg, g, compiler.Options{Workers: 2})
	t.Cleanup(o.Close)
	Register(o, settings)
	return &env{root: root, reg: reg, graph: g, orch: o}
}

func (e *env) write(t *testing.T, rel string, data []byte) handle.Handle {
	t.Helper()
	p := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, data, 0644))
	h, err := e.reg.Register(rel)
	require.NoError(t, err)
	return h
}

func (e *env) compile(t *testing.T, h handle.Handle) *compiler.Blob {
	t.Helper()
	res, err := e.orch.RecompileAsset(context.Background(), h, false)
	require.NoError(t, err)
	require.True(t, res.Success)

	a, _ := e.reg.Get(h)
	data, err := os.ReadFile(a.Record.CompiledPath)
	require.NoError(t, err)
	blob, err := compiler.DecodeBlob(data)
	require.NoError(t, err)
	return blob
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 40), G: uint8(y * 40), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTextureCompiler(t *testing.T) {
	e := newEnv(t, TextureSettings{})
	h := e.write(t, "textures/wood.png", pngBytes(t, 4, 2))

	blob := e.compile(t, h)

	info, ok := blob.Block("INFO")
	require.True(t, ok)
	w, hgt, format, err := DecodeTextureInfo(info)
	require.NoError(t, err)
	assert.Equal(t, 4, w)
	assert.Equal(t, 2, hgt)
	assert.Equal(t, "png", format)

	pix, ok := blob.Block("DATA")
	require.True(t, ok)
	assert.Len(t, pix, 4*2*4)

	a, _ := e.reg.Get(h)
	assert.Equal(t, "texture", a.Record.Compiler)
	assert.Equal(t, "vtex_c", a.Record.Extension)
	require.Len(t, a.Record.Specials, 1)
	assert.Equal(t, TextureSettingsTag, a.Record.Specials[0].Tag)
}

func TestTextureCompiler_SettingsChangeMakesStale(t *testing.T) {
	e := newEnv(t, TextureSettings{})
	h := e.write(t, "t.png", pngBytes(t, 8, 4))
	e.compile(t, h)
	assert.True(t, e.orch.IsCompiledAndUpToDate(h))

	Register(e.orch, TextureSettings{MaxSize: 2})
	assert.True(t, e.orch.NeedAnyDependencyUpdate(h))

	blob := e.compile(t, h)
	info, _ := blob.Block("INFO")
	w, hgt, _, err := DecodeTextureInfo(info)
	require.NoError(t, err)
	assert.Equal(t, 2, w)
	assert.Equal(t, 1, hgt)
	assert.False(t, e.orch.NeedAnyDependencyUpdate(h))
}

func TestTextureCompiler_RejectsGarbage(t *testing.T) {
	e := newEnv(t, TextureSettings{})
	h := e.write(t, "broken.png", []byte("not a png"))

	_, err := e.orch.RecompileAsset(context.Background(), h, false)
	require.Error(t, err)
	assert.Contains(t, e.reg.CompileStateReason(h), "failed to decode image")
}

func TestMaterialCompiler(t *testing.T) {
	e := newEnv(t, TextureSettings{})
	e.write(t, "textures/wood.png", pngBytes(t, 1, 1))
	e.write(t, "textures/wood_n.png", pngBytes(t, 1, 1))
	h := e.write(t, "materials/wood.mat", []byte(`
shader: standard
textures:
  albedo: textures/wood.png
  normal: textures/wood_n.png
params:
  roughness: 0.5
color: [1, 0.5, 0.25]
`))

	blob := e.compile(t, h)

	assert.Equal(t, []string{"textures/wood.png", "textures/wood_n.png"}, e.graph.References("materials/wood.mat", false))
	raw, ok := blob.Block("MTRL")
	require.True(t, ok)
	var m Material
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "standard", m.Shader)
	assert.Equal(t, 0.5, m.Params["roughness"])
}

func TestMaterialCompiler_Errors(t *testing.T) {
	e := newEnv(t, TextureSettings{})

	tests := []struct {
		name   string
		source string
		reason string
	}{
		{"no shader", "textures: {}", "material has no shader"},
		{"unknown texture", "shader: s\ntextures:\n  albedo: textures/none.png", "unknown textures"},
		{"bad color", "shader: s\ncolor: [1]", "3 or 4 components"},
		{"bad yaml", "shader: [", "failed to parse material"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := e.write(t, "m_"+filepath.Base(t.Name())+".mat", []byte(tt.source))
			_, err := e.orch.RecompileAsset(context.Background(), h, false)
			require.Error(t, err)
			assert.Contains(t, e.reg.CompileStateReason(h), tt.reason)
		})
	}
}

func TestModelCompiler(t *testing.T) {
	e := newEnv(t, TextureSettings{})
	e.write(t, "materials/stone.mat", []byte("shader: standard"))

	doc := modeldoc.New()
	require.NoError(t, doc.AddVertices(4))
	require.NoError(t, doc.SetPositions([]modeldoc.Vec3{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0}}))
	g, err := doc.AddFaceGroup("quad", "materials/stone.mat")
	require.NoError(t, err)
	require.NoError(t, doc.AddFace(g, []int{0, 1, 2, 3}))
	path := filepath.Join(e.root, "props", "quad.mdl")
	require.NoError(t, doc.SaveToFile(path))
	h, err := e.reg.Register(path)
	require.NoError(t, err)

	blob := e.compile(t, h)

	vert, ok := blob.Block("VERT")
	require.True(t, ok)
	assert.Len(t, vert, 4*8*4)

	face, ok := blob.Block("FACE")
	require.True(t, ok)
	indices := make([]uint32, len(face)/4)
	require.NoError(t, binary.Read(bytes.NewReader(face), binary.LittleEndian, indices))
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, indices)

	grps, ok := blob.Block("GRPS")
	require.True(t, ok)
	var groups []groupRange
	require.NoError(t, json.Unmarshal(grps, &groups))
	assert.Equal(t, []groupRange{{Name: "quad", Material: "materials/stone.mat", FirstTriangle: 0, Triangles: 2}}, groups)

	assert.Equal(t, []string{"materials/stone.mat"}, e.graph.References("props/quad.mdl", false))
}

func TestModelCompiler_UnknownMaterial(t *testing.T) {
	e := newEnv(t, TextureSettings{})

	doc := modeldoc.New()
	require.NoError(t, doc.AddVertices(3))
	require.NoError(t, doc.SetPositions(make([]modeldoc.Vec3, 3)))
	g, err := doc.AddFaceGroup("tri", "materials/missing.mat")
	require.NoError(t, err)
	require.NoError(t, doc.AddFace(g, []int{0, 1, 2}))
	data, err := doc.Encode()
	require.NoError(t, err)
	h := e.write(t, "tri.mdl", data)

	_, err = e.orch.RecompileAsset(context.Background(), h, false)
	require.Error(t, err)
	assert.Contains(t, e.reg.CompileStateReason(h), "unknown material materials/missing.mat")
}

func TestBundleCompiler(t *testing.T) {
	e := newEnv(t, TextureSettings{})
	e.write(t, "props/rock.mdl.txt", []byte("notes"))
	require.NoError(t, os.MkdirAll(filepath.Join(e.root, "level", "src"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "level", "src", "lightmap.raw"), []byte("LM"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "level", "layout.cfg"), []byte("grid"), 0644))

	h := e.write(t, "level/level.bundle", []byte(`
inputs:
  - ./layout.cfg
references:
  - props/rock.mdl.txt
resources:
  - name: level/generated/sky.bin
    data: "blue"
    version: 3
  - name: level/generated/lightmap.bin
    file: ./src/lightmap.raw
`))

	blob := e.compile(t, h)

	index, ok := blob.Block("BNDL")
	require.True(t, ok)
	var names []string
	require.NoError(t, json.Unmarshal(index, &names))
	assert.Equal(t, []string{"level/generated/sky.bin", "level/generated/lightmap.bin"}, names)

	sky, ok := e.reg.GetByRelativePath("level/generated/sky.bin")
	require.True(t, ok)
	require.NotNil(t, sky.Record)
	assert.Equal(t, 3, sky.Record.ResourceVersion)
	assert.Equal(t, "bin_c", sky.Record.Extension)

	data, err := os.ReadFile(e.reg.CompiledPath("level/generated/lightmap.bin"))
	require.NoError(t, err)
	lightmap, err := compiler.DecodeBlob(data)
	require.NoError(t, err)
	payload, _ := lightmap.Block("DATA")
	assert.Equal(t, "LM", string(payload))

	assert.Equal(t, []string{"props/rock.mdl.txt"}, e.graph.References("level/level.bundle", false))
	assert.Equal(t, []string{"level/generated/lightmap.bin", "level/generated/sky.bin"}, e.graph.Children("level/level.bundle", false))

	// the embedded file is an input of the bundle
	require.NoError(t, os.WriteFile(filepath.Join(e.root, "level", "src", "lightmap.raw"), []byte("LM2"), 0644))
	assert.True(t, e.orch.NeedAnyDependencyUpdate(h))
}

func TestParseBundle_Validation(t *testing.T) {
	_, err := ParseBundle([]byte("resources:\n  - data: x"))
	assert.Error(t, err)

	_, err = ParseBundle([]byte("resources:\n  - name: a.bin\n    data: x\n    file: y"))
	assert.Error(t, err)

	b, err := ParseBundle([]byte("resources:\n  - name: a.bin\n    data: x"))
	require.NoError(t, err)
	assert.Len(t, b.Resources, 1)
}

func TestRawCompiler(t *testing.T) {
	e := newEnv(t, TextureSettings{})
	h := e.write(t, "sfx/hit.wav", []byte("RIFF"))

	blob := e.compile(t, h)
	payload, ok := blob.Block("DATA")
	require.True(t, ok)
	assert.Equal(t, "RIFF", string(payload))

	a, _ := e.reg.Get(h)
	assert.Equal(t, "wav_c", a.Record.Extension)
}
