package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/config"
	"github.com/conduit-lang/assetforge/internal/service"
)

type fixture struct {
	svc     *service.Service
	srv     *Server
	ts      *httptest.Server
	content string
}

func newFixture(t *testing.T, secret string, files map[string][]byte) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ContentRoot = filepath.Join(dir, "content")
	cfg.CompiledRoot = filepath.Join(dir, "compiled")
	cfg.Database.DSN = ":memory:"
	cfg.Watch.Enabled = false
	cfg.Compile.Workers = 2

	for rel, data := range files {
		p := filepath.Join(cfg.ContentRoot, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, data, 0644))
	}
	require.NoError(t, os.MkdirAll(cfg.ContentRoot, 0755))

	svc, err := service.New(context.Background(), cfg, service.Options{})
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	srv := New(svc, Options{TokenSecret: secret})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
		svc.Close()
	})
	return &fixture{svc: svc, srv: srv, ts: ts, content: cfg.ContentRoot}
}

func (f *fixture) do(t *testing.T, method, path string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestServer_ListAssets(t *testing.T) {
	f := newFixture(t, "", map[string][]byte{
		"data/a.bin":     []byte("a"),
		"data/b.bin":     []byte("b"),
		"sfx/hit.wav":    []byte("RIFF"),
		"textures/x.png": pngBytes(t),
	})

	var all AssetList
	resp := f.do(t, http.MethodGet, "/api/assets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &all)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, "data/a.bin", all.Assets[0].RelativePath)

	var raw AssetList
	decode(t, f.do(t, http.MethodGet, "/api/assets?type=raw", nil), &raw)
	assert.Equal(t, 2, raw.Total)

	var matched AssetList
	decode(t, f.do(t, http.MethodGet, "/api/assets?q=HIT", nil), &matched)
	require.Equal(t, 1, matched.Total)
	assert.Equal(t, "sfx/hit.wav", matched.Assets[0].RelativePath)

	h := f.svc.FindByRelativePath("data/a.bin")
	_, err := f.svc.CompileIfNeeded(context.Background(), h)
	require.NoError(t, err)

	var compiled AssetList
	decode(t, f.do(t, http.MethodGet, "/api/assets?state=compiled", nil), &compiled)
	require.Equal(t, 1, compiled.Total)
	assert.Equal(t, asset.Compiled, compiled.Assets[0].State)

	resp = f.do(t, http.MethodGet, "/api/assets?state=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AssetDetail(t *testing.T) {
	f := newFixture(t, "", map[string][]byte{
		"textures/wood.png":  pngBytes(t),
		"materials/wood.mat": []byte("shader: standard\ntextures:\n  albedo: textures/wood.png\n"),
	})
	h := f.svc.FindByRelativePath("materials/wood.mat")
	_, err := f.svc.CompileIfNeeded(context.Background(), h)
	require.NoError(t, err)

	var detail AssetDetail
	resp := f.do(t, http.MethodGet, "/api/assets/materials/wood.mat", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &detail)

	assert.Equal(t, "materials/wood.mat", detail.RelativePath)
	assert.Equal(t, h, detail.Handle)
	assert.True(t, detail.UpToDate)
	assert.Equal(t, []string{"textures/wood.png"}, detail.Dependencies["references"])
	assert.Empty(t, detail.Dependencies["referencers"])
	require.NotNil(t, detail.Record)
	assert.Equal(t, "material", detail.Record.Compiler)

	var tex AssetDetail
	decode(t, f.do(t, http.MethodGet, "/api/assets/textures/wood.png", nil), &tex)
	assert.Equal(t, []string{"materials/wood.mat"}, tex.Dependencies["referencers"])

	resp = f.do(t, http.MethodGet, "/api/assets/missing.bin", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var errResp ErrorResponse
	decode(t, resp, &errResp)
	assert.Equal(t, "NOT_FOUND", errResp.Code)
}

func TestServer_Compile(t *testing.T) {
	f := newFixture(t, "", map[string][]byte{
		"data/a.bin":       []byte("payload"),
		"textures/bad.png": []byte("not a png"),
	})

	var res compiler.Result
	resp := f.do(t, http.MethodPost, "/api/compile/data/a.bin", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &res)
	assert.True(t, res.Success)
	assert.False(t, res.Skipped)

	var again compiler.Result
	decode(t, f.do(t, http.MethodPost, "/api/compile/data/a.bin", nil), &again)
	assert.True(t, again.Skipped)

	var forced compiler.Result
	decode(t, f.do(t, http.MethodPost, "/api/compile/data/a.bin?force=true", nil), &forced)
	assert.True(t, forced.Success)
	assert.False(t, forced.Skipped)

	var failed compiler.Result
	resp = f.do(t, http.MethodPost, "/api/compile/textures/bad.png", nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	decode(t, resp, &failed)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Reason, "failed to decode image")

	resp = f.do(t, http.MethodGet, "/api/compile/data/a.bin", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/compile/nope.bin", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_Types(t *testing.T) {
	f := newFixture(t, "", nil)

	var types []asset.AssetType
	resp := f.do(t, http.MethodGet, "/api/types", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &types)

	ids := make([]string, 0, len(types))
	for _, typ := range types {
		ids = append(ids, typ.ID)
	}
	assert.Contains(t, ids, "texture")
	assert.Contains(t, ids, "material")
	assert.Contains(t, ids, "raw")
}

func TestServer_Thumbnail(t *testing.T) {
	f := newFixture(t, "", map[string][]byte{"textures/x.png": pngBytes(t)})

	resp := f.do(t, http.MethodGet, "/api/thumbnails/textures/x.png?w=16&h=16", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())

	resp = f.do(t, http.MethodGet, "/api/thumbnails/textures/x.png?w=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/thumbnails/textures/y.png", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_EventStream(t *testing.T) {
	f := newFixture(t, "", nil)

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.srv.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	p := filepath.Join(f.content, "data", "new.bin")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	_, err = f.svc.Register(p)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var ev service.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type != service.EventAssetAdded {
			continue
		}
		require.NotNil(t, ev.Asset)
		assert.Equal(t, "data/new.bin", ev.Asset.RelativePath)
		break
	}

	conn.Close()
	assert.Eventually(t, func() bool { return f.srv.Hub().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_TokenAuth(t *testing.T) {
	f := newFixture(t, "s3cret", nil)
	require.NotNil(t, f.srv.Auth())

	resp := f.do(t, http.MethodGet, "/api/types", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/types", http.Header{"Authorization": {"Token abc"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := NewTokenAuth("other").GenerateToken("mallory", time.Minute)
	require.NoError(t, err)
	resp = f.do(t, http.MethodGet, "/api/types", http.Header{"Authorization": {"Bearer " + forged}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := f.srv.Auth().GenerateToken("tools", time.Minute)
	require.NoError(t, err)
	resp = f.do(t, http.MethodGet, "/api/types", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/types?access_token="+token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTokenAuth_Validate(t *testing.T) {
	auth := NewTokenAuth("s3cret")

	token, err := auth.GenerateToken("tools", time.Minute)
	require.NoError(t, err)
	subject, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "tools", subject)

	expired, err := auth.GenerateToken("tools", -time.Minute)
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	assert.Error(t, err)

	_, err = auth.ValidateToken("not.a.token")
	assert.Error(t, err)
}

func TestServer_UnknownRoute(t *testing.T) {
	f := newFixture(t, "", nil)
	resp := f.do(t, http.MethodGet, "/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
