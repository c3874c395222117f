package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/preview"
	"github.com/conduit-lang/assetforge/internal/service"
)

// maxThumbnailSize bounds requested thumbnail edges
const maxThumbnailSize = preview.MaxSize

// AssetDetail is the body of GET /api/assets/{path}
type AssetDetail struct {
	asset.Asset
	UpToDate     bool                `json:"up_to_date"`
	Dependencies map[string][]string `json:"dependencies"`
}

// AssetList is the body of GET /api/assets
type AssetList struct {
	Assets []asset.Asset `json:"assets"`
	Total  int           `json:"total"`
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typeID := q.Get("type")
	query := strings.ToLower(q.Get("q"))

	var state *asset.CompileState
	if raw := q.Get("state"); raw != "" {
		st := asset.ParseCompileState(raw)
		if st.String() != raw {
			renderError(w, http.StatusBadRequest, fmt.Errorf("unknown compile state %q", raw))
			return
		}
		state = &st
	}

	list := AssetList{Assets: []asset.Asset{}}
	for _, a := range s.svc.All() {
		if typeID != "" && a.TypeID != typeID {
			continue
		}
		if state != nil && a.State != *state {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(a.RelativePath), query) {
			continue
		}
		list.Assets = append(list.Assets, a)
	}
	list.Total = len(list.Assets)
	renderJSON(w, http.StatusOK, list)
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	detail := AssetDetail{
		Asset:        a,
		UpToDate:     s.svc.IsCompiledAndUpToDate(a.Handle),
		Dependencies: make(map[string][]string),
	}
	deep := r.URL.Query().Get("deep") == "true"
	for _, query := range service.Queries() {
		keys, err := s.svc.Dependencies(a.Handle, query, deep)
		if err != nil {
			renderError(w, http.StatusInternalServerError, err)
			return
		}
		if keys == nil {
			keys = []string{}
		}
		detail.Dependencies[string(query)] = keys
	}
	renderJSON(w, http.StatusOK, detail)
}

func (s *Server) compileAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	full := q.Get("full") == "true"
	force := full || q.Get("force") == "true"

	var (
		res *compiler.Result
		err error
	)
	if force {
		res, err = s.svc.RecompileAsset(r.Context(), a.Handle, full)
	} else {
		res, err = s.svc.CompileIfNeeded(r.Context(), a.Handle)
	}

	var compileErr *compiler.CompileError
	switch {
	case err == nil:
		renderJSON(w, http.StatusOK, res)
	case errors.As(err, &compileErr) && res != nil:
		renderJSON(w, http.StatusUnprocessableEntity, res)
	case errors.Is(err, asset.ErrNotFound):
		renderError(w, http.StatusNotFound, err)
	default:
		s.logger.Error("compile request failed", zap.String("path", a.RelativePath), zap.Error(err))
		renderError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) listTypes(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, s.svc.Types().All())
}

func (s *Server) thumbnail(w http.ResponseWriter, r *http.Request) {
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var target preview.Pixmap
	for name, dst := range map[string]*int{"w": &target.Width, "h": &target.Height} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxThumbnailSize {
			renderError(w, http.StatusBadRequest, fmt.Errorf("%s must be between 1 and %d", name, maxThumbnailSize))
			return
		}
		*dst = n
	}

	req, err := s.svc.RenderThumbnail(a.Handle, target)
	if err != nil {
		renderError(w, http.StatusNotFound, err)
		return
	}
	thumb, ok, err := req.Wait(r.Context())
	if err != nil {
		renderError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !ok {
		renderError(w, http.StatusNotFound, fmt.Errorf("no thumbnail for %s", a.RelativePath))
		return
	}

	data, err := thumb.PNG()
	if err != nil {
		renderError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// lookup resolves the wildcard path of r, rendering 404 when it is unknown
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (asset.Asset, bool) {
	rel := chi.URLParam(r, "*")
	h := handle.Nil
	if rel != "" {
		h = s.svc.FindByRelativePath(rel)
	}
	a, ok := s.svc.Get(h)
	if !ok {
		renderError(w, http.StatusNotFound, fmt.Errorf("%w: %s", asset.ErrNotFound, rel))
		return asset.Asset{}, false
	}
	return a, true
}
