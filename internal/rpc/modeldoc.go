package rpc

import (
	"context"
	"path/filepath"

	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/modeldoc"
)

// Model documents are built by clients call by call and written with
// ModelDoc.SaveToFile. Unknown handles answer false; validation and I/O
// failures come back as errors carrying the reason.
func (s *Server) modelDocRoutes() map[string]method {
	return map[string]method{
		MethodModelDocCreate:       bind(s.createDoc),
		MethodModelDocAddVertices:  bind(s.addVertices),
		MethodModelDocSetPositions: bind(s.setPositions),
		MethodModelDocSetTexCoords: bind(s.setTexCoords),
		MethodModelDocSetNormals:   bind(s.setNormals),
		MethodModelDocAddFaceGroup: bind(s.addFaceGroup),
		MethodModelDocAddFace:      bind(s.addFace),
		MethodModelDocSaveToFile:   bind(s.saveDoc),
		MethodModelDocDestroy:      bind(s.destroyDoc),
	}
}

func (s *Server) doc(h handle.Handle) (*modeldoc.Doc, bool) {
	s.docsMu.Lock()
	defer s.docsMu.Unlock()
	return s.docs.Get(h)
}

// withDoc runs fn on the document h and reports success
func (s *Server) withDoc(h handle.Handle, fn func(*modeldoc.Doc) error) (interface{}, error) {
	d, ok := s.doc(h)
	if !ok {
		return false, nil
	}
	if err := fn(d); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Server) createDoc(_ context.Context, sess *session, _ empty) (interface{}, error) {
	s.docsMu.Lock()
	h := s.docs.Insert(modeldoc.New())
	s.docsMu.Unlock()

	sess.mu.Lock()
	if sess.docs != nil {
		sess.docs[h] = true
	}
	sess.mu.Unlock()
	return h, nil
}

func (s *Server) addVertices(_ context.Context, _ *session, p AddVerticesParams) (interface{}, error) {
	return s.withDoc(p.Handle, func(d *modeldoc.Doc) error { return d.AddVertices(p.Count) })
}

func (s *Server) setPositions(_ context.Context, _ *session, p Vec3Params) (interface{}, error) {
	return s.withDoc(p.Handle, func(d *modeldoc.Doc) error { return d.SetPositions(p.Values) })
}

func (s *Server) setTexCoords(_ context.Context, _ *session, p Vec2Params) (interface{}, error) {
	return s.withDoc(p.Handle, func(d *modeldoc.Doc) error { return d.SetTexCoords(p.Values) })
}

func (s *Server) setNormals(_ context.Context, _ *session, p Vec3Params) (interface{}, error) {
	return s.withDoc(p.Handle, func(d *modeldoc.Doc) error { return d.SetNormals(p.Values) })
}

// addFaceGroup answers the new group's index, or -1 for an unknown document
func (s *Server) addFaceGroup(_ context.Context, _ *session, p FaceGroupParams) (interface{}, error) {
	d, ok := s.doc(p.Handle)
	if !ok {
		return -1, nil
	}
	return d.AddFaceGroup(p.Name, p.Material)
}

func (s *Server) addFace(_ context.Context, _ *session, p FaceParams) (interface{}, error) {
	return s.withDoc(p.Handle, func(d *modeldoc.Doc) error { return d.AddFace(p.Group, p.Indices) })
}

// saveDoc writes the document. Relative paths are under the content root.
func (s *Server) saveDoc(_ context.Context, _ *session, p SaveParams) (interface{}, error) {
	if p.Path == "" {
		return nil, invalidParams("path is required")
	}
	path := p.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.svc.Registry().ContentRoot(), filepath.FromSlash(path))
	}
	return s.withDoc(p.Handle, func(d *modeldoc.Doc) error { return d.SaveToFile(path) })
}

func (s *Server) destroyDoc(_ context.Context, sess *session, p HandleParams) (interface{}, error) {
	s.docsMu.Lock()
	_, ok := s.docs.Remove(p.Handle)
	s.docsMu.Unlock()

	sess.mu.Lock()
	delete(sess.docs, p.Handle)
	sess.mu.Unlock()
	return ok, nil
}
