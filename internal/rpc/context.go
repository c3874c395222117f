package rpc

import (
	"context"

	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/handle"
)

// CompilerContext methods let a client drive a managed compile. They are
// valid only while the compile that owns the context is running.
func (s *Server) contextRoutes() map[string]method {
	return map[string]method{
		MethodContextSource:                      bind(s.contextSource),
		MethodContextAsset:                       bind(s.contextAsset),
		MethodContextSetExtension:                bind(s.contextSetExtension),
		MethodContextSetCompiler:                 bind(s.contextSetCompiler),
		MethodContextSpecifyResourceVersion:      bind(s.contextSpecifyResourceVersion),
		MethodContextRegisterReference:           bind(s.contextRegisterReference),
		MethodContextRegisterInputFileDependency: bind(s.contextRegisterInput),
		MethodContextRegisterSpecialDependency:   bind(s.contextRegisterSpecial),
		MethodContextWriteBlock:                  bind(s.contextWriteBlock),
		MethodContextCreateChildContext:          bind(s.contextCreateChild),
	}
}

func (s *Server) lookupContext(h handle.Handle) (*compiler.ResourceContext, error) {
	rc, ok := s.svc.Orchestrator().LookupContext(h)
	if !ok {
		return nil, invalidParams("unknown compiler context %s", h)
	}
	return rc, nil
}

// withContext runs fn on a live context and answers true
func (s *Server) withContext(h handle.Handle, fn func(*compiler.ResourceContext) error) (interface{}, error) {
	rc, err := s.lookupContext(h)
	if err != nil {
		return nil, err
	}
	if err := fn(rc); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) contextSource(_ context.Context, _ *session, p ContextParams) (interface{}, error) {
	rc, err := s.lookupContext(p.Context)
	if err != nil {
		return nil, err
	}
	return rc.Source(), nil
}

func (s *Server) contextAsset(_ context.Context, _ *session, p ContextParams) (interface{}, error) {
	rc, err := s.lookupContext(p.Context)
	if err != nil {
		return nil, err
	}
	return rc.Asset(), nil
}

func (s *Server) contextSetExtension(_ context.Context, _ *session, p ContextStringParams) (interface{}, error) {
	return s.withContext(p.Context, func(rc *compiler.ResourceContext) error { return rc.SetExtension(p.Value) })
}

func (s *Server) contextSetCompiler(_ context.Context, _ *session, p ContextStringParams) (interface{}, error) {
	return s.withContext(p.Context, func(rc *compiler.ResourceContext) error { return rc.SetCompiler(p.Value) })
}

func (s *Server) contextSpecifyResourceVersion(_ context.Context, _ *session, p ContextVersionParams) (interface{}, error) {
	return s.withContext(p.Context, func(rc *compiler.ResourceContext) error { return rc.SpecifyResourceVersion(p.Version) })
}

// contextRegisterReference answers whether the referenced file is a
// registered asset; unresolved references are still recorded
func (s *Server) contextRegisterReference(_ context.Context, _ *session, p ContextStringParams) (interface{}, error) {
	rc, err := s.lookupContext(p.Context)
	if err != nil {
		return nil, err
	}
	return rc.RegisterReference(p.Value), nil
}

func (s *Server) contextRegisterInput(_ context.Context, _ *session, p ContextInputParams) (interface{}, error) {
	return s.withContext(p.Context, func(rc *compiler.ResourceContext) error {
		return rc.RegisterInputFileDependency(p.Path, p.Flags)
	})
}

func (s *Server) contextRegisterSpecial(_ context.Context, _ *session, p ContextSpecialParams) (interface{}, error) {
	return s.withContext(p.Context, func(rc *compiler.ResourceContext) error {
		return rc.RegisterSpecialDependency(p.Tag, p.UserData, p.Fingerprint)
	})
}

func (s *Server) contextWriteBlock(_ context.Context, _ *session, p ContextBlockParams) (interface{}, error) {
	return s.withContext(p.Context, func(rc *compiler.ResourceContext) error { return rc.WriteBlock(p.Name, p.Data) })
}

func (s *Server) contextCreateChild(_ context.Context, _ *session, p ContextStringParams) (interface{}, error) {
	rc, err := s.lookupContext(p.Context)
	if err != nil {
		return nil, err
	}
	child, err := rc.CreateChildContext(p.Value)
	if err != nil {
		return nil, err
	}
	return child.Handle(), nil
}
