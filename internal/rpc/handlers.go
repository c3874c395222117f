package rpc

import (
	"context"
	"errors"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
	"github.com/conduit-lang/assetforge/internal/preview"
	"github.com/conduit-lang/assetforge/internal/service"
)

func (s *Server) routes() map[string]method {
	m := map[string]method{
		MethodAssetRegister:           bind(s.register),
		MethodAssetUnregister:         bind(s.unregister),
		MethodAssetGet:                bind(s.get),
		MethodAssetList:               bind(s.list),
		MethodAssetFindByFilename:     bind(s.findByFilename),
		MethodAssetFindByRelativePath: bind(s.findByRelativePath),
		MethodAssetRecordOpen:         bind(s.recordOpen),
		MethodAssetCache:              bind(s.cache),
		MethodAssetUncache:            bind(s.uncache),

		MethodAssetIsCached:                query(s.svc.IsCached),
		MethodAssetHasSourceFile:           query(s.svc.HasSourceFile),
		MethodAssetHasCompiledFile:         query(s.svc.HasCompiledFile),
		MethodAssetIsCompiled:              query(s.svc.IsCompiled),
		MethodAssetIsCompiledAndUpToDate:   query(s.svc.IsCompiledAndUpToDate),
		MethodAssetIsCompileFailed:         query(s.svc.IsCompileFailed),
		MethodAssetNeedAnyDependencyUpdate: query(s.svc.NeedAnyDependencyUpdate),
		MethodAssetGetCompileStateReason:   bind(s.compileStateReason),

		MethodAssetGetDependencies: s.dependencies(service.QueryDependencies),
		MethodAssetGetDependents:   s.dependencies(service.QueryDependents),
		MethodAssetGetParents:      s.dependencies(service.QueryParents),
		MethodAssetGetChildren:     s.dependencies(service.QueryChildren),
		MethodAssetGetReferences:   s.dependencies(service.QueryReferences),
		MethodAssetGetReferencers:  s.dependencies(service.QueryReferencers),

		MethodAssetCompileIfNeeded:            bind(s.compileIfNeeded),
		MethodAssetRecompileAsset:             bind(s.recompileAsset),
		MethodAssetOnDemandRecompile:          bind(s.onDemandRecompile),
		MethodAssetSetInMemoryReplacement:     bind(s.setInMemoryReplacement),
		MethodAssetDiscardInMemoryReplacement: bind(s.discardInMemoryReplacement),
		MethodAssetAddRelatedFile:             bind(s.addRelatedFile),
		MethodAssetAddInputDependency:         bind(s.addInputDependency),
		MethodAssetRenderThumbnail:            bind(s.renderThumbnail),

		MethodAssetTypeList: bind(s.listTypes),

		MethodSystemRunFrame:          bind(s.runFrame),
		MethodSystemScan:              bind(s.scan),
		MethodSystemOpenPicker:        bind(s.openPicker),
		MethodSystemPopulateAssetMenu: bind(s.populateAssetMenu),
		MethodSystemInvokeMenuItem:    bind(s.invokeMenuItem),

		MethodHostConfigure:      bind(s.configure),
		MethodHostPickerSelected: bind(s.pickerSelected),
	}
	for name, fn := range s.modelDocRoutes() {
		m[name] = fn
	}
	for name, fn := range s.contextRoutes() {
		m[name] = fn
	}
	return m
}

// query adapts a boolean status method
func query(fn func(handle.Handle) bool) method {
	return bind(func(_ context.Context, _ *session, p HandleParams) (interface{}, error) {
		return fn(p.Handle), nil
	})
}

// empty is the params of methods that take none
type empty struct{}

func (s *Server) register(_ context.Context, _ *session, p PathParams) (interface{}, error) {
	if p.Path == "" {
		return nil, invalidParams("path is required")
	}
	return s.svc.Register(p.Path)
}

func (s *Server) unregister(ctx context.Context, _ *session, p HandleParams) (interface{}, error) {
	return s.svc.Unregister(ctx, p.Handle), nil
}

// get answers null for unknown handles
func (s *Server) get(_ context.Context, _ *session, p HandleParams) (interface{}, error) {
	a, ok := s.svc.Get(p.Handle)
	if !ok {
		return nil, nil
	}
	return a, nil
}

func (s *Server) list(context.Context, *session, empty) (interface{}, error) {
	return s.svc.All(), nil
}

func (s *Server) findByFilename(_ context.Context, _ *session, p PathParams) (interface{}, error) {
	return s.svc.FindByFilename(p.Path), nil
}

func (s *Server) findByRelativePath(_ context.Context, _ *session, p PathParams) (interface{}, error) {
	return s.svc.FindByRelativePath(p.Path), nil
}

func (s *Server) recordOpen(ctx context.Context, _ *session, p RecordOpenParams) (interface{}, error) {
	if p.Path == "" {
		return s.svc.RecordOpen(ctx, p.Handle), nil
	}
	_, err := s.svc.RecordOpenByFilename(ctx, p.Path)
	return err == nil, nil
}

func (s *Server) cache(ctx context.Context, _ *session, p CacheParams) (interface{}, error) {
	ok, err := s.svc.Cache(ctx, p.Handle, p.Blocking)
	if errors.Is(err, asset.ErrNotFound) {
		return false, nil
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return false, nil
	}
	return ok, err
}

func (s *Server) uncache(ctx context.Context, _ *session, p HandleParams) (interface{}, error) {
	return s.svc.Uncache(ctx, p.Handle), nil
}

func (s *Server) compileStateReason(_ context.Context, _ *session, p HandleParams) (interface{}, error) {
	return s.svc.CompileStateReason(p.Handle), nil
}

func (s *Server) dependencies(q service.Query) method {
	return bind(func(_ context.Context, _ *session, p DependencyParams) (interface{}, error) {
		keys, err := s.svc.Dependencies(p.Handle, q, p.Deep)
		if errors.Is(err, asset.ErrNotFound) {
			return []handle.Handle{}, nil
		}
		if err != nil {
			return nil, err
		}
		handles := make([]handle.Handle, 0, len(keys))
		for _, k := range keys {
			if h := s.svc.FindByRelativePath(k); !h.IsNil() {
				handles = append(handles, h)
			}
		}
		return handles, nil
	})
}

// compileIfNeeded reports success; the failure reason is available through
// Asset.GetCompileStateReason
func (s *Server) compileIfNeeded(ctx context.Context, _ *session, p HandleParams) (interface{}, error) {
	res, _ := s.svc.CompileIfNeeded(ctx, p.Handle)
	return res != nil && res.Success, nil
}

func (s *Server) recompileAsset(ctx context.Context, _ *session, p RecompileParams) (interface{}, error) {
	res, _ := s.svc.RecompileAsset(ctx, p.Handle, p.Full)
	return res != nil && res.Success, nil
}

func (s *Server) onDemandRecompile(_ context.Context, _ *session, p OnDemandRecompileParams) (interface{}, error) {
	return s.svc.OnDemandRecompile(p.Handle, p.Reason), nil
}

func (s *Server) setInMemoryReplacement(_ context.Context, _ *session, p ReplacementParams) (interface{}, error) {
	return s.svc.SetInMemoryReplacement(p.Handle, p.Data), nil
}

func (s *Server) discardInMemoryReplacement(_ context.Context, _ *session, p HandleParams) (interface{}, error) {
	return s.svc.DiscardInMemoryReplacement(p.Handle), nil
}

func (s *Server) addRelatedFile(_ context.Context, _ *session, p FileParams) (interface{}, error) {
	return s.svc.AddRelatedFile(p.Handle, p.Path), nil
}

func (s *Server) addInputDependency(_ context.Context, _ *session, p FileParams) (interface{}, error) {
	return s.svc.AddInputDependency(p.Handle, p.Path), nil
}

// renderThumbnail starts a render. The image arrives later through
// Host.OnThumbnailGenerated carrying the returned request id, or never when
// the render fails or the asset goes away.
func (s *Server) renderThumbnail(_ context.Context, _ *session, p ThumbnailParams) (interface{}, error) {
	req, err := s.svc.RenderThumbnail(p.Handle, preview.Pixmap{Width: p.Width, Height: p.Height})
	if err != nil {
		return ThumbnailReply{}, nil
	}
	return ThumbnailReply{Started: true, RequestID: req.ID}, nil
}

func (s *Server) listTypes(context.Context, *session, empty) (interface{}, error) {
	return s.svc.Types().All(), nil
}

func (s *Server) runFrame(context.Context, *session, empty) (interface{}, error) {
	return s.svc.RunFrame(), nil
}

func (s *Server) scan(ctx context.Context, _ *session, _ empty) (interface{}, error) {
	return s.svc.Scan(ctx)
}

// openPicker asks every host, including the calling client, to show a
// picker. A selection counts as an open of the chosen asset.
func (s *Server) openPicker(_ context.Context, _ *session, p PickerParams) (interface{}, error) {
	opts := p.options()
	opts.OnSelect = func(a asset.Asset) {
		s.svc.RecordOpen(context.Background(), a.Handle)
	}
	return s.svc.OpenPicker(opts), nil
}

func (s *Server) populateAssetMenu(_ context.Context, sess *session, p MenuParams) (interface{}, error) {
	menu := s.svc.PopulateAssetMenu(p.Selection)
	id := sess.storeMenu(menu)
	items := menu.Items
	if items == nil {
		items = []host.MenuItem{}
	}
	return MenuReply{MenuID: id, Items: items}, nil
}

func (s *Server) invokeMenuItem(_ context.Context, sess *session, p InvokeMenuItemParams) (interface{}, error) {
	item, ok := sess.findMenuItem(p.MenuID, p.ItemID)
	if !ok || item.Action == nil {
		return false, nil
	}
	item.Action()
	return true, nil
}

func (s *Server) configure(_ context.Context, sess *session, p ConfigureParams) (interface{}, error) {
	for _, id := range p.ManagedTypes {
		if _, ok := s.svc.Types().ByID(id); !ok {
			return nil, invalidParams("unknown asset type %q", id)
		}
	}
	sess.host.Configure(p)
	return true, nil
}

func (s *Server) pickerSelected(_ context.Context, sess *session, p PickerSelectedParams) (interface{}, error) {
	a, ok := s.svc.Get(p.Handle)
	if !ok {
		return false, nil
	}
	return sess.host.PickerSelected(p.RequestID, a), nil
}
