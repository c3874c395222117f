package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
	"github.com/conduit-lang/assetforge/internal/preview"
)

// Built-in asset menu item ids
const (
	MenuRecompile = "asset.recompile"
	MenuCache     = "asset.cache"
	MenuUncache   = "asset.uncache"
	MenuThumbnail = "asset.thumbnail"
)

// OpenPicker forwards a picker request to the hosts and returns its request
// id. The selection arrives later through opts.OnSelect.
func (s *Service) OpenPicker(opts host.PickerOptions) string {
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}
	s.hosts.OpenPicker(opts)
	return opts.RequestID
}

// PopulateAssetMenu builds the context menu for a selection. The service adds
// its own items first, then every host may append more.
func (s *Service) PopulateAssetMenu(selection []handle.Handle) *host.Menu {
	var assets []asset.Asset
	for _, h := range selection {
		if a, ok := s.registry.Get(h); ok {
			assets = append(assets, a)
		}
	}

	menu := &host.Menu{}
	if len(assets) == 0 {
		s.hosts.PopulateAssetMenu(menu, assets)
		return menu
	}

	menu.Add(MenuRecompile, "Recompile", func() {
		for _, a := range assets {
			s.orch.OnDemandRecompile(a.Handle, "menu")
		}
	})

	anyCached, anyUncached := false, false
	for _, a := range assets {
		if a.Cached {
			anyCached = true
		} else {
			anyUncached = true
		}
	}
	if anyUncached {
		menu.Add(MenuCache, "Load", func() {
			for _, a := range assets {
				if _, err := s.Cache(context.Background(), a.Handle, false); err != nil {
					s.logger.Warn("failed to load asset", zap.String("asset", a.RelativePath), zap.Error(err))
				}
			}
		})
	}
	if anyCached {
		menu.Add(MenuUncache, "Unload", func() {
			for _, a := range assets {
				s.Uncache(context.Background(), a.Handle)
			}
		})
	}
	if len(assets) == 1 {
		a := assets[0]
		menu.Add(MenuThumbnail, "Regenerate Thumbnail", func() {
			if _, err := s.previews.Render(a.Handle, preview.Pixmap{}); err != nil {
				s.logger.Warn("failed to request thumbnail", zap.String("asset", a.RelativePath), zap.Error(err))
			}
		})
	}

	s.hosts.PopulateAssetMenu(menu, assets)
	return menu
}
