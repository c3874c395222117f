package rpc

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.uber.org/zap"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
	"github.com/conduit-lang/assetforge/internal/preview"
)

// RemoteHost implements host.Host for a connected client. Lifecycle events
// travel as notifications; compiler hooks and menus are calls the client
// must answer.
type RemoteHost struct {
	conn    jsonrpc2.Conn
	logger  *zap.Logger
	timeout time.Duration

	managed    map[string]bool
	initialize bool
	pickers    map[string]func(asset.Asset)
	mu         sync.Mutex
}

var _ host.Host = (*RemoteHost)(nil)

// NewRemoteHost wraps conn. Calls to the client give up after timeout.
func NewRemoteHost(conn jsonrpc2.Conn, logger *zap.Logger, timeout time.Duration) *RemoteHost {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteHost{
		conn:    conn,
		logger:  logger,
		timeout: timeout,
		managed: make(map[string]bool),
		pickers: make(map[string]func(asset.Asset)),
	}
}

// Configure replaces the client's compiler callback preferences
func (h *RemoteHost) Configure(p ConfigureParams) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.managed = make(map[string]bool, len(p.ManagedTypes))
	for _, t := range p.ManagedTypes {
		h.managed[t] = true
	}
	h.initialize = p.Initialize
}

func (h *RemoteHost) notify(method string, params interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	if err := h.conn.Notify(ctx, method, params); err != nil {
		h.logger.Debug("notification failed", zap.String("method", method), zap.Error(err))
	}
}

func (h *RemoteHost) call(ctx context.Context, method string, params, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if _, err := h.conn.Call(ctx, method, params, result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (h *RemoteHost) AssetAdded(a asset.Asset) {
	h.notify(MethodHostAssetAdded, AssetNotification{Asset: a})
}

func (h *RemoteHost) AssetRemoved(a asset.Asset) {
	h.notify(MethodHostAssetRemoved, AssetNotification{Asset: a})
}

func (h *RemoteHost) AssetChanged(a asset.Asset) {
	h.notify(MethodHostAssetChanged, AssetNotification{Asset: a})
}

func (h *RemoteHost) AssetScanComplete(result asset.ScanResult) {
	h.notify(MethodHostAssetScanComplete, result)
}

func (h *RemoteHost) InitializeCompilerForFilename(filename string) {
	h.mu.Lock()
	enabled := h.initialize
	h.mu.Unlock()
	if !enabled {
		return
	}
	if err := h.call(context.Background(), MethodHostInitializeCompilerForFilename, PathParams{Path: filename}, nil); err != nil {
		h.logger.Warn("client failed to initialize compiler", zap.String("file", filename), zap.Error(err))
	}
}

// TryManagedCompile offers the compile to the client when it manages the
// asset's type. The client writes the output through CompilerContext calls
// on the offered context before it replies.
func (h *RemoteHost) TryManagedCompile(ctx context.Context, req host.CompileRequest) (bool, error) {
	a := req.Asset()
	h.mu.Lock()
	managed := h.managed[a.TypeID]
	h.mu.Unlock()
	if !managed {
		return false, nil
	}

	var reply ManagedCompileReply
	if err := h.call(ctx, MethodHostTryManagedCompile, ManagedCompileParams{Context: req.Handle(), Asset: a}, &reply); err != nil {
		return false, err
	}
	return reply.Handled, nil
}

func (h *RemoteHost) OnDemandRecompile(a asset.Asset, reason string) {
	h.notify(MethodHostOnDemandRecompile, RecompileNotification{Asset: a, Reason: reason})
}

func (h *RemoteHost) OnThumbnailGenerated(a asset.Asset, requestID string, img image.Image) {
	data, err := preview.EncodePNG(img)
	if err != nil {
		h.logger.Warn("failed to encode thumbnail", zap.String("asset", a.RelativePath), zap.Error(err))
		return
	}
	h.notify(MethodHostOnThumbnailGenerated, ThumbnailNotification{Asset: a, RequestID: requestID, PNG: data})
}

// OpenPicker forwards the picker to the client. The selection comes back
// through Host.PickerSelected.
func (h *RemoteHost) OpenPicker(opts host.PickerOptions) {
	if opts.OnSelect != nil {
		h.mu.Lock()
		h.pickers[opts.RequestID] = opts.OnSelect
		h.mu.Unlock()
	}
	h.notify(MethodHostOpenPicker, pickerParams(opts))
}

// PickerSelected resolves an open picker. It reports false for unknown
// request ids; each picker resolves once.
func (h *RemoteHost) PickerSelected(requestID string, a asset.Asset) bool {
	h.mu.Lock()
	onSelect, ok := h.pickers[requestID]
	delete(h.pickers, requestID)
	h.mu.Unlock()
	if !ok {
		return false
	}
	onSelect(a)
	return true
}

// PopulateAssetMenu asks the client for its menu items. Invoking one of them
// notifies the client through Host.MenuItemInvoked.
func (h *RemoteHost) PopulateAssetMenu(menu *host.Menu, selection []asset.Asset) {
	var items []host.MenuItem
	if err := h.call(context.Background(), MethodHostPopulateAssetMenu, MenuPopulateParams{Selection: selection}, &items); err != nil {
		h.logger.Debug("client did not populate menu", zap.Error(err))
		return
	}

	handles := make([]handle.Handle, len(selection))
	for i, a := range selection {
		handles[i] = a.Handle
	}
	for _, item := range items {
		id := item.ID
		menu.Add(id, item.Label, func() {
			h.notify(MethodHostMenuItemInvoked, MenuItemInvokedParams{ItemID: id, Selection: handles})
		})
	}
}
