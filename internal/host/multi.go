package host

import (
	"context"
	"image"
	"sync"

	"github.com/conduit-lang/assetforge/internal/asset"
)

// Multi fans host calls out to a changing set of hosts. RPC connections join
// and leave at runtime, so membership is guarded.
type Multi struct {
	hosts []Host
	mu    sync.RWMutex
}

// NewMulti creates a Multi over the given hosts; nil entries are ignored
func NewMulti(hosts ...Host) *Multi {
	m := &Multi{}
	for _, h := range hosts {
		m.Add(h)
	}
	return m
}

// Add joins a host
func (m *Multi) Add(h Host) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hosts = append(m.hosts, h)
}

// Remove drops a host
func (m *Multi) Remove(h Host) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.hosts {
		if existing == h {
			m.hosts = append(m.hosts[:i:i], m.hosts[i+1:]...)
			return
		}
	}
}

// Len returns the number of member hosts
func (m *Multi) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hosts)
}

func (m *Multi) snapshot() []Host {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Host(nil), m.hosts...)
}

func (m *Multi) AssetAdded(a asset.Asset) {
	for _, h := range m.snapshot() {
		h.AssetAdded(a)
	}
}

func (m *Multi) AssetRemoved(a asset.Asset) {
	for _, h := range m.snapshot() {
		h.AssetRemoved(a)
	}
}

func (m *Multi) AssetChanged(a asset.Asset) {
	for _, h := range m.snapshot() {
		h.AssetChanged(a)
	}
}

func (m *Multi) AssetScanComplete(result asset.ScanResult) {
	for _, h := range m.snapshot() {
		h.AssetScanComplete(result)
	}
}

func (m *Multi) InitializeCompilerForFilename(filename string) {
	for _, h := range m.snapshot() {
		h.InitializeCompilerForFilename(filename)
	}
}

// TryManagedCompile asks each host in turn; the first to handle it wins
func (m *Multi) TryManagedCompile(ctx context.Context, req CompileRequest) (bool, error) {
	for _, h := range m.snapshot() {
		handled, err := h.TryManagedCompile(ctx, req)
		if handled || err != nil {
			return handled, err
		}
	}
	return false, nil
}

func (m *Multi) OnDemandRecompile(a asset.Asset, reason string) {
	for _, h := range m.snapshot() {
		h.OnDemandRecompile(a, reason)
	}
}

func (m *Multi) OnThumbnailGenerated(a asset.Asset, requestID string, img image.Image) {
	for _, h := range m.snapshot() {
		h.OnThumbnailGenerated(a, requestID, img)
	}
}

func (m *Multi) OpenPicker(opts PickerOptions) {
	for _, h := range m.snapshot() {
		h.OpenPicker(opts)
	}
}

func (m *Multi) PopulateAssetMenu(menu *Menu, selection []asset.Asset) {
	for _, h := range m.snapshot() {
		h.PopulateAssetMenu(menu, selection)
	}
}

var _ Host = (*Multi)(nil)
