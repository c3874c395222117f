// Package host defines the capabilities the embedding application provides to
// the asset system. A Host is handed to the service at construction; there is
// no late registration of individual callbacks.
package host

import (
	"context"
	"image"
	"sync"

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/handle"
)

// CompileRequest is what a managed compiler sees of a compile job. In-process
// hosts may type-assert it to the compiler's concrete context type; remote
// hosts address it by Handle.
type CompileRequest interface {
	Handle() handle.Handle
	Asset() asset.Asset
}

// ViewMode selects how a picker presents assets
type ViewMode int

const (
	ViewIcons ViewMode = iota
	ViewList
	ViewDetails
)

func (v ViewMode) String() string {
	switch v {
	case ViewList:
		return "list"
	case ViewDetails:
		return "details"
	default:
		return "icons"
	}
}

// PickerOptions configures an asset picker. Opening a picker is fire and
// forget; the selection arrives through OnSelect.
type PickerOptions struct {
	RequestID     string
	ParentWidget  uint64
	AllowedTypes  []string
	OnSelect      func(asset.Asset)
	ViewMode      ViewMode
	Selected      handle.Handle
	Title         string
	SettingsName  string
	AllowCloud    bool
	InitialSearch string
}

// MenuItem is one entry of an asset context menu
type MenuItem struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Action func() `json:"-"`
}

// Menu is an asset context menu under construction
type Menu struct {
	Items []MenuItem
	mu    sync.Mutex
}

// Add appends an item
func (m *Menu) Add(id, label string, action func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items = append(m.Items, MenuItem{ID: id, Label: label, Action: action})
}

// Find returns the item with the given id
func (m *Menu) Find(id string) (MenuItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.Items {
		if item.ID == id {
			return item, true
		}
	}
	return MenuItem{}, false
}

// Host is implemented by the embedding application
type Host interface {
	asset.Listener

	AssetScanComplete(result asset.ScanResult)

	// InitializeCompilerForFilename runs once per file before its first compile
	InitializeCompilerForFilename(filename string)

	// TryManagedCompile gives the host the first chance to compile an asset.
	// Returning handled=false falls through to the registered compiler.
	TryManagedCompile(ctx context.Context, req CompileRequest) (handled bool, err error)

	// OnDemandRecompile reports an externally triggered recompile
	OnDemandRecompile(a asset.Asset, reason string)

	// OnThumbnailGenerated is called at most once per thumbnail request
	OnThumbnailGenerated(a asset.Asset, requestID string, img image.Image)

	OpenPicker(opts PickerOptions)
	PopulateAssetMenu(menu *Menu, selection []asset.Asset)
}

// Nop implements Host with no behaviour. Embed it to implement a subset.
type Nop struct{}

func (Nop) AssetAdded(asset.Asset)                {}
func (Nop) AssetRemoved(asset.Asset)              {}
func (Nop) AssetChanged(asset.Asset)              {}
func (Nop) AssetScanComplete(asset.ScanResult)    {}
func (Nop) InitializeCompilerForFilename(string)  {}
func (Nop) OnDemandRecompile(asset.Asset, string) {}

func (Nop) TryManagedCompile(context.Context, CompileRequest) (bool, error) {
	return false, nil
}

func (Nop) OnThumbnailGenerated(asset.Asset, string, image.Image) {}
func (Nop) OpenPicker(PickerOptions)                              {}
func (Nop) PopulateAssetMenu(*Menu, []asset.Asset)                {}

var _ Host = Nop{}
