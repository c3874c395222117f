package rpc

import (
	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/handle"
	"github.com/conduit-lang/assetforge/internal/host"
	"github.com/conduit-lang/assetforge/internal/modeldoc"
)

// Methods served to clients
const (
	MethodAssetRegister                   = "Asset.Register"
	MethodAssetUnregister                 = "Asset.Unregister"
	MethodAssetGet                        = "Asset.Get"
	MethodAssetList                       = "Asset.List"
	MethodAssetFindByFilename             = "Asset.FindByFilename"
	MethodAssetFindByRelativePath         = "Asset.FindByRelativePath"
	MethodAssetRecordOpen                 = "Asset.RecordOpen"
	MethodAssetCache                      = "Asset.Cache"
	MethodAssetUncache                    = "Asset.Uncache"
	MethodAssetIsCached                   = "Asset.IsCached"
	MethodAssetHasSourceFile              = "Asset.HasSourceFile"
	MethodAssetHasCompiledFile            = "Asset.HasCompiledFile"
	MethodAssetIsCompiled                 = "Asset.IsCompiled"
	MethodAssetIsCompiledAndUpToDate      = "Asset.IsCompiledAndUpToDate"
	MethodAssetIsCompileFailed            = "Asset.IsCompileFailed"
	MethodAssetGetCompileStateReason      = "Asset.GetCompileStateReason"
	MethodAssetGetDependencies            = "Asset.GetDependencies"
	MethodAssetGetDependents              = "Asset.GetDependents"
	MethodAssetGetParents                 = "Asset.GetParents"
	MethodAssetGetChildren                = "Asset.GetChildren"
	MethodAssetGetReferences              = "Asset.GetReferences"
	MethodAssetGetReferencers             = "Asset.GetReferencers"
	MethodAssetNeedAnyDependencyUpdate    = "Asset.NeedAnyDependencyUpdate"
	MethodAssetCompileIfNeeded            = "Asset.CompileIfNeeded"
	MethodAssetRecompileAsset             = "Asset.RecompileAsset"
	MethodAssetOnDemandRecompile          = "Asset.OnDemandRecompile"
	MethodAssetSetInMemoryReplacement     = "Asset.SetInMemoryReplacement"
	MethodAssetDiscardInMemoryReplacement = "Asset.DiscardInMemoryReplacement"
	MethodAssetAddRelatedFile             = "Asset.AddRelatedFile"
	MethodAssetAddInputDependency         = "Asset.AddInputDependency"
	MethodAssetRenderThumbnail            = "Asset.RenderThumbnail"

	MethodAssetTypeList = "AssetType.List"

	MethodSystemRunFrame          = "System.RunFrame"
	MethodSystemScan              = "System.Scan"
	MethodSystemOpenPicker        = "System.OpenPicker"
	MethodSystemPopulateAssetMenu = "System.PopulateAssetMenu"
	MethodSystemInvokeMenuItem    = "System.InvokeMenuItem"

	MethodHostConfigure      = "Host.Configure"
	MethodHostPickerSelected = "Host.PickerSelected"

	MethodModelDocCreate       = "ModelDoc.Create"
	MethodModelDocAddVertices  = "ModelDoc.AddVertices"
	MethodModelDocSetPositions = "ModelDoc.SetPositions"
	MethodModelDocSetTexCoords = "ModelDoc.SetTexCoords"
	MethodModelDocSetNormals   = "ModelDoc.SetNormals"
	MethodModelDocAddFaceGroup = "ModelDoc.AddFaceGroup"
	MethodModelDocAddFace      = "ModelDoc.AddFace"
	MethodModelDocSaveToFile   = "ModelDoc.SaveToFile"
	MethodModelDocDestroy      = "ModelDoc.Destroy"

	MethodContextSource                      = "CompilerContext.Source"
	MethodContextAsset                       = "CompilerContext.Asset"
	MethodContextSetExtension                = "CompilerContext.SetExtension"
	MethodContextSetCompiler                 = "CompilerContext.SetCompiler"
	MethodContextSpecifyResourceVersion      = "CompilerContext.SpecifyResourceVersion"
	MethodContextRegisterReference           = "CompilerContext.RegisterReference"
	MethodContextRegisterInputFileDependency = "CompilerContext.RegisterInputFileDependency"
	MethodContextRegisterSpecialDependency   = "CompilerContext.RegisterSpecialDependency"
	MethodContextWriteBlock                  = "CompilerContext.WriteBlock"
	MethodContextCreateChildContext          = "CompilerContext.CreateChildContext"
)

// Methods the server invokes on connected clients
const (
	MethodHostAssetAdded                    = "Host.AssetAdded"
	MethodHostAssetRemoved                  = "Host.AssetRemoved"
	MethodHostAssetChanged                  = "Host.AssetChanged"
	MethodHostAssetScanComplete             = "Host.AssetScanComplete"
	MethodHostInitializeCompilerForFilename = "Host.InitializeCompilerForFilename"
	MethodHostTryManagedCompile             = "Host.TryManagedCompile"
	MethodHostOnDemandRecompile             = "Host.OnDemandRecompile"
	MethodHostOnThumbnailGenerated          = "Host.OnThumbnailGenerated"
	MethodHostOpenPicker                    = "Host.OpenPicker"
	MethodHostPopulateAssetMenu             = "Host.PopulateAssetMenu"
	MethodHostMenuItemInvoked               = "Host.MenuItemInvoked"
)

// HandleParams addresses one asset
type HandleParams struct {
	Handle handle.Handle `json:"handle"`
}

// PathParams names a file, absolute or relative to the content root
type PathParams struct {
	Path string `json:"path"`
}

// RecordOpenParams addresses an asset by handle or, when Path is set, by file name
type RecordOpenParams struct {
	Handle handle.Handle `json:"handle"`
	Path   string        `json:"path,omitempty"`
}

type CacheParams struct {
	Handle   handle.Handle `json:"handle"`
	Blocking bool          `json:"blocking"`
}

type DependencyParams struct {
	Handle handle.Handle `json:"handle"`
	Deep   bool          `json:"deep"`
}

type RecompileParams struct {
	Handle handle.Handle `json:"handle"`
	Full   bool          `json:"full"`
}

type OnDemandRecompileParams struct {
	Handle handle.Handle `json:"handle"`
	Reason string        `json:"reason"`
}

// ReplacementParams carries replacement source bytes, base64 on the wire
type ReplacementParams struct {
	Handle handle.Handle `json:"handle"`
	Data   []byte        `json:"data"`
}

type FileParams struct {
	Handle handle.Handle `json:"handle"`
	Path   string        `json:"path"`
}

type ThumbnailParams struct {
	Handle handle.Handle `json:"handle"`
	Width  int           `json:"width,omitempty"`
	Height int           `json:"height,omitempty"`
}

// ThumbnailReply carries the request id later echoed by Host.OnThumbnailGenerated
type ThumbnailReply struct {
	Started   bool   `json:"started"`
	RequestID string `json:"request_id,omitempty"`
}

// PickerParams is host.PickerOptions without the callback
type PickerParams struct {
	RequestID     string        `json:"request_id,omitempty"`
	ParentWidget  uint64        `json:"parent_widget,omitempty"`
	AllowedTypes  []string      `json:"allowed_types,omitempty"`
	ViewMode      host.ViewMode `json:"view_mode"`
	Selected      handle.Handle `json:"selected"`
	Title         string        `json:"title,omitempty"`
	SettingsName  string        `json:"settings_name,omitempty"`
	AllowCloud    bool          `json:"allow_cloud,omitempty"`
	InitialSearch string        `json:"initial_search,omitempty"`
}

func pickerParams(opts host.PickerOptions) PickerParams {
	return PickerParams{
		RequestID:     opts.RequestID,
		ParentWidget:  opts.ParentWidget,
		AllowedTypes:  opts.AllowedTypes,
		ViewMode:      opts.ViewMode,
		Selected:      opts.Selected,
		Title:         opts.Title,
		SettingsName:  opts.SettingsName,
		AllowCloud:    opts.AllowCloud,
		InitialSearch: opts.InitialSearch,
	}
}

func (p PickerParams) options() host.PickerOptions {
	return host.PickerOptions{
		RequestID:     p.RequestID,
		ParentWidget:  p.ParentWidget,
		AllowedTypes:  p.AllowedTypes,
		ViewMode:      p.ViewMode,
		Selected:      p.Selected,
		Title:         p.Title,
		SettingsName:  p.SettingsName,
		AllowCloud:    p.AllowCloud,
		InitialSearch: p.InitialSearch,
	}
}

type PickerSelectedParams struct {
	RequestID string        `json:"request_id"`
	Handle    handle.Handle `json:"handle"`
}

type MenuParams struct {
	Selection []handle.Handle `json:"selection"`
}

// MenuReply lists the items of a populated menu. MenuID addresses the menu
// in System.InvokeMenuItem until the next menu is populated.
type MenuReply struct {
	MenuID string          `json:"menu_id"`
	Items  []host.MenuItem `json:"items"`
}

type InvokeMenuItemParams struct {
	MenuID string `json:"menu_id"`
	ItemID string `json:"item_id"`
}

// ConfigureParams opts a client into compiler callbacks
type ConfigureParams struct {
	// ManagedTypes are the asset type ids the client wants offered through
	// Host.TryManagedCompile
	ManagedTypes []string `json:"managed_types"`
	// Initialize asks for Host.InitializeCompilerForFilename calls
	Initialize bool `json:"initialize"`
}

type AddVerticesParams struct {
	Handle handle.Handle `json:"handle"`
	Count  int           `json:"count"`
}

type Vec3Params struct {
	Handle handle.Handle   `json:"handle"`
	Values []modeldoc.Vec3 `json:"values"`
}

type Vec2Params struct {
	Handle handle.Handle   `json:"handle"`
	Values []modeldoc.Vec2 `json:"values"`
}

type FaceGroupParams struct {
	Handle   handle.Handle `json:"handle"`
	Name     string        `json:"name"`
	Material string        `json:"material,omitempty"`
}

type FaceParams struct {
	Handle  handle.Handle `json:"handle"`
	Group   int           `json:"group"`
	Indices []int         `json:"indices"`
}

type SaveParams struct {
	Handle handle.Handle `json:"handle"`
	Path   string        `json:"path"`
}

// ContextParams addresses a live compiler context
type ContextParams struct {
	Context handle.Handle `json:"context"`
}

type ContextStringParams struct {
	Context handle.Handle `json:"context"`
	Value   string        `json:"value"`
}

type ContextVersionParams struct {
	Context handle.Handle `json:"context"`
	Version int           `json:"version"`
}

type ContextInputParams struct {
	Context handle.Handle       `json:"context"`
	Path    string              `json:"path"`
	Flags   compiler.InputFlags `json:"flags"`
}

type ContextSpecialParams struct {
	Context     handle.Handle `json:"context"`
	Tag         string        `json:"tag"`
	UserData    string        `json:"user_data"`
	Fingerprint string        `json:"fingerprint"`
}

type ContextBlockParams struct {
	Context handle.Handle `json:"context"`
	Name    string        `json:"name"`
	Data    []byte        `json:"data"`
}

// AssetNotification is sent with Host.AssetAdded, Host.AssetRemoved and
// Host.AssetChanged
type AssetNotification struct {
	Asset asset.Asset `json:"asset"`
}

type RecompileNotification struct {
	Asset  asset.Asset `json:"asset"`
	Reason string      `json:"reason"`
}

// ThumbnailNotification carries the rendered thumbnail as PNG
type ThumbnailNotification struct {
	Asset     asset.Asset `json:"asset"`
	RequestID string      `json:"request_id"`
	PNG       []byte      `json:"png"`
}

// ManagedCompileParams offers a compile to the client. The client drives it
// through CompilerContext.* calls on Context before replying.
type ManagedCompileParams struct {
	Context handle.Handle `json:"context"`
	Asset   asset.Asset   `json:"asset"`
}

type ManagedCompileReply struct {
	Handled bool `json:"handled"`
}

type MenuPopulateParams struct {
	Selection []asset.Asset `json:"selection"`
}

type MenuItemInvokedParams struct {
	ItemID    string          `json:"item_id"`
	Selection []handle.Handle `json:"selection"`
}
