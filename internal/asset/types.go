package asset

import (
	"fmt"
	"image/color"
	"sort"
	"strings"
	"sync"

	"github.com/conduit-lang/assetforge/internal/handle"
)

// TypeFlags describe capabilities of an asset type
type TypeFlags uint32

const (
	// TypeHasDependencies marks types whose compiles declare dependencies
	TypeHasDependencies TypeFlags = 1 << iota
	// TypeIsSimple marks types with no sub-resources
	TypeIsSimple
	// TypeHideByDefault hides the type in pickers unless requested
	TypeHideByDefault
	// TypeIgnoreCompiledState treats registered assets as always up to date
	TypeIgnoreCompiledState
)

// AssetType describes one kind of asset. It is immutable once registered.
type AssetType struct {
	Handle               handle.Handle `json:"handle"`
	ID                   string        `json:"id"`
	FriendlyName         string        `json:"friendly_name"`
	Extension            string        `json:"extension"`
	AdditionalExtensions []string      `json:"additional_extensions,omitempty"`
	Icon                 string        `json:"icon,omitempty"`
	Color                color.RGBA    `json:"color"`
	Category             string        `json:"category,omitempty"`
	Flags                TypeFlags     `json:"flags"`
}

// Has reports whether the type carries all flags in f
func (t AssetType) Has(f TypeFlags) bool {
	return t.Flags&f == f
}

// Extensions returns the primary extension followed by the additional ones
func (t AssetType) Extensions() []string {
	exts := make([]string, 0, 1+len(t.AdditionalExtensions))
	exts = append(exts, t.Extension)
	exts = append(exts, t.AdditionalExtensions...)
	return exts
}

// TypeRegistry holds the known asset types. Types are registered during
// startup; after Seal the registry is read-only.
type TypeRegistry struct {
	table  *handle.Table[AssetType]
	byID   map[string]handle.Handle
	byExt  map[string]handle.Handle
	sealed bool
	mu     sync.RWMutex
}

// NewTypeRegistry creates an empty type registry
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		table: handle.NewTable[AssetType](),
		byID:  make(map[string]handle.Handle),
		byExt: make(map[string]handle.Handle),
	}
}

// Register adds a type. Ids and extensions must be unique.
func (tr *TypeRegistry) Register(t AssetType) (handle.Handle, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.sealed {
		return handle.Nil, fmt.Errorf("type registry is sealed, cannot register %q", t.ID)
	}
	if t.ID == "" {
		return handle.Nil, fmt.Errorf("asset type id must not be empty")
	}
	if t.Extension == "" {
		return handle.Nil, fmt.Errorf("asset type %q has no extension", t.ID)
	}
	if _, exists := tr.byID[t.ID]; exists {
		return handle.Nil, fmt.Errorf("asset type %q already registered", t.ID)
	}

	exts := make([]string, 0, 1+len(t.AdditionalExtensions))
	for _, ext := range t.Extensions() {
		ext = normalizeExt(ext)
		if owner, exists := tr.byExt[ext]; exists {
			other, _ := tr.table.Get(owner)
			return handle.Nil, fmt.Errorf("extension %q of type %q already claimed by %q", ext, t.ID, other.ID)
		}
		exts = append(exts, ext)
	}

	t.Extension = exts[0]
	t.AdditionalExtensions = append([]string(nil), exts[1:]...)
	if t.FriendlyName == "" {
		t.FriendlyName = t.ID
	}

	h := tr.table.Insert(t)
	t.Handle = h
	tr.table.Set(h, t)

	tr.byID[t.ID] = h
	for _, ext := range exts {
		tr.byExt[ext] = h
	}

	return h, nil
}

// Seal freezes the registry
func (tr *TypeRegistry) Seal() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sealed = true
}

// ByID looks up a type by id
func (tr *TypeRegistry) ByID(id string) (AssetType, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	h, ok := tr.byID[id]
	if !ok {
		return AssetType{}, false
	}
	return tr.table.Get(h)
}

// ByHandle looks up a type by handle
func (tr *TypeRegistry) ByHandle(h handle.Handle) (AssetType, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.table.Get(h)
}

// ForExtension returns the type that claims the extension of a file name.
// Both "png" and ".png" are accepted, as are full file names.
func (tr *TypeRegistry) ForExtension(name string) (AssetType, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	h, ok := tr.byExt[extensionOf(name)]
	if !ok {
		return AssetType{}, false
	}
	return tr.table.Get(h)
}

// All returns every registered type ordered by id
func (tr *TypeRegistry) All() []AssetType {
	tr.mu.RLock()
	defer tr.mu.RUnlock()

	result := make([]AssetType, 0, tr.table.Len())
	tr.table.Each(func(_ handle.Handle, t AssetType) bool {
		result = append(result, t)
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// DefaultTypes returns the built-in asset types
func DefaultTypes() []AssetType {
	return []AssetType{
		{
			ID:                   "texture",
			FriendlyName:         "Texture",
			Extension:            "png",
			AdditionalExtensions: []string{"jpg", "jpeg"},
			Icon:                 "image",
			Color:                color.RGBA{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff},
			Category:             "Textures",
			Flags:                TypeIsSimple,
		},
		{
			ID:           "material",
			FriendlyName: "Material",
			Extension:    "mat",
			Icon:         "palette",
			Color:        color.RGBA{R: 0xff, G: 0x98, B: 0x00, A: 0xff},
			Category:     "Materials",
			Flags:        TypeHasDependencies | TypeIsSimple,
		},
		{
			ID:           "model",
			FriendlyName: "Model",
			Extension:    "mdl",
			Icon:         "view_in_ar",
			Color:        color.RGBA{R: 0x21, G: 0x96, B: 0xf3, A: 0xff},
			Category:     "Models",
			Flags:        TypeHasDependencies,
		},
		{
			ID:           "bundle",
			FriendlyName: "Bundle",
			Extension:    "bundle",
			Icon:         "inventory_2",
			Color:        color.RGBA{R: 0x9c, G: 0x27, B: 0xb0, A: 0xff},
			Category:     "Bundles",
			Flags:        TypeHasDependencies,
		},
		{
			ID:                   "sound",
			FriendlyName:         "Sound",
			Extension:            "wav",
			AdditionalExtensions: []string{"ogg"},
			Icon:                 "volume_up",
			Color:                color.RGBA{R: 0xe9, G: 0x1e, B: 0x63, A: 0xff},
			Category:             "Sounds",
			Flags:                TypeIsSimple,
		},
		{
			ID:           "raw",
			FriendlyName: "Raw Data",
			Extension:    "bin",
			Icon:         "description",
			Color:        color.RGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff},
			Category:     "Other",
			Flags:        TypeIsSimple | TypeHideByDefault,
		},
		{
			ID:                   "text",
			FriendlyName:         "Text",
			Extension:            "txt",
			AdditionalExtensions: []string{"json"},
			Icon:                 "article",
			Color:                color.RGBA{R: 0x60, G: 0x7d, B: 0x8b, A: 0xff},
			Category:             "Other",
			Flags:                TypeIsSimple | TypeHideByDefault | TypeIgnoreCompiledState,
		},
	}
}

// NewDefaultTypeRegistry registers DefaultTypes and seals the registry
func NewDefaultTypeRegistry() *TypeRegistry {
	tr := NewTypeRegistry()
	for _, t := range DefaultTypes() {
		if _, err := tr.Register(t); err != nil {
			panic(err)
		}
	}
	tr.Seal()
	return tr
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func extensionOf(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return normalizeExt(name[i+1:])
	}
	return normalizeExt(name)
}
