package modeldoc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// FormatTag identifies model document files
	FormatTag = "assetforge.modeldoc"

	// FormatVersion is the current file format version
	FormatVersion = 1
)

type fileDoc struct {
	Format      string      `json:"format"`
	Version     int         `json:"version"`
	VertexCount int         `json:"vertex_count"`
	Positions   []Vec3      `json:"positions"`
	TexCoords   []Vec2      `json:"texcoords,omitempty"`
	Normals     []Vec3      `json:"normals,omitempty"`
	Groups      []FaceGroup `json:"groups"`
}

// Encode validates the document and serializes it
func (d *Doc) Encode() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.validate(); err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(fileDoc{
		Format:      FormatTag,
		Version:     FormatVersion,
		VertexCount: d.vertexCount,
		Positions:   d.positions,
		TexCoords:   d.texCoords,
		Normals:     d.normals,
		Groups:      d.groups,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode model: %w", err)
	}
	return data, nil
}

// SaveToFile validates the document and writes it to path atomically.
// Validation failures are returned as the package's sentinel errors, write
// failures as *IOError.
func (d *Doc) SaveToFile(path string) error {
	data, err := d.Encode()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &IOError{Op: "create directory for", Path: path, Err: err}
	}

	// Create temporary file for atomic write
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Parse decodes and validates a serialized document
func Parse(data []byte) (*Doc, error) {
	var f fileDoc
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if f.Format != FormatTag {
		return nil, fmt.Errorf("%w: format %q", ErrInvalidFormat, f.Format)
	}
	if f.Version < 1 || f.Version > FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, f.Version)
	}

	d := &Doc{
		vertexCount: f.VertexCount,
		positions:   f.Positions,
		texCoords:   f.TexCoords,
		normals:     f.Normals,
		groups:      f.Groups,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads and validates the document at path
func Load(path string) (*Doc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return Parse(data)
}
