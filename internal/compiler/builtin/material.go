package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/assetforge/internal/compiler"
)

// Material is the source format of .mat files
type Material struct {
	Shader   string             `yaml:"shader" json:"shader"`
	Textures map[string]string  `yaml:"textures" json:"textures,omitempty"`
	Params   map[string]float64 `yaml:"params" json:"params,omitempty"`
	Color    []float64          `yaml:"color" json:"color,omitempty"`
}

// ParseMaterial decodes and validates a material source
func ParseMaterial(data []byte) (*Material, error) {
	var m Material
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse material: %w", err)
	}
	if m.Shader == "" {
		return nil, fmt.Errorf("material has no shader")
	}
	if m.Color != nil && len(m.Color) != 3 && len(m.Color) != 4 {
		return nil, fmt.Errorf("material color needs 3 or 4 components, got %d", len(m.Color))
	}
	return &m, nil
}

// MaterialCompiler compiles YAML materials and references their textures
type MaterialCompiler struct{}

func (MaterialCompiler) Name() string { return "material" }

func (MaterialCompiler) Compile(_ context.Context, rc *compiler.ResourceContext) error {
	m, err := ParseMaterial(rc.Source())
	if err != nil {
		return err
	}

	slots := make([]string, 0, len(m.Textures))
	for slot := range m.Textures {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	var missing []string
	for _, slot := range slots {
		if !rc.RegisterReference(m.Textures[slot]) {
			missing = append(missing, m.Textures[slot])
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("material references unknown textures: %v", missing)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode material: %w", err)
	}
	if err := rc.SetExtension("vmat_c"); err != nil {
		return err
	}
	return rc.WriteBlock("MTRL", data)
}
