package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/conduit-lang/assetforge/internal/compiler"
)

// Bundle is the source format of .bundle files: a set of embedded
// sub-resources plus the inputs and assets they were made from
type Bundle struct {
	Inputs     []string         `yaml:"inputs"`
	References []string         `yaml:"references"`
	Resources  []BundleResource `yaml:"resources"`
}

// BundleResource is one embedded sub-resource. Exactly one of Data and File
// is set.
type BundleResource struct {
	Name    string `yaml:"name"`
	Data    string `yaml:"data"`
	File    string `yaml:"file"`
	Version int    `yaml:"version"`
}

// ParseBundle decodes and validates a bundle source
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	for i, r := range b.Resources {
		if r.Name == "" {
			return nil, fmt.Errorf("bundle resource %d has no name", i)
		}
		if (r.Data == "") == (r.File == "") {
			return nil, fmt.Errorf("bundle resource %s needs exactly one of data or file", r.Name)
		}
	}
	return &b, nil
}

// BundleCompiler writes one child resource per embedded sub-resource
type BundleCompiler struct{}

func (BundleCompiler) Name() string { return "bundle" }

func (BundleCompiler) Compile(_ context.Context, rc *compiler.ResourceContext) error {
	b, err := ParseBundle(rc.Source())
	if err != nil {
		return err
	}

	for _, in := range b.Inputs {
		if err := rc.RegisterInputFileDependency(in, 0); err != nil {
			return err
		}
	}
	for _, ref := range b.References {
		if !rc.RegisterReference(ref) {
			return fmt.Errorf("bundle references unknown asset %s", ref)
		}
	}

	names := make([]string, 0, len(b.Resources))
	for _, r := range b.Resources {
		child, err := rc.CreateChildContext(r.Name)
		if err != nil {
			return err
		}

		data := []byte(r.Data)
		if r.File != "" {
			abs, err := child.ResolvePath(r.File)
			if err != nil {
				return fmt.Errorf("invalid bundle resource file %s: %w", r.File, err)
			}
			if err := child.RegisterInputFileDependency(r.File, 0); err != nil {
				return err
			}
			if data, err = os.ReadFile(abs); err != nil {
				return fmt.Errorf("failed to read bundle resource %s: %w", r.File, err)
			}
		}

		if r.Version > 0 {
			if err := child.SpecifyResourceVersion(r.Version); err != nil {
				return err
			}
		}
		if err := child.SetExtension(path.Ext(r.Name) + "_c"); err != nil {
			return err
		}
		if err := child.WriteBlock("DATA", data); err != nil {
			return err
		}
		names = append(names, child.ResourceName())
	}

	index, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to encode bundle index: %w", err)
	}
	if err := rc.SetExtension("bundle_c"); err != nil {
		return err
	}
	return rc.WriteBlock("BNDL", index)
}
