package asset

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// ScanResult summarizes a content root scan
type ScanResult struct {
	Registered int
	Known      int
	Skipped    int
}

// Scan walks the content root and registers every file whose extension
// belongs to a registered type. Hidden files and directories are skipped.
func (r *Registry) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	err := filepath.WalkDir(r.contentRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if path != r.contentRoot && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		if _, ok := r.types.ForExtension(name); !ok {
			result.Skipped++
			return nil
		}

		if !r.FindByFilename(path).IsNil() {
			result.Known++
			return nil
		}

		if _, err := r.Register(path); err != nil {
			return err
		}
		result.Registered++
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("failed to scan %s: %w", r.contentRoot, err)
	}

	return result, nil
}
