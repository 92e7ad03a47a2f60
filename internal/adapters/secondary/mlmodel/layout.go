package mlmodel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"model-registrar/internal/core/domain"
)

const timeCreatedLayout = "2006-01-02 15:04:05.000000"

// Stamp returns a copy of the model's descriptor bound to runID and artifactPath.
func Stamp(model *domain.Model, runID, artifactPath string, now time.Time) map[string]any {
	out := make(map[string]any, len(model.Descriptor)+3)
	for k, v := range model.Descriptor {
		out[k] = v
	}
	out["run_id"] = runID
	out["artifact_path"] = artifactPath
	out["utc_time_created"] = now.UTC().Format(timeCreatedLayout)
	return out
}

// CopyTo copies the model files into dest, writing descriptor in place of the
// original MLmodel file.
func CopyTo(ctx context.Context, model *domain.Model, dest string, descriptor map[string]any) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}

	for _, f := range model.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.RelPath == domain.DescriptorFile {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(f.RelPath))
		if err := copyFile(filepath.Join(model.Path, filepath.FromSlash(f.RelPath)), target); err != nil {
			return err
		}
	}
	return WriteDescriptor(filepath.Join(dest, domain.DescriptorFile), descriptor)
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dst), err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
