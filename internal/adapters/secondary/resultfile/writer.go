// Package resultfile writes registration result records to the local filesystem.
package resultfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

var csvHeader = []string{"model_name", "model_path", "status"}

type writer struct {
	perm os.FileMode
}

func NewWriter() ports.ResultWriter {
	return &writer{perm: 0o644}
}

// Write replaces the file at path with record encoded in format. The file is
// written to a temporary sibling first, so readers never see a partial record.
func (w *writer) Write(ctx context.Context, path string, format domain.OutputFormat, record *domain.ResultRecord) error {
	data, err := Encode(format, record)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %w", domain.ErrOutputWrite, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", domain.ErrOutputWrite, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", domain.ErrOutputWrite, path, err)
	}
	if err := tmp.Chmod(w.perm); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod %s: %w", domain.ErrOutputWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrOutputWrite, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: rename %s: %w", domain.ErrOutputWrite, path, err)
	}
	return nil
}

// Encode renders record in format.
func Encode(format domain.OutputFormat, record *domain.ResultRecord) ([]byte, error) {
	switch format {
	case domain.OutputFormatJSON, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(record); err != nil {
			return nil, fmt.Errorf("%w: encode json: %w", domain.ErrOutputWrite, err)
		}
		return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
	case domain.OutputFormatCSV:
		var buf bytes.Buffer
		cw := csv.NewWriter(&buf)
		if err := cw.WriteAll([][]string{
			csvHeader,
			{record.ModelName, record.ModelPath, record.Status},
		}); err != nil {
			return nil, fmt.Errorf("%w: encode csv: %w", domain.ErrOutputWrite, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrOutputWrite, domain.ErrUnsupportedFormat, strconv.Quote(string(format)))
	}
}
