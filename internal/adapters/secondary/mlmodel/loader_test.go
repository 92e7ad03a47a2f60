package mlmodel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-registrar/internal/core/domain"
	"model-registrar/internal/testutil"
)

func TestLoader_Load(t *testing.T) {
	path := testutil.WriteModelDir(t, t.TempDir())

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, path, model.Path)
	assert.Equal(t, "sklearn", model.Framework)
	assert.Equal(t, "0.24.2", model.FrameworkVersion)
	assert.Contains(t, model.Flavors, domain.PyFuncFlavor)
	assert.Equal(t, "model", model.Descriptor["artifact_path"])
	assert.Len(t, model.Files, 4)
	assert.Positive(t, model.TotalSize())
}

func TestLoader_Load_IsReadOnly(t *testing.T) {
	path := testutil.WriteModelDir(t, t.TempDir())
	before, err := os.ReadFile(filepath.Join(path, domain.DescriptorFile))
	require.NoError(t, err)

	_, err = NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	after, err := os.ReadFile(filepath.Join(path, domain.DescriptorFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestLoader_Load_MissingPath(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, domain.ErrModelPathNotFound)
}

func TestLoader_Load_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string) string
	}{
		{
			name: "plain file",
			setup: func(t *testing.T, dir string) string {
				p := filepath.Join(dir, "model.pkl")
				require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
				return p
			},
		},
		{
			name: "missing descriptor",
			setup: func(t *testing.T, dir string) string {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "model.pkl"), []byte("x"), 0o644))
				return dir
			},
		},
		{
			name: "malformed descriptor",
			setup: func(t *testing.T, dir string) string {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "MLmodel"), []byte("flavors: [unclosed"), 0o644))
				return dir
			},
		},
		{
			name: "no flavors",
			setup: func(t *testing.T, dir string) string {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "MLmodel"), []byte("artifact_path: model\n"), 0o644))
				return dir
			},
		},
		{
			name: "unsupported flavor",
			setup: func(t *testing.T, dir string) string {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "MLmodel"), []byte("flavors:\n  fortran:\n    data: m.bin\n"), 0o644))
				return dir
			},
		},
		{
			name: "model file missing",
			setup: func(t *testing.T, dir string) string {
				path := testutil.WriteModelDir(t, dir)
				require.NoError(t, os.Remove(filepath.Join(path, "model.pkl")))
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.setup(t, t.TempDir())
			_, err := NewLoader().Load(context.Background(), path)
			assert.ErrorIs(t, err, domain.ErrDeserialization)
		})
	}
}

func TestLoader_Load_PyFuncOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "MLmodel"), []byte("flavors:\n  python_function:\n    loader_module: custom\n"), 0o644))

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, domain.PyFuncFlavor, model.Framework)
}

func TestDescriptor_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), domain.DescriptorFile)
	require.NoError(t, WriteDescriptor(path, map[string]any{
		"run_id":  "abc",
		"flavors": map[string]any{"sklearn": map[string]any{"pickled_model": "model.pkl"}},
	}))

	descriptor, err := ReadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", descriptor["run_id"])
}
