package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// SklearnDescriptor is an MLmodel descriptor for a pickled sklearn regressor.
const SklearnDescriptor = `artifact_path: model
flavors:
  python_function:
    env:
      conda: conda.yaml
      virtualenv: python_env.yaml
    loader_module: mlflow.sklearn
    model_path: model.pkl
    predict_fn: predict
    python_version: 3.8.5
  sklearn:
    code: null
    pickled_model: model.pkl
    serialization_format: cloudpickle
    sklearn_version: 0.24.2
mlflow_version: 2.12.1
model_uuid: 6f0bd8b0a0a44a54b6a4a1d2f3c0b3a1
run_id: 0f4e5b6c7d8e4f00a1b2c3d4e5f60718
utc_time_created: '2024-05-01 10:00:00.000000'
`

// WriteModelDir creates a loadable sklearn model directory under dir and returns its path.
func WriteModelDir(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "model")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "MLmodel"), []byte(SklearnDescriptor), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "model.pkl"), []byte("\x80\x04\x95regressor."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "conda.yaml"), []byte("name: mlflow-env\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(path, "python_env.yaml"), []byte("python: 3.8.5\n"), 0o644))
	return path
}
