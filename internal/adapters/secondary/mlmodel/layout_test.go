package mlmodel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-registrar/internal/core/domain"
	"model-registrar/internal/testutil"
)

func TestStamp(t *testing.T) {
	model, err := NewLoader().Load(context.Background(), testutil.WriteModelDir(t, t.TempDir()))
	require.NoError(t, err)

	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	stamped := Stamp(model, "run-1", "regressor", now)

	assert.Equal(t, "run-1", stamped["run_id"])
	assert.Equal(t, "regressor", stamped["artifact_path"])
	assert.Equal(t, "2024-06-01 12:30:00.000000", stamped["utc_time_created"])
	assert.Equal(t, "model", model.Descriptor["artifact_path"], "original descriptor is untouched")
}

func TestCopyTo(t *testing.T) {
	model, err := NewLoader().Load(context.Background(), testutil.WriteModelDir(t, t.TempDir()))
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "artifacts", "regressor")
	require.NoError(t, CopyTo(context.Background(), model, dest, Stamp(model, "run-1", "regressor", time.Now())))

	pkl, err := os.ReadFile(filepath.Join(dest, "model.pkl"))
	require.NoError(t, err)
	orig, err := os.ReadFile(filepath.Join(model.Path, "model.pkl"))
	require.NoError(t, err)
	assert.Equal(t, orig, pkl)

	descriptor, err := ReadDescriptor(filepath.Join(dest, domain.DescriptorFile))
	require.NoError(t, err)
	assert.Equal(t, "run-1", descriptor["run_id"])
}
