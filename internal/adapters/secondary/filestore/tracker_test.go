package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"model-registrar/internal/adapters/secondary/mlmodel"
	"model-registrar/internal/core/domain"
	"model-registrar/internal/testutil"
)

func newTestTracker(t *testing.T) (string, *tracker) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "mlruns")
	tr, err := NewTracker(root)
	require.NoError(t, err)
	return root, tr.(*tracker)
}

func TestTracker_RunLifecycle(t *testing.T) {
	root, tr := newTestTracker(t)
	ctx := context.Background()

	run, err := tr.StartRun(ctx, domain.RunOptions{RunName: "register", Tags: map[string]string{"team": "pricing"}})
	require.NoError(t, err)
	assert.Equal(t, "0", run.ExperimentID)
	assert.Equal(t, "register", run.RunName)
	assert.Equal(t, domain.RunStatusRunning, run.Status)

	var meta runMeta
	require.NoError(t, readYAML(filepath.Join(root, "0", run.RunID, metaFile), &meta))
	assert.Equal(t, "RUNNING", meta.Status)
	assert.Equal(t, "pricing", meta.Tags["team"])

	model, err := mlmodel.NewLoader().Load(ctx, testutil.WriteModelDir(t, t.TempDir()))
	require.NoError(t, err)

	logged, err := tr.LogModel(ctx, run, model, "random_forest_price_regressor")
	require.NoError(t, err)
	assert.Equal(t, "runs:/"+run.RunID+"/random_forest_price_regressor", logged.ModelURI)

	dest := filepath.Join(root, "0", run.RunID, "artifacts", "random_forest_price_regressor")
	assert.Equal(t, "file://"+filepath.ToSlash(dest), logged.ArtifactURI)
	assert.FileExists(t, filepath.Join(dest, "model.pkl"))

	descriptor, err := mlmodel.ReadDescriptor(filepath.Join(dest, domain.DescriptorFile))
	require.NoError(t, err)
	assert.Equal(t, run.RunID, descriptor["run_id"])

	require.NoError(t, tr.EndRun(ctx, run, domain.RunStatusFinished))
	require.NoError(t, readYAML(filepath.Join(root, "0", run.RunID, metaFile), &meta))
	assert.Equal(t, "FINISHED", meta.Status)
	assert.Positive(t, meta.EndTime)
	assert.Equal(t, []string{"random_forest_price_regressor"}, meta.LoggedModels)
	assert.Equal(t, domain.RunStatusFinished, run.Status)
}

func TestTracker_NamedExperiments(t *testing.T) {
	root, tr := newTestTracker(t)
	ctx := context.Background()

	a, err := tr.StartRun(ctx, domain.RunOptions{ExperimentName: "used-cars"})
	require.NoError(t, err)
	b, err := tr.StartRun(ctx, domain.RunOptions{ExperimentName: "houses"})
	require.NoError(t, err)
	c, err := tr.StartRun(ctx, domain.RunOptions{ExperimentName: "used-cars"})
	require.NoError(t, err)

	assert.Equal(t, "1", a.ExperimentID)
	assert.Equal(t, "2", b.ExperimentID)
	assert.Equal(t, a.ExperimentID, c.ExperimentID)

	var meta experimentMeta
	require.NoError(t, readYAML(filepath.Join(root, "2", metaFile), &meta))
	assert.Equal(t, "houses", meta.Name)
}

func TestTracker_EndRun_UnknownRun(t *testing.T) {
	_, tr := newTestTracker(t)

	err := tr.EndRun(context.Background(), &domain.TrackingRun{RunID: "missing", ExperimentID: "0"}, domain.RunStatusFailed)
	assert.ErrorIs(t, err, domain.ErrTracking)
}

func TestTracker_StartRun_UnwritableRoot(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tr, err := NewTracker(filepath.Join(file, "mlruns"))
	require.NoError(t, err)

	_, err = tr.StartRun(context.Background(), domain.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrTracking)
}
