package mlflow

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"model-registrar/internal/adapters/secondary/mlmodel"
	"model-registrar/internal/config"
	"model-registrar/internal/core/domain"
	"model-registrar/internal/testutil"
)

func newTestTracker(t *testing.T) (*testutil.FakeMLflow, *tracker) {
	t.Helper()
	fake := testutil.NewFakeMLflow(t)
	client := NewClient(&config.TrackingConfig{URI: fake.URL()})
	return fake, NewTracker(client).(*tracker)
}

func loadModel(t *testing.T) *domain.Model {
	t.Helper()
	model, err := mlmodel.NewLoader().Load(context.Background(), testutil.WriteModelDir(t, t.TempDir()))
	require.NoError(t, err)
	return model
}

func TestTracker_StartRun_DefaultExperiment(t *testing.T) {
	fake, tr := newTestTracker(t)

	run, err := tr.StartRun(context.Background(), domain.RunOptions{
		RunName: "register-model",
		Tags:    map[string]string{"team": "pricing"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, run.RunID)
	assert.Equal(t, "0", run.ExperimentID)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
	assert.Equal(t, "mlflow-artifacts:/0/"+run.RunID+"/artifacts", run.ArtifactURI)

	runs := fake.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "register-model", runs[0].Tags["mlflow.runName"])
	assert.Equal(t, "pricing", runs[0].Tags["team"])
	assert.Equal(t, "JOB", runs[0].Tags["mlflow.source.type"])
}

func TestTracker_StartRun_CreatesExperiment(t *testing.T) {
	fake, tr := newTestTracker(t)

	first, err := tr.StartRun(context.Background(), domain.RunOptions{ExperimentName: "used-cars"})
	require.NoError(t, err)
	second, err := tr.StartRun(context.Background(), domain.RunOptions{ExperimentName: "used-cars"})
	require.NoError(t, err)

	assert.NotEqual(t, "0", first.ExperimentID)
	assert.Equal(t, first.ExperimentID, second.ExperimentID)
	assert.Len(t, fake.Runs(), 2)
}

func TestTracker_StartRun_ServerError(t *testing.T) {
	fake, tr := newTestTracker(t)
	fake.Fail("runs/create", http.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE")

	_, err := tr.StartRun(context.Background(), domain.RunOptions{})
	assert.ErrorIs(t, err, domain.ErrTracking)
	assert.True(t, IsCode(err, "TEMPORARILY_UNAVAILABLE"))
}

func TestTracker_LogModel_Proxied(t *testing.T) {
	fake, tr := newTestTracker(t)
	model := loadModel(t)

	run, err := tr.StartRun(context.Background(), domain.RunOptions{})
	require.NoError(t, err)

	logged, err := tr.LogModel(context.Background(), run, model, "random_forest_price_regressor")
	require.NoError(t, err)

	assert.Equal(t, "runs:/"+run.RunID+"/random_forest_price_regressor", logged.ModelURI)
	assert.Equal(t, run.ArtifactURI+"/random_forest_price_regressor", logged.ArtifactURI)

	base := "0/" + run.RunID + "/artifacts/random_forest_price_regressor/"
	pkl, ok := fake.Artifact(base + "model.pkl")
	require.True(t, ok)
	orig, err := os.ReadFile(filepath.Join(model.Path, "model.pkl"))
	require.NoError(t, err)
	assert.Equal(t, orig, pkl)

	raw, ok := fake.Artifact(base + "MLmodel")
	require.True(t, ok)
	var descriptor map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &descriptor))
	assert.Equal(t, run.RunID, descriptor["run_id"])
	assert.Equal(t, "random_forest_price_regressor", descriptor["artifact_path"])

	runs := fake.Runs()
	require.Len(t, runs, 1)
	require.Len(t, runs[0].ModelJSON, 1)
	var modelJSON map[string]any
	require.NoError(t, json.Unmarshal([]byte(runs[0].ModelJSON[0]), &modelJSON))
	assert.Equal(t, run.RunID, modelJSON["run_id"])
	assert.Contains(t, modelJSON["flavors"], "sklearn")
}

func TestTracker_LogModel_UploadFailure(t *testing.T) {
	fake, tr := newTestTracker(t)
	model := loadModel(t)

	run, err := tr.StartRun(context.Background(), domain.RunOptions{})
	require.NoError(t, err)
	fake.Fail("artifacts", http.StatusForbidden, "PERMISSION_DENIED")

	_, err = tr.LogModel(context.Background(), run, model, "random_forest_price_regressor")
	assert.ErrorIs(t, err, domain.ErrTracking)
}

func TestTracker_LogModel_UnsupportedStore(t *testing.T) {
	_, tr := newTestTracker(t)
	run := &domain.TrackingRun{RunID: "abc", ArtifactURI: "s3://bucket/0/abc/artifacts"}

	_, err := tr.LogModel(context.Background(), run, loadModel(t), "label")
	assert.ErrorIs(t, err, domain.ErrTracking)
}

func TestTracker_EndRun(t *testing.T) {
	fake, tr := newTestTracker(t)

	run, err := tr.StartRun(context.Background(), domain.RunOptions{})
	require.NoError(t, err)
	require.NoError(t, tr.EndRun(context.Background(), run, domain.RunStatusFinished))

	assert.Equal(t, domain.RunStatusFinished, run.Status)
	require.NotNil(t, run.EndTime)

	runs := fake.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "FINISHED", runs[0].Status)
	assert.Positive(t, runs[0].EndTime)
}

func TestTracker_EndRun_UnknownRun(t *testing.T) {
	_, tr := newTestTracker(t)

	err := tr.EndRun(context.Background(), &domain.TrackingRun{RunID: "missing"}, domain.RunStatusFailed)
	assert.ErrorIs(t, err, domain.ErrTracking)
}
