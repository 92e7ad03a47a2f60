package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"model-registrar/internal/adapters/secondary/mlmodel"
	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

const (
	defaultExperimentID   = "0"
	defaultExperimentName = "Default"
	sourceName            = "model-registrar"

	schemeProxied = "mlflow-artifacts"
	schemeFile    = "file"
)

type tracker struct {
	client *Client
	now    func() time.Time
}

// NewTracker returns a Tracker that opens runs on the MLflow tracking server.
func NewTracker(client *Client) ports.Tracker {
	return &tracker{client: client, now: time.Now}
}

func (t *tracker) StartRun(ctx context.Context, opts domain.RunOptions) (*domain.TrackingRun, error) {
	experimentID, err := t.resolveExperiment(ctx, opts.ExperimentName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}

	tags := []tag{
		{Key: "mlflow.source.name", Value: sourceName},
		{Key: "mlflow.source.type", Value: "JOB"},
	}
	if opts.RunName != "" {
		tags = append(tags, tag{Key: "mlflow.runName", Value: opts.RunName})
	}
	if user := os.Getenv("USER"); user != "" {
		tags = append(tags, tag{Key: "mlflow.user", Value: user})
	}
	for k, v := range opts.Tags {
		tags = append(tags, tag{Key: k, Value: v})
	}

	var resp runResponse
	err = t.client.Call(ctx, http.MethodPost, "runs/create", nil, createRunRequest{
		ExperimentID: experimentID,
		StartTime:    toMillis(t.now()),
		RunName:      opts.RunName,
		Tags:         tags,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: create run: %w", domain.ErrTracking, err)
	}

	run := resp.Run.Info.toDomain()
	if run.RunID == "" {
		return nil, fmt.Errorf("%w: create run: empty run id", domain.ErrTracking)
	}
	if run.Status == "" {
		run.Status = domain.RunStatusRunning
	}
	return run, nil
}

func (t *tracker) resolveExperiment(ctx context.Context, name string) (string, error) {
	if name == "" || name == defaultExperimentName {
		return defaultExperimentID, nil
	}

	query := url.Values{}
	query.Set("experiment_name", name)

	var got getExperimentResponse
	err := t.client.Call(ctx, http.MethodGet, "experiments/get-by-name", query, nil, &got)
	if err == nil {
		return got.Experiment.ExperimentID, nil
	}
	if !IsCode(err, CodeResourceDoesNotExist) {
		return "", fmt.Errorf("get experiment %q: %w", name, err)
	}

	var created createExperimentResponse
	if err := t.client.Call(ctx, http.MethodPost, "experiments/create", nil,
		createExperimentRequest{Name: name}, &created); err != nil {
		return "", fmt.Errorf("create experiment %q: %w", name, err)
	}
	log.WithFields(log.Fields{
		"experiment":    name,
		"experiment_id": created.ExperimentID,
	}).Info("created experiment")
	return created.ExperimentID, nil
}

func (t *tracker) LogModel(ctx context.Context, run *domain.TrackingRun, model *domain.Model, artifactPath string) (*domain.LoggedModel, error) {
	descriptor := mlmodel.Stamp(model, run.RunID, artifactPath, t.now())

	location, err := artifactLocation(run.ArtifactURI, artifactPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}

	switch location.scheme {
	case schemeProxied:
		err = t.uploadModel(ctx, model, location.path, descriptor)
	case schemeFile:
		err = mlmodel.CopyTo(ctx, model, location.path, descriptor)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: store model artifacts: %w", domain.ErrTracking, err)
	}

	modelJSON, err := json.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("%w: encode model descriptor: %w", domain.ErrTracking, err)
	}
	err = t.client.Call(ctx, http.MethodPost, "runs/log-model", nil, logModelRequest{
		RunID:     run.RunID,
		ModelJSON: string(modelJSON),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: log model: %w", domain.ErrTracking, err)
	}

	return &domain.LoggedModel{
		RunID:        run.RunID,
		ArtifactPath: artifactPath,
		ModelURI:     run.ModelURI(artifactPath),
		ArtifactURI:  strings.TrimRight(run.ArtifactURI, "/") + "/" + artifactPath,
	}, nil
}

func (t *tracker) uploadModel(ctx context.Context, model *domain.Model, dest string, descriptor map[string]any) error {
	for _, f := range model.Files {
		if f.RelPath == domain.DescriptorFile {
			continue
		}
		if err := t.uploadFile(ctx, filepath.Join(model.Path, filepath.FromSlash(f.RelPath)), path.Join(dest, f.RelPath), f.Size); err != nil {
			return err
		}
	}

	data, err := mlmodel.EncodeDescriptor(descriptor)
	if err != nil {
		return err
	}
	return t.client.Upload(ctx, path.Join(dest, domain.DescriptorFile), bytes.NewReader(data), int64(len(data)))
}

func (t *tracker) uploadFile(ctx context.Context, src, dest string, size int64) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	log.WithFields(log.Fields{
		"artifact": dest,
		"bytes":    size,
	}).Debug("uploading artifact")
	return t.client.Upload(ctx, dest, f, size)
}

func (t *tracker) EndRun(ctx context.Context, run *domain.TrackingRun, status domain.RunStatus) error {
	end := t.now()
	err := t.client.Call(ctx, http.MethodPost, "runs/update", nil, updateRunRequest{
		RunID:   run.RunID,
		Status:  string(status),
		EndTime: toMillis(end),
	}, nil)
	if err != nil {
		return fmt.Errorf("%w: end run %s: %w", domain.ErrTracking, run.RunID, err)
	}
	run.Status = status
	run.EndTime = &end
	return nil
}

type location struct {
	scheme string
	path   string
}

// artifactLocation resolves where files logged under label in a run with
// artifactURI must be stored.
func artifactLocation(artifactURI, label string) (location, error) {
	u, err := url.Parse(artifactURI)
	if err != nil {
		return location{}, fmt.Errorf("parse artifact uri %q: %w", artifactURI, err)
	}

	switch u.Scheme {
	case schemeProxied:
		// mlflow-artifacts:/<exp>/<run>/artifacts or mlflow-artifacts://host/<exp>/...
		return location{scheme: schemeProxied, path: path.Join(strings.TrimPrefix(u.Path, "/"), label)}, nil
	case schemeFile, "":
		return location{scheme: schemeFile, path: filepath.Join(filepath.FromSlash(u.Path), label)}, nil
	default:
		return location{}, fmt.Errorf("unsupported artifact store %q: serve artifacts through the tracking server", artifactURI)
	}
}
