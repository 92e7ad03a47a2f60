// Package filestore keeps tracking runs in a local directory tree, for
// registrations that run without a tracking server.
//
// Layout: <root>/<experiment_id>/<run_id>/meta.yaml and .../artifacts/<label>/.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"model-registrar/internal/adapters/secondary/mlmodel"
	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

const (
	metaFile            = "meta.yaml"
	defaultExperimentID = "0"
)

type runMeta struct {
	RunID          string            `yaml:"run_id"`
	ExperimentID   string            `yaml:"experiment_id"`
	RunName        string            `yaml:"run_name"`
	Status         string            `yaml:"status"`
	StartTime      int64             `yaml:"start_time"`
	EndTime        int64             `yaml:"end_time,omitempty"`
	ArtifactURI    string            `yaml:"artifact_uri"`
	LifecycleStage string            `yaml:"lifecycle_stage"`
	Tags           map[string]string `yaml:"tags,omitempty"`
	LoggedModels   []string          `yaml:"logged_models,omitempty"`
}

type experimentMeta struct {
	ExperimentID     string `yaml:"experiment_id"`
	Name             string `yaml:"name"`
	ArtifactLocation string `yaml:"artifact_location"`
	LifecycleStage   string `yaml:"lifecycle_stage"`
}

type tracker struct {
	root string
	now  func() time.Time
	mu   sync.Mutex
}

// NewTracker returns a Tracker rooted at root. The directory is created on first use.
func NewTracker(root string) (ports.Tracker, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve tracking root: %w", err)
	}
	return &tracker{root: abs, now: time.Now}, nil
}

func (t *tracker) StartRun(ctx context.Context, opts domain.RunOptions) (*domain.TrackingRun, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	experimentID, err := t.resolveExperiment(opts.ExperimentName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}

	runID := strings.ReplaceAll(uuid.New().String(), "-", "")
	runDir := filepath.Join(t.root, experimentID, runID)
	if err := os.MkdirAll(filepath.Join(runDir, "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create run dir: %w", domain.ErrTracking, err)
	}

	name := opts.RunName
	if name == "" {
		name = "run-" + runID[:8]
	}
	start := t.now()
	meta := &runMeta{
		RunID:          runID,
		ExperimentID:   experimentID,
		RunName:        name,
		Status:         string(domain.RunStatusRunning),
		StartTime:      start.UnixMilli(),
		ArtifactURI:    fileURI(filepath.Join(runDir, "artifacts")),
		LifecycleStage: "active",
		Tags:           opts.Tags,
	}
	if err := writeYAML(filepath.Join(runDir, metaFile), meta); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}

	log.WithFields(log.Fields{
		"run_id": runID,
		"dir":    runDir,
	}).Debug("created local run")

	return &domain.TrackingRun{
		RunID:        runID,
		ExperimentID: experimentID,
		RunName:      name,
		ArtifactURI:  meta.ArtifactURI,
		Status:       domain.RunStatusRunning,
		StartTime:    start,
	}, nil
}

// resolveExperiment finds or creates the experiment directory for name.
func (t *tracker) resolveExperiment(name string) (string, error) {
	if name == "" || name == "Default" {
		return defaultExperimentID, t.ensureExperiment(defaultExperimentID, "Default")
	}

	entries, err := os.ReadDir(t.root)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read tracking root: %w", err)
	}
	next := 1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		var meta experimentMeta
		if err := readYAML(filepath.Join(t.root, e.Name(), metaFile), &meta); err != nil {
			continue
		}
		if meta.Name == name {
			return meta.ExperimentID, nil
		}
		var n int
		if _, err := fmt.Sscanf(meta.ExperimentID, "%d", &n); err == nil && n >= next {
			next = n + 1
		}
	}

	id := fmt.Sprintf("%d", next)
	return id, t.ensureExperiment(id, name)
}

func (t *tracker) ensureExperiment(id, name string) error {
	dir := filepath.Join(t.root, id)
	path := filepath.Join(dir, metaFile)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create experiment dir: %w", err)
	}
	return writeYAML(path, &experimentMeta{
		ExperimentID:     id,
		Name:             name,
		ArtifactLocation: fileURI(dir),
		LifecycleStage:   "active",
	})
}

func (t *tracker) LogModel(ctx context.Context, run *domain.TrackingRun, model *domain.Model, artifactPath string) (*domain.LoggedModel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	runDir := filepath.Join(t.root, run.ExperimentID, run.RunID)
	var meta runMeta
	if err := readYAML(filepath.Join(runDir, metaFile), &meta); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}

	dest := filepath.Join(runDir, "artifacts", filepath.FromSlash(artifactPath))
	descriptor := mlmodel.Stamp(model, run.RunID, artifactPath, t.now())
	if err := mlmodel.CopyTo(ctx, model, dest, descriptor); err != nil {
		return nil, fmt.Errorf("%w: store model artifacts: %w", domain.ErrTracking, err)
	}

	meta.LoggedModels = append(meta.LoggedModels, artifactPath)
	if err := writeYAML(filepath.Join(runDir, metaFile), &meta); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}

	return &domain.LoggedModel{
		RunID:        run.RunID,
		ArtifactPath: artifactPath,
		ModelURI:     run.ModelURI(artifactPath),
		ArtifactURI:  fileURI(dest),
	}, nil
}

func (t *tracker) EndRun(ctx context.Context, run *domain.TrackingRun, status domain.RunStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	path := filepath.Join(t.root, run.ExperimentID, run.RunID, metaFile)
	var meta runMeta
	if err := readYAML(path, &meta); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}

	end := t.now()
	meta.Status = string(status)
	meta.EndTime = end.UnixMilli()
	if err := writeYAML(path, &meta); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrTracking, err)
	}
	run.Status = status
	run.EndTime = &end
	return nil
}

func fileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
