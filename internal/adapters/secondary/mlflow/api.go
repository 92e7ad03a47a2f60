package mlflow

import (
	"fmt"
	"strconv"
	"time"

	"model-registrar/internal/core/domain"
)

// Wire types of the MLflow REST API.

type tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type experiment struct {
	ExperimentID     string `json:"experiment_id"`
	Name             string `json:"name"`
	ArtifactLocation string `json:"artifact_location,omitempty"`
	LifecycleStage   string `json:"lifecycle_stage,omitempty"`
}

type getExperimentResponse struct {
	Experiment experiment `json:"experiment"`
}

type createExperimentRequest struct {
	Name string `json:"name"`
}

type createExperimentResponse struct {
	ExperimentID string `json:"experiment_id"`
}

type runInfo struct {
	RunID          string `json:"run_id"`
	RunUUID        string `json:"run_uuid,omitempty"`
	ExperimentID   string `json:"experiment_id"`
	RunName        string `json:"run_name"`
	Status         string `json:"status"`
	StartTime      int64  `json:"start_time,omitempty"`
	EndTime        int64  `json:"end_time,omitempty"`
	ArtifactURI    string `json:"artifact_uri"`
	LifecycleStage string `json:"lifecycle_stage,omitempty"`
}

type run struct {
	Info runInfo `json:"info"`
}

type createRunRequest struct {
	ExperimentID string `json:"experiment_id"`
	StartTime    int64  `json:"start_time"`
	RunName      string `json:"run_name,omitempty"`
	Tags         []tag  `json:"tags,omitempty"`
}

type runResponse struct {
	Run run `json:"run"`
}

type updateRunRequest struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	EndTime int64  `json:"end_time"`
}

type logModelRequest struct {
	RunID     string `json:"run_id"`
	ModelJSON string `json:"model_json"`
}

type createRegisteredModelRequest struct {
	Name string `json:"name"`
}

type createModelVersionRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	RunID  string `json:"run_id,omitempty"`
}

type modelVersion struct {
	Name                 string `json:"name"`
	Version              string `json:"version"`
	CreationTimestamp    int64  `json:"creation_timestamp,omitempty"`
	LastUpdatedTimestamp int64  `json:"last_updated_timestamp,omitempty"`
	CurrentStage         string `json:"current_stage,omitempty"`
	Source               string `json:"source"`
	RunID                string `json:"run_id,omitempty"`
	Status               string `json:"status,omitempty"`
}

type modelVersionResponse struct {
	ModelVersion modelVersion `json:"model_version"`
}

func (r runInfo) toDomain() *domain.TrackingRun {
	id := r.RunID
	if id == "" {
		id = r.RunUUID
	}
	out := &domain.TrackingRun{
		RunID:        id,
		ExperimentID: r.ExperimentID,
		RunName:      r.RunName,
		ArtifactURI:  r.ArtifactURI,
		Status:       domain.RunStatus(r.Status),
		StartTime:    fromMillis(r.StartTime),
	}
	if r.EndTime > 0 {
		end := fromMillis(r.EndTime)
		out.EndTime = &end
	}
	return out
}

func (v modelVersion) toDomain() (*domain.RegistryEntry, error) {
	version, err := strconv.ParseInt(v.Version, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid version %q for model %q", domain.ErrRegistry, v.Version, v.Name)
	}
	return &domain.RegistryEntry{
		Name:      v.Name,
		Version:   version,
		Source:    v.Source,
		RunID:     v.RunID,
		Status:    domain.VersionStatus(v.Status),
		CreatedAt: fromMillis(v.CreationTimestamp),
	}, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
