package domain

import "time"

type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

// IsValid checks if the status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusFinished, RunStatusFailed, RunStatusKilled:
		return true
	}
	return false
}

// RunOptions describes the run a Tracker should open.
type RunOptions struct {
	ExperimentName string
	RunName        string
	Tags           map[string]string
}

// TrackingRun is an open session on the tracking server. It is owned by a single
// registration and passed explicitly to every call that needs it.
type TrackingRun struct {
	RunID        string     `json:"run_id"`
	ExperimentID string     `json:"experiment_id"`
	RunName      string     `json:"run_name"`
	ArtifactURI  string     `json:"artifact_uri"`
	Status       RunStatus  `json:"status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
}

// ModelURI returns the run-scoped reference of an artifact logged under label.
func (r *TrackingRun) ModelURI(label string) string {
	return "runs:/" + r.RunID + "/" + label
}

// LoggedModel is a model logged to a run under an artifact label.
type LoggedModel struct {
	RunID        string `json:"run_id"`
	ArtifactPath string `json:"artifact_path"`
	ModelURI     string `json:"model_uri"`
	ArtifactURI  string `json:"artifact_uri"`
}
