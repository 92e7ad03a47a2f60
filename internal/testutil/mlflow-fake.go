package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// FakeRun is a run held by FakeMLflow.
type FakeRun struct {
	ID           string
	ExperimentID string
	Name         string
	Status       string
	Tags         map[string]string
	StartTime    int64
	EndTime      int64
	ModelJSON    []string
}

// FakeVersion is a model version held by FakeMLflow.
type FakeVersion struct {
	Name    string
	Version int64
	Source  string
	RunID   string
	Status  string
	polls   int
}

type fakeFailure struct {
	status int
	code   string
}

// FakeMLflow is an in-memory MLflow tracking server and model registry.
type FakeMLflow struct {
	Server *httptest.Server

	// PendingPolls is the number of model-versions/get calls a new version
	// reports PENDING_REGISTRATION before turning READY.
	PendingPolls int

	mu          sync.Mutex
	experiments map[string]string
	runs        map[string]*FakeRun
	artifacts   map[string][]byte
	versions    map[string][]*FakeVersion
	failures    map[string]fakeFailure
	requestIDs  []string
	authHeaders []string
}

// NewFakeMLflow starts a fake server that is closed when t finishes.
func NewFakeMLflow(t testing.TB) *FakeMLflow {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &FakeMLflow{
		experiments: map[string]string{"Default": "0"},
		runs:        make(map[string]*FakeRun),
		artifacts:   make(map[string][]byte),
		versions:    make(map[string][]*FakeVersion),
		failures:    make(map[string]fakeFailure),
	}

	r := gin.New()
	r.Use(f.record())

	api := r.Group("/api/2.0/mlflow")
	api.GET("/experiments/get-by-name", f.getExperiment)
	api.POST("/experiments/create", f.createExperiment)
	api.POST("/runs/create", f.createRun)
	api.POST("/runs/update", f.updateRun)
	api.POST("/runs/log-model", f.logModel)
	api.POST("/registered-models/create", f.createRegisteredModel)
	api.POST("/model-versions/create", f.createModelVersion)
	api.GET("/model-versions/get", f.getModelVersion)
	r.PUT("/api/2.0/mlflow-artifacts/artifacts/*path", f.uploadArtifact)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the server.
func (f *FakeMLflow) URL() string {
	return f.Server.URL
}

// Fail makes every later call to endpoint (e.g. "model-versions/create") fail.
func (f *FakeMLflow) Fail(endpoint string, status int, code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[endpoint] = fakeFailure{status: status, code: code}
}

// Runs returns a snapshot of all runs.
func (f *FakeMLflow) Runs() []FakeRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeRun, 0, len(f.runs))
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out
}

// Versions returns a snapshot of the versions registered under name.
func (f *FakeMLflow) Versions(name string) []FakeVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeVersion, 0, len(f.versions[name]))
	for _, v := range f.versions[name] {
		out = append(out, *v)
	}
	return out
}

// Artifact returns the content uploaded at path, relative to the artifact root.
func (f *FakeMLflow) Artifact(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.artifacts[strings.TrimPrefix(path, "/")]
	return data, ok
}

// RequestIDs returns the X-Request-ID header of every request received.
func (f *FakeMLflow) RequestIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requestIDs...)
}

// AuthHeaders returns the Authorization header of every request received.
func (f *FakeMLflow) AuthHeaders() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.authHeaders...)
}

func (f *FakeMLflow) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		f.mu.Lock()
		f.requestIDs = append(f.requestIDs, c.GetHeader("X-Request-ID"))
		f.authHeaders = append(f.authHeaders, c.GetHeader("Authorization"))
		endpoint := strings.TrimPrefix(c.Request.URL.Path, "/api/2.0/mlflow/")
		if strings.HasPrefix(c.Request.URL.Path, "/api/2.0/mlflow-artifacts/") {
			endpoint = "artifacts"
		}
		failure, failing := f.failures[endpoint]
		f.mu.Unlock()

		if failing {
			c.AbortWithStatusJSON(failure.status, gin.H{"error_code": failure.code, "message": "injected failure"})
			return
		}
		c.Next()
	}
}

func apiError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"error_code": code, "message": msg})
}

func (f *FakeMLflow) getExperiment(c *gin.Context) {
	name := c.Query("experiment_name")

	f.mu.Lock()
	id, ok := f.experiments[name]
	f.mu.Unlock()

	if !ok {
		apiError(c, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", fmt.Sprintf("Could not find experiment with name '%s'", name))
		return
	}
	c.JSON(http.StatusOK, gin.H{"experiment": gin.H{"experiment_id": id, "name": name, "lifecycle_stage": "active"}})
}

func (f *FakeMLflow) createExperiment(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "missing experiment name")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.experiments[req.Name]; ok {
		apiError(c, http.StatusBadRequest, "RESOURCE_ALREADY_EXISTS", "experiment exists")
		return
	}
	id := strconv.Itoa(len(f.experiments))
	f.experiments[req.Name] = id
	c.JSON(http.StatusOK, gin.H{"experiment_id": id})
}

func (f *FakeMLflow) createRun(c *gin.Context) {
	var req struct {
		ExperimentID string `json:"experiment_id"`
		StartTime    int64  `json:"start_time"`
		RunName      string `json:"run_name"`
		Tags         []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", err.Error())
		return
	}

	run := &FakeRun{
		ID:           strings.ReplaceAll(uuid.New().String(), "-", ""),
		ExperimentID: req.ExperimentID,
		Name:         req.RunName,
		Status:       "RUNNING",
		Tags:         make(map[string]string, len(req.Tags)),
		StartTime:    req.StartTime,
	}
	if run.ExperimentID == "" {
		run.ExperimentID = "0"
	}
	if run.Name == "" {
		run.Name = "run-" + run.ID[:8]
	}
	for _, t := range req.Tags {
		run.Tags[t.Key] = t.Value
	}

	f.mu.Lock()
	f.runs[run.ID] = run
	f.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"run": gin.H{"info": gin.H{
		"run_id":          run.ID,
		"run_uuid":        run.ID,
		"experiment_id":   run.ExperimentID,
		"run_name":        run.Name,
		"status":          run.Status,
		"start_time":      run.StartTime,
		"artifact_uri":    fmt.Sprintf("mlflow-artifacts:/%s/%s/artifacts", run.ExperimentID, run.ID),
		"lifecycle_stage": "active",
	}}})
}

func (f *FakeMLflow) updateRun(c *gin.Context) {
	var req struct {
		RunID   string `json:"run_id"`
		Status  string `json:"status"`
		EndTime int64  `json:"end_time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", err.Error())
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[req.RunID]
	if !ok {
		apiError(c, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "run not found")
		return
	}
	run.Status = req.Status
	run.EndTime = req.EndTime
	c.JSON(http.StatusOK, gin.H{"run_info": gin.H{"run_id": run.ID, "status": run.Status}})
}

func (f *FakeMLflow) logModel(c *gin.Context) {
	var req struct {
		RunID     string `json:"run_id"`
		ModelJSON string `json:"model_json"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ModelJSON == "" {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "missing model_json")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[req.RunID]
	if !ok {
		apiError(c, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "run not found")
		return
	}
	run.ModelJSON = append(run.ModelJSON, req.ModelJSON)
	c.JSON(http.StatusOK, gin.H{})
}

func (f *FakeMLflow) uploadArtifact(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", err.Error())
		return
	}

	f.mu.Lock()
	f.artifacts[strings.TrimPrefix(c.Param("path"), "/")] = data
	f.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{})
}

func (f *FakeMLflow) createRegisteredModel(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "missing name")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.versions[req.Name]; ok {
		apiError(c, http.StatusBadRequest, "RESOURCE_ALREADY_EXISTS", fmt.Sprintf("Registered Model (name=%s) already exists.", req.Name))
		return
	}
	f.versions[req.Name] = []*FakeVersion{}
	c.JSON(http.StatusOK, gin.H{"registered_model": gin.H{"name": req.Name}})
}

func (f *FakeMLflow) createModelVersion(c *gin.Context) {
	var req struct {
		Name   string `json:"name"`
		Source string `json:"source"`
		RunID  string `json:"run_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" || req.Source == "" {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "missing name or source")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.versions[req.Name]
	if !ok {
		apiError(c, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", fmt.Sprintf("Registered Model with name=%s not found", req.Name))
		return
	}

	v := &FakeVersion{
		Name:    req.Name,
		Version: int64(len(existing) + 1),
		Source:  req.Source,
		RunID:   req.RunID,
		Status:  "READY",
	}
	if f.PendingPolls > 0 {
		v.Status = "PENDING_REGISTRATION"
	}
	f.versions[req.Name] = append(existing, v)
	c.JSON(http.StatusOK, gin.H{"model_version": versionJSON(v)})
}

func (f *FakeMLflow) getModelVersion(c *gin.Context) {
	name := c.Query("name")
	version, err := strconv.ParseInt(c.Query("version"), 10, 64)
	if err != nil {
		apiError(c, http.StatusBadRequest, "INVALID_PARAMETER_VALUE", "invalid version")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.versions[name] {
		if v.Version != version {
			continue
		}
		v.polls++
		if v.Status == "PENDING_REGISTRATION" && v.polls >= f.PendingPolls {
			v.Status = "READY"
		}
		c.JSON(http.StatusOK, gin.H{"model_version": versionJSON(v)})
		return
	}
	apiError(c, http.StatusNotFound, "RESOURCE_DOES_NOT_EXIST", "model version not found")
}

func versionJSON(v *FakeVersion) gin.H {
	now := time.Now().UnixMilli()
	return gin.H{
		"name":                   v.Name,
		"version":                strconv.FormatInt(v.Version, 10),
		"creation_timestamp":     now,
		"last_updated_timestamp": now,
		"current_stage":          "None",
		"source":                 v.Source,
		"run_id":                 v.RunID,
		"status":                 v.Status,
	}
}
