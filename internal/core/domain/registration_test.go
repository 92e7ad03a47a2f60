package domain

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validRequest() RegistrationRequest {
	return RegistrationRequest{
		ModelName:    "used_cars_price_prediction_model",
		ModelPath:    "/data/model",
		OutputPath:   "/outputs/model_info.json",
		OutputFormat: OutputFormatJSON,
		ArtifactPath: DefaultArtifactPath,
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputFormatJSON, false},
		{"json", OutputFormatJSON, false},
		{" CSV ", OutputFormatCSV, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestRegistrationRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegistrationRequest)
		want   error
	}{
		{"valid", func(*RegistrationRequest) {}, nil},
		{"csv", func(r *RegistrationRequest) { r.OutputFormat = OutputFormatCSV }, nil},
		{"no name", func(r *RegistrationRequest) { r.ModelName = "" }, ErrMissingModelName},
		{"invalid utf-8 name", func(r *RegistrationRequest) { r.ModelName = "bad\xffname" }, ErrModelNameEncoding},
		{"unicode name", func(r *RegistrationRequest) { r.ModelName = "modèle_prix" }, nil},
		{"no path", func(r *RegistrationRequest) { r.ModelPath = "" }, ErrMissingModelPath},
		{"no output", func(r *RegistrationRequest) { r.OutputPath = "" }, ErrMissingOutputPath},
		{"no label", func(r *RegistrationRequest) { r.ArtifactPath = "" }, ErrMissingArtifactPath},
		{"no format", func(r *RegistrationRequest) { r.OutputFormat = "" }, ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewResultRecord(t *testing.T) {
	req := validRequest()
	entry := &RegistryEntry{
		Name:    req.ModelName,
		Version: 7,
		Source:  "mlflow-artifacts:/0/abc/artifacts/random_forest_price_regressor",
		Status:  VersionStatusReady,
	}

	record := NewResultRecord(&req, entry)

	assert.Equal(t, "used_cars_price_prediction_model:7", record.ID)
	assert.Equal(t, entry.Source, record.URI)
	assert.Equal(t, req.ModelPath, record.ModelPath)
	assert.Equal(t, ResultStatusRegistered, record.Status)
}

func TestNewResultRecord_KeepsNameVerbatim(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringN(1, 64, -1).Draw(t, "name")
		version := rapid.Int64Range(1, 1<<40).Draw(t, "version")

		req := validRequest()
		req.ModelName = name
		record := NewResultRecord(&req, &RegistryEntry{Name: "normalized", Version: version, Source: "s3://bucket/model"})

		if want := name + ":" + strconv.FormatInt(version, 10); record.ID != want {
			t.Fatalf("id = %q, want %q", record.ID, want)
		}
		if record.URI != "s3://bucket/model" {
			t.Fatalf("uri = %q", record.URI)
		}
	})
}

func TestTrackingRun_ModelURI(t *testing.T) {
	run := &TrackingRun{RunID: "0f4e5b6c"}
	assert.Equal(t, "runs:/0f4e5b6c/random_forest_price_regressor", run.ModelURI(DefaultArtifactPath))
}

func TestVersionStatus_IsTerminal(t *testing.T) {
	assert.False(t, VersionStatusPending.IsTerminal())
	assert.True(t, VersionStatusReady.IsTerminal())
	assert.True(t, VersionStatusFailed.IsTerminal())
}

func TestModel_TotalSize(t *testing.T) {
	m := &Model{Files: []ModelFile{{RelPath: "MLmodel", Size: 100}, {RelPath: "model.pkl", Size: 900}}}
	assert.Equal(t, int64(1000), m.TotalSize())
	assert.NoError(t, ValidateModelFramework("sklearn"))
	assert.ErrorIs(t, ValidateModelFramework("caffe"), ErrUnsupportedFramework)
}
