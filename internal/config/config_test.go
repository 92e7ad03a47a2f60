package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MLFLOW_TRACKING_URI", "")

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Registration.OutputFormat)
	assert.Equal(t, "random_forest_price_regressor", cfg.Registration.ArtifactPath)
	assert.Equal(t, 300*time.Second, cfg.Registration.AwaitRegistration)
	assert.Equal(t, time.Second, cfg.Registration.PollInterval)
	assert.Equal(t, BackendMLflow, cfg.Tracking.Backend)
	assert.Equal(t, BackendMLflow, cfg.Registry.Backend)
	assert.Equal(t, 120*time.Second, cfg.Tracking.Timeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.False(t, cfg.Kubernetes.Enabled)
}

func TestLoad_Flags(t *testing.T) {
	cfg, err := Load(newFlags(t,
		"--model_name", "used_cars_price_prediction_model",
		"--model_path", "./outputs/model",
		"--model_info_output_path", "./outputs/model_info.json",
		"--output_format", "csv",
		"--tracking_uri", "http://mlflow:5000",
		"--tag", "team=pricing",
		"--await_registration", "10s",
	))
	require.NoError(t, err)

	assert.Equal(t, "used_cars_price_prediction_model", cfg.Registration.ModelName)
	assert.Equal(t, "./outputs/model", cfg.Registration.ModelPath)
	assert.Equal(t, "./outputs/model_info.json", cfg.Registration.OutputPath)
	assert.Equal(t, "csv", cfg.Registration.OutputFormat)
	assert.Equal(t, "http://mlflow:5000", cfg.Tracking.URI)
	assert.Equal(t, map[string]string{"team": "pricing"}, cfg.Registration.Tags)
	assert.Equal(t, 10*time.Second, cfg.Registration.AwaitRegistration)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("MLFLOW_TRACKING_URI", "http://tracking:5000")
	t.Setenv("MLFLOW_TRACKING_TOKEN", "secret")
	t.Setenv("REGISTRAR_REGISTRATION_MODEL_NAME", "from-env")

	cfg, err := Load(newFlags(t))
	require.NoError(t, err)

	assert.Equal(t, "http://tracking:5000", cfg.Tracking.URI)
	assert.Equal(t, "secret", cfg.Tracking.Token)
	assert.Equal(t, "from-env", cfg.Registration.ModelName)
}

func TestLoad_FlagOverridesEnv(t *testing.T) {
	t.Setenv("MLFLOW_TRACKING_URI", "http://tracking:5000")

	cfg, err := Load(newFlags(t, "--tracking_uri", "http://flag:5000"))
	require.NoError(t, err)
	assert.Equal(t, "http://flag:5000", cfg.Tracking.URI)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrar.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
registration:
  model_name: from-file
  artifact_path: regressor
registry:
  backend: postgres
database:
  host: db
  port: 6543
`), 0o644))

	cfg, err := Load(newFlags(t, "--config", path))
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Registration.ModelName)
	assert.Equal(t, "regressor", cfg.Registration.ArtifactPath)
	assert.Equal(t, BackendPostgres, cfg.Registry.Backend)
	assert.Equal(t, "postgres://postgres:@db:6543/model_registry?sslmode=disable", cfg.Database.DSN())
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestDatabaseConfig_DSN_PrefersURL(t *testing.T) {
	d := DatabaseConfig{URL: "postgres://u:p@h/db", Host: "ignored"}
	assert.Equal(t, "postgres://u:p@h/db", d.DSN())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "mlflow ok", mutate: func(c *Config) {}},
		{
			name:    "mlflow without uri",
			mutate:  func(c *Config) { c.Tracking.URI = "" },
			wantErr: "tracking uri is required",
		},
		{
			name: "file tracking with postgres registry",
			mutate: func(c *Config) {
				c.Tracking.Backend = BackendFile
				c.Registry.Backend = BackendPostgres
			},
		},
		{
			name:    "file tracking with mlflow registry",
			mutate:  func(c *Config) { c.Tracking.Backend = BackendFile },
			wantErr: "requires the mlflow tracking backend",
		},
		{
			name:    "unknown tracking backend",
			mutate:  func(c *Config) { c.Tracking.Backend = "wandb" },
			wantErr: `unknown tracking backend "wandb"`,
		},
		{
			name:    "unknown registry backend",
			mutate:  func(c *Config) { c.Registry.Backend = "s3" },
			wantErr: `unknown registry backend "s3"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Tracking: TrackingConfig{Backend: BackendMLflow, URI: "http://mlflow:5000"},
				Registry: RegistryConfig{Backend: BackendMLflow},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
