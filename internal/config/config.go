package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backends
const (
	BackendMLflow   = "mlflow"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Registration RegistrationConfig
	Tracking     TrackingConfig
	Registry     RegistryConfig
	Database     DatabaseConfig
	Kubernetes   KubernetesConfig
	Metrics      MetricsConfig
	Logger       LoggerConfig
}

type RegistrationConfig struct {
	ModelName         string
	ModelPath         string
	OutputPath        string
	OutputFormat      string
	ArtifactPath      string
	RunName           string
	Tags              map[string]string
	AwaitRegistration time.Duration
	PollInterval      time.Duration
}

type TrackingConfig struct {
	Backend            string
	URI                string
	Token              string
	Username           string
	Password           string
	Timeout            time.Duration
	InsecureSkipVerify bool
	ExperimentName     string
	FileRoot           string
}

type RegistryConfig struct {
	Backend string
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the connection string, preferring an explicit URL.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type KubernetesConfig struct {
	Enabled        bool
	InCluster      bool
	KubeConfigPath string
	Namespace      string
	ConfigMapName  string
}

type MetricsConfig struct {
	PushgatewayURL string
	Job            string
}

type LoggerConfig struct {
	Level  string
	Format string
}

// flag name -> config key
var flagKeys = map[string]string{
	"model_name":             "registration.model_name",
	"model_path":             "registration.model_path",
	"model_info_output_path": "registration.output_path",
	"output_format":          "registration.output_format",
	"artifact_path":          "registration.artifact_path",
	"run_name":               "registration.run_name",
	"tag":                    "registration.tags",
	"await_registration":     "registration.await_registration",
	"experiment_name":        "tracking.experiment_name",
	"tracking_backend":       "tracking.backend",
	"tracking_uri":           "tracking.uri",
	"registry_backend":       "registry.backend",
	"database_url":           "database.url",
	"publish_configmap":      "kubernetes.enabled",
	"pushgateway_url":        "metrics.pushgateway_url",
	"log_level":              "logger.level",
	"log_format":             "logger.format",
}

// RegisterFlags defines the command line surface on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("model_name", "", "Name under which model will be registered")
	fs.String("model_path", "", "Model directory")
	fs.String("model_info_output_path", "", "Path to write model info")
	fs.String("output_format", "json", "Model info format: json or csv")
	fs.String("artifact_path", "random_forest_price_regressor", "Artifact label the model is logged under")
	fs.String("run_name", "", "Tracking run name")
	fs.StringToString("tag", nil, "Tracking run tag key=value (repeatable)")
	fs.Duration("await_registration", 300*time.Second, "How long to wait for the model version to become READY (0 disables)")
	fs.String("experiment_name", "", "Experiment the run is created in")
	fs.String("tracking_backend", BackendMLflow, "Tracking backend: mlflow or file")
	fs.String("tracking_uri", "", "Tracking server URI (defaults to MLFLOW_TRACKING_URI)")
	fs.String("registry_backend", BackendMLflow, "Registry backend: mlflow or postgres")
	fs.String("database_url", "", "PostgreSQL URL for the postgres registry backend")
	fs.Bool("publish_configmap", false, "Mirror the model info into a Kubernetes ConfigMap")
	fs.String("pushgateway_url", "", "Prometheus Pushgateway URL for job metrics")
	fs.String("log_level", "info", "Log level")
	fs.String("log_format", "text", "Log format: text or json")
}

// Load resolves the configuration from flags, environment, an optional config
// file and defaults, in that order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REGISTRAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// MLflow's own environment variables.
	for key, env := range map[string]string{
		"tracking.uri":             "MLFLOW_TRACKING_URI",
		"tracking.token":           "MLFLOW_TRACKING_TOKEN",
		"tracking.username":        "MLFLOW_TRACKING_USERNAME",
		"tracking.password":        "MLFLOW_TRACKING_PASSWORD",
		"tracking.insecure_tls":    "MLFLOW_TRACKING_INSECURE_TLS",
		"tracking.experiment_name": "MLFLOW_EXPERIMENT_NAME",
		"database.url":             "DATABASE_URL",
	} {
		prefixed := "REGISTRAR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Registration: RegistrationConfig{
			ModelName:         v.GetString("registration.model_name"),
			ModelPath:         v.GetString("registration.model_path"),
			OutputPath:        v.GetString("registration.output_path"),
			OutputFormat:      v.GetString("registration.output_format"),
			ArtifactPath:      v.GetString("registration.artifact_path"),
			RunName:           v.GetString("registration.run_name"),
			Tags:              v.GetStringMapString("registration.tags"),
			AwaitRegistration: v.GetDuration("registration.await_registration"),
			PollInterval:      v.GetDuration("registration.poll_interval"),
		},
		Tracking: TrackingConfig{
			Backend:            strings.ToLower(v.GetString("tracking.backend")),
			URI:                v.GetString("tracking.uri"),
			Token:              v.GetString("tracking.token"),
			Username:           v.GetString("tracking.username"),
			Password:           v.GetString("tracking.password"),
			Timeout:            v.GetDuration("tracking.timeout"),
			InsecureSkipVerify: v.GetBool("tracking.insecure_tls"),
			ExperimentName:     v.GetString("tracking.experiment_name"),
			FileRoot:           v.GetString("tracking.file_root"),
		},
		Registry: RegistryConfig{
			Backend: strings.ToLower(v.GetString("registry.backend")),
		},
		Database: DatabaseConfig{
			URL:             v.GetString("database.url"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Kubernetes: KubernetesConfig{
			Enabled:        v.GetBool("kubernetes.enabled"),
			InCluster:      v.GetBool("kubernetes.in_cluster"),
			KubeConfigPath: v.GetString("kubernetes.kubeconfig"),
			Namespace:      v.GetString("kubernetes.namespace"),
			ConfigMapName:  v.GetString("kubernetes.configmap_name"),
		},
		Metrics: MetricsConfig{
			PushgatewayURL: v.GetString("metrics.pushgateway_url"),
			Job:            v.GetString("metrics.job"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("logger.level"),
			Format: v.GetString("logger.format"),
		},
	}

	if cfg.Tracking.Backend == BackendFile && cfg.Tracking.FileRoot == "" {
		cfg.Tracking.FileRoot = "./mlruns"
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("registration.output_format", "json")
	v.SetDefault("registration.artifact_path", "random_forest_price_regressor")
	v.SetDefault("registration.await_registration", "300s")
	v.SetDefault("registration.poll_interval", "1s")
	v.SetDefault("tracking.backend", BackendMLflow)
	v.SetDefault("tracking.timeout", "120s")
	v.SetDefault("tracking.file_root", "./mlruns")
	v.SetDefault("registry.backend", BackendMLflow)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "model_registry")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("kubernetes.namespace", "default")
	v.SetDefault("kubernetes.configmap_name", "model-info")
	v.SetDefault("metrics.job", "model_registrar")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
}

// Validate checks backend selection. Registration fields are validated by the
// registration request itself.
func (c *Config) Validate() error {
	var errs []error

	switch c.Tracking.Backend {
	case BackendMLflow:
		if c.Tracking.URI == "" {
			errs = append(errs, errors.New("tracking uri is required for the mlflow tracking backend (set --tracking_uri or MLFLOW_TRACKING_URI)"))
		}
	case BackendFile:
	default:
		errs = append(errs, fmt.Errorf("unknown tracking backend %q", c.Tracking.Backend))
	}

	switch c.Registry.Backend {
	case BackendMLflow:
		if c.Tracking.Backend != BackendMLflow {
			errs = append(errs, errors.New("the mlflow registry backend requires the mlflow tracking backend"))
		}
	case BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown registry backend %q", c.Registry.Backend))
	}

	if c.Kubernetes.Enabled && c.Kubernetes.ConfigMapName == "" {
		errs = append(errs, errors.New("configmap name is required when publishing to kubernetes"))
	}

	return errors.Join(errs...)
}
