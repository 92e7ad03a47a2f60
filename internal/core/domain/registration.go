package domain

import (
	"strings"
	"unicode/utf8"
)

type OutputFormat string

const (
	OutputFormatJSON OutputFormat = "json"
	OutputFormatCSV  OutputFormat = "csv"
)

// ParseOutputFormat maps a configured format name to an OutputFormat. An empty
// name selects JSON.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputFormatJSON:
		return OutputFormatJSON, nil
	case OutputFormatCSV:
		return OutputFormatCSV, nil
	}
	return "", ErrUnsupportedFormat
}

// DefaultArtifactPath is the artifact label models are logged under unless configured otherwise.
const DefaultArtifactPath = "random_forest_price_regressor"

// RegistrationRequest carries everything one registration needs.
type RegistrationRequest struct {
	ModelName    string
	ModelPath    string
	OutputPath   string
	OutputFormat OutputFormat
	ArtifactPath string
	RunName      string
	Tags         map[string]string
}

// Validate checks the required fields. Names are not normalized.
func (r *RegistrationRequest) Validate() error {
	if r.ModelName == "" {
		return ErrMissingModelName
	}
	if !utf8.ValidString(r.ModelName) {
		return ErrModelNameEncoding
	}
	if r.ModelPath == "" {
		return ErrMissingModelPath
	}
	if r.OutputPath == "" {
		return ErrMissingOutputPath
	}
	if r.ArtifactPath == "" {
		return ErrMissingArtifactPath
	}
	switch r.OutputFormat {
	case OutputFormatJSON, OutputFormatCSV:
	default:
		return ErrUnsupportedFormat
	}
	return nil
}

// ResultStatusRegistered is the status column written for a registered model.
const ResultStatusRegistered = "registered"

// ResultRecord is the durable output of a registration.
type ResultRecord struct {
	ID        string `json:"id"`
	URI       string `json:"uri"`
	ModelName string `json:"-"`
	ModelPath string `json:"-"`
	Version   int64  `json:"-"`
	Status    string `json:"-"`
}

// NewResultRecord builds the record for entry, keeping the requested name verbatim.
func NewResultRecord(req *RegistrationRequest, entry *RegistryEntry) *ResultRecord {
	named := *entry
	named.Name = req.ModelName
	return &ResultRecord{
		ID:        named.ID(),
		URI:       entry.Source,
		ModelName: req.ModelName,
		ModelPath: req.ModelPath,
		Version:   entry.Version,
		Status:    ResultStatusRegistered,
	}
}
