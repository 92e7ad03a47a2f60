package domain

import "strings"

// DescriptorFile is the name of the descriptor every loadable model directory carries.
const DescriptorFile = "MLmodel"

// PyFuncFlavor is the generic flavor present alongside framework flavors.
const PyFuncFlavor = "python_function"

// Frameworks the registry accepts as a model flavor.
var SupportedFrameworks = map[string]bool{
	"sklearn":      true,
	"xgboost":      true,
	"tensorflow":   true,
	"pytorch":      true,
	"onnx":         true,
	"lightgbm":     true,
	"paddle":       true,
	"catboost":     true,
	"statsmodels":  true,
	"keras":        true,
	"spark":        true,
	"h2o":          true,
	"prophet":      true,
	"transformers": true,
	PyFuncFlavor:   true,
}

func ValidateModelFramework(framework string) error {
	if framework == "" {
		return nil
	}
	if !SupportedFrameworks[strings.ToLower(framework)] {
		return ErrUnsupportedFramework
	}
	return nil
}

// ModelFile is a single file of a model artifact, relative to the artifact root.
type ModelFile struct {
	RelPath string `json:"rel_path"`
	Size    int64  `json:"size"`
}

// Model is a deserialized model artifact. Loading never modifies the files under Path.
type Model struct {
	Path             string                    `json:"path"`
	Framework        string                    `json:"framework"`
	FrameworkVersion string                    `json:"framework_version"`
	Flavors          map[string]map[string]any `json:"flavors"`
	Descriptor       map[string]any            `json:"descriptor"`
	Files            []ModelFile               `json:"files"`
}

// TotalSize returns the summed size of the artifact files.
func (m *Model) TotalSize() int64 {
	var total int64
	for _, f := range m.Files {
		total += f.Size
	}
	return total
}
