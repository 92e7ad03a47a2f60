// Package mlmodel loads model artifacts stored in the MLflow model directory
// layout: an MLmodel YAML descriptor next to the serialized model files.
package mlmodel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

// Flavor keys naming the serialized model file, in lookup order.
var modelFileKeys = []string{"pickled_model", "model_path", "model_file", "data", "saved_model_dir"}

type loader struct{}

func NewLoader() ports.ModelLoader {
	return &loader{}
}

func (l *loader) Load(ctx context.Context, path string) (*domain.Model, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrModelPathNotFound, path)
		}
		return nil, fmt.Errorf("stat model path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a model directory", domain.ErrDeserialization, path)
	}

	descriptor, err := ReadDescriptor(filepath.Join(path, domain.DescriptorFile))
	if err != nil {
		return nil, err
	}

	flavors, err := parseFlavors(descriptor)
	if err != nil {
		return nil, err
	}

	framework := primaryFlavor(flavors)
	if err := domain.ValidateModelFramework(framework); err != nil {
		return nil, fmt.Errorf("%w: flavor %q: %w", domain.ErrDeserialization, framework, err)
	}

	flavor := flavors[framework]
	if file := modelFile(flavor); file != "" {
		if _, err := os.Stat(filepath.Join(path, filepath.FromSlash(file))); err != nil {
			return nil, fmt.Errorf("%w: flavor %q references missing file %q", domain.ErrDeserialization, framework, file)
		}
	}

	files, err := listFiles(ctx, path)
	if err != nil {
		return nil, err
	}

	return &domain.Model{
		Path:             path,
		Framework:        framework,
		FrameworkVersion: stringValue(flavor[framework+"_version"]),
		Flavors:          flavors,
		Descriptor:       descriptor,
		Files:            files,
	}, nil
}

// ReadDescriptor decodes the MLmodel file at path.
func ReadDescriptor(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: missing %s", domain.ErrDeserialization, domain.DescriptorFile)
		}
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrDeserialization, domain.DescriptorFile, err)
	}

	var descriptor map[string]any
	if err := yaml.Unmarshal(data, &descriptor); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrDeserialization, domain.DescriptorFile, err)
	}
	if descriptor == nil {
		return nil, fmt.Errorf("%w: empty %s", domain.ErrDeserialization, domain.DescriptorFile)
	}
	return descriptor, nil
}

// EncodeDescriptor renders descriptor in the MLmodel YAML format.
func EncodeDescriptor(descriptor map[string]any) ([]byte, error) {
	data, err := yaml.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", domain.DescriptorFile, err)
	}
	return data, nil
}

// WriteDescriptor encodes descriptor as an MLmodel file at path.
func WriteDescriptor(path string, descriptor map[string]any) error {
	data, err := EncodeDescriptor(descriptor)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func parseFlavors(descriptor map[string]any) (map[string]map[string]any, error) {
	raw, ok := descriptor["flavors"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s declares no flavors", domain.ErrDeserialization, domain.DescriptorFile)
	}

	flavors := make(map[string]map[string]any, len(raw))
	for name, v := range raw {
		switch conf := v.(type) {
		case map[string]any:
			flavors[name] = conf
		case nil:
			flavors[name] = map[string]any{}
		default:
			return nil, fmt.Errorf("%w: flavor %q is not a mapping", domain.ErrDeserialization, name)
		}
	}
	return flavors, nil
}

// primaryFlavor picks the framework flavor, falling back to python_function
// when it is the only one declared.
func primaryFlavor(flavors map[string]map[string]any) string {
	names := make([]string, 0, len(flavors))
	for name := range flavors {
		if name != domain.PyFuncFlavor {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return domain.PyFuncFlavor
	}
	sort.Strings(names)
	for _, name := range names {
		if domain.SupportedFrameworks[strings.ToLower(name)] {
			return name
		}
	}
	return names[0]
}

func modelFile(flavor map[string]any) string {
	for _, key := range modelFileKeys {
		if s := stringValue(flavor[key]); s != "" {
			return s
		}
	}
	return ""
}

func listFiles(ctx context.Context, root string) ([]domain.ModelFile, error) {
	var files []domain.ModelFile
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, domain.ModelFile{RelPath: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list model files: %w", err)
	}
	return files, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
