package mlflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	log "github.com/sirupsen/logrus"

	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

type registry struct {
	client *Client
}

// NewRegistry returns a Registry backed by the MLflow model registry.
func NewRegistry(client *Client) ports.Registry {
	return &registry{client: client}
}

func (r *registry) Register(ctx context.Context, name string, logged *domain.LoggedModel) (*domain.RegistryEntry, error) {
	err := r.client.Call(ctx, http.MethodPost, "registered-models/create", nil,
		createRegisteredModelRequest{Name: name}, nil)
	switch {
	case err == nil:
		log.WithField("model_name", name).Info("created registered model")
	case IsCode(err, CodeResourceAlreadyExists):
		log.WithField("model_name", name).Debug("registered model already exists")
	default:
		return nil, fmt.Errorf("%w: create registered model %q: %w", domain.ErrRegistry, name, err)
	}

	source := logged.ArtifactURI
	if source == "" {
		source = logged.ModelURI
	}

	var resp modelVersionResponse
	err = r.client.Call(ctx, http.MethodPost, "model-versions/create", nil, createModelVersionRequest{
		Name:   name,
		Source: source,
		RunID:  logged.RunID,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: create model version of %q: %w", domain.ErrRegistry, name, err)
	}
	return resp.ModelVersion.toDomain()
}

func (r *registry) GetVersion(ctx context.Context, name string, version int64) (*domain.RegistryEntry, error) {
	query := url.Values{}
	query.Set("name", name)
	query.Set("version", strconv.FormatInt(version, 10))

	var resp modelVersionResponse
	if err := r.client.Call(ctx, http.MethodGet, "model-versions/get", query, nil, &resp); err != nil {
		return nil, fmt.Errorf("%w: get model version %s:%d: %w", domain.ErrRegistry, name, version, err)
	}
	return resp.ModelVersion.toDomain()
}
