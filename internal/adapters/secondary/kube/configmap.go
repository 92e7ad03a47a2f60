package kube

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/validation"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"model-registrar/internal/adapters/secondary/resultfile"
	"model-registrar/internal/config"
	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

const (
	labelManagedBy = "app.kubernetes.io/managed-by"
	labelModelName = "model-registry/model-name"
	managerName    = "model-registrar"
)

type configMapPublisher struct {
	client    kubernetes.Interface
	enabled   bool
	namespace string
	name      string
}

// NewConfigMapPublisher creates a ResultPublisher that mirrors result records
// into a ConfigMap, so in-cluster consumers can read the registered version.
func NewConfigMapPublisher(cfg *config.KubernetesConfig) (ports.ResultPublisher, error) {
	if !cfg.Enabled {
		return &configMapPublisher{enabled: false}, nil
	}

	var restCfg *rest.Config
	var err error

	if cfg.InCluster {
		restCfg, err = rest.InClusterConfig()
	} else if cfg.KubeConfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", cfg.KubeConfigPath)
	} else {
		// Try default kubeconfig location
		home, _ := os.UserHomeDir()
		kubeconfig := filepath.Join(home, ".kube", "config")
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	if err != nil {
		return nil, fmt.Errorf("build k8s config: %w", err)
	}

	client, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("create k8s client: %w", err)
	}

	return NewConfigMapPublisherWithClient(client, cfg.Namespace, cfg.ConfigMapName), nil
}

// NewConfigMapPublisherWithClient creates an enabled publisher on an existing client.
func NewConfigMapPublisherWithClient(client kubernetes.Interface, namespace, name string) ports.ResultPublisher {
	if namespace == "" {
		namespace = "default"
	}
	return &configMapPublisher{
		client:    client,
		enabled:   true,
		namespace: namespace,
		name:      name,
	}
}

func labels(modelName string) map[string]string {
	l := map[string]string{labelManagedBy: managerName}
	if v := labelValue(modelName); v != "" {
		l[labelModelName] = v
	}
	return l
}

func (p *configMapPublisher) IsAvailable() bool {
	return p.enabled
}

func (p *configMapPublisher) Publish(ctx context.Context, record *domain.ResultRecord) error {
	if !p.enabled {
		return nil
	}

	payload, err := resultfile.Encode(domain.OutputFormatJSON, record)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPublish, err)
	}

	desired := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      p.name,
			Namespace: p.namespace,
			Labels:    labels(record.ModelName),
		},
		Data: map[string]string{
			"model_info.json": string(payload),
			"id":              record.ID,
			"uri":             record.URI,
			"model_name":      record.ModelName,
			"version":         strconv.FormatInt(record.Version, 10),
		},
	}

	configMaps := p.client.CoreV1().ConfigMaps(p.namespace)
	existing, err := configMaps.Get(ctx, p.name, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		if _, err := configMaps.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("%w: create configmap %s/%s: %w", domain.ErrPublish, p.namespace, p.name, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("%w: get configmap %s/%s: %w", domain.ErrPublish, p.namespace, p.name, err)
	}

	existing.Labels = desired.Labels
	existing.Data = desired.Data
	if _, err := configMaps.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("%w: update configmap %s/%s: %w", domain.ErrPublish, p.namespace, p.name, err)
	}
	return nil
}

// labelValue turns a model name into a valid label value: characters outside
// [A-Za-z0-9._-] become '_', the result is cut to 63 characters and must start
// and end with an alphanumeric. It returns "" when nothing usable remains.
func labelValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > validation.LabelValueMaxLength {
		out = out[:validation.LabelValueMaxLength]
	}
	out = strings.TrimFunc(out, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	})
	if len(validation.IsValidLabelValue(out)) > 0 {
		return ""
	}
	return out
}
