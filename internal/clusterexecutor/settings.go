package clusterexecutor

import (
	"fmt"
	"time"

	"github.com/specialistvlad/eppicbatch/internal/config"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const (
	defaultNamespace    = "default"
	defaultPollInterval = 10 * time.Second
	defaultTTL          = 24 * time.Hour
)

// Settings controls how Jobs are created.
type Settings struct {
	Namespace string
	Image     string
	// ClaimName is a PersistentVolumeClaim holding the output tree. It is
	// mounted at MountPath so paths match the submitting host.
	ClaimName      string
	MountPath      string
	ServiceAccount string
	Memory         string
	CPU            string
	PollInterval   time.Duration
	// TTL removes finished Jobs after the given time. Zero keeps them.
	TTL time.Duration
}

// SettingsFromConfig converts the `cluster` block of the parameter file,
// filling in defaults.
func SettingsFromConfig(c config.Cluster) (Settings, error) {
	s := Settings{
		Namespace:      c.Namespace,
		Image:          c.Image,
		ClaimName:      c.Claim,
		MountPath:      c.MountPath,
		ServiceAccount: c.ServiceAccount,
		Memory:         c.Memory,
		CPU:            c.CPU,
		PollInterval:   defaultPollInterval,
		TTL:            defaultTTL,
	}
	if s.Namespace == "" {
		s.Namespace = defaultNamespace
	}
	if s.Image == "" {
		return s, fmt.Errorf("cluster.image is required")
	}
	if s.ClaimName != "" && s.MountPath == "" {
		return s, fmt.Errorf("cluster.mount_path is required when cluster.claim is set")
	}
	if c.PollInterval != "" {
		d, err := time.ParseDuration(c.PollInterval)
		if err != nil {
			return s, fmt.Errorf("invalid cluster.poll_interval %q: %w", c.PollInterval, err)
		}
		s.PollInterval = d
	}
	for name, q := range map[string]string{"memory": s.Memory, "cpu": s.CPU} {
		if q == "" {
			continue
		}
		if _, err := resource.ParseQuantity(q); err != nil {
			return s, fmt.Errorf("invalid cluster.%s %q: %w", name, q, err)
		}
	}
	return s, nil
}

// NewClient builds a clientset from kubeconfig, or from the in-cluster
// service account when kubeconfig is empty.
func NewClient(kubeconfig string) (kubernetes.Interface, error) {
	var cfg *rest.Config
	var err error
	if kubeconfig != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		cfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("loading cluster config: %w", err)
	}
	return kubernetes.NewForConfig(cfg)
}
