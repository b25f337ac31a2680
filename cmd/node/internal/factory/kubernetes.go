package factory

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/config"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// NewKubernetesClient builds a clientset from the configured kubeconfig,
// falling back to in-cluster configuration.
func NewKubernetesClient(cfg *config.Config, log *slog.Logger) (k8s.Interface, error) {
	if log == nil {
		log = logger.Default()
	}
	log.Info("Creating Kubernetes client",
		"kubeconfig", cfg.KubeConfigPath,
		"context", cfg.KubeContext)

	kubeconfig := cfg.KubeConfigPath
	if kubeconfig == "" && !inCluster() {
		if home := os.Getenv("HOME"); home != "" {
			kubeconfig = home + "/.kube/config"
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if cfg.KubeContext != "" {
		configOverrides.CurrentContext = cfg.KubeContext
		log.Info("Using specific Kubernetes context", "context", cfg.KubeContext)
	}

	var restConfig *rest.Config
	var err error

	if kubeconfig != "" {
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()

		if err != nil {
			log.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
		}
	}

	if restConfig == nil {
		log.Info("Attempting in-cluster Kubernetes configuration")
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
		}
	}

	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return clientset, nil
}

func inCluster() bool {
	_, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount")
	return err == nil
}
