package factory

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/config"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/core"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/credentials"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/storage/filesystem"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/storage/kubernetes"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/storage/memory"

	k8s "k8s.io/client-go/kubernetes"
)

// TLSFactory creates TLS providers based on configuration
type TLSFactory struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewTLSFactory creates a new TLS factory. A nil log falls back to the
// process logger.
func NewTLSFactory(cfg *config.Config, log *slog.Logger) *TLSFactory {
	if log == nil {
		log = logger.Default()
	}
	return &TLSFactory{cfg: cfg, logger: log}
}

// Create creates a TLS provider based on configuration. clientset is only
// used in kubernetes mode.
func (f *TLSFactory) Create(ctx context.Context, clientset k8s.Interface) (core.TLSProvider, error) {
	switch f.cfg.TLSMode {
	case config.TLSModeFile:
		return f.createFileProvider()
	case config.TLSModeKubernetes:
		return f.createKubernetesProvider(clientset)
	case config.TLSModeMemory:
		return f.createMemoryProvider(ctx)
	default:
		return nil, fmt.Errorf("unknown TLS mode: %s", f.cfg.TLSMode)
	}
}

func (f *TLSFactory) createFileProvider() (core.TLSProvider, error) {
	f.logger.Info("Creating File-based TLS Provider",
		"cert", f.cfg.TLSCertFile,
		"key", f.cfg.TLSKeyFile)
	return filesystem.NewFileTLSProvider(f.cfg.TLSCertFile, f.cfg.TLSKeyFile), nil
}

func (f *TLSFactory) createKubernetesProvider(clientset k8s.Interface) (core.TLSProvider, error) {
	if clientset == nil {
		return nil, fmt.Errorf("kubernetes TLS mode requires a kubernetes client")
	}

	f.logger.Info("Creating Kubernetes TLS Provider",
		"namespace", f.cfg.Namespace,
		"secret", f.cfg.TLSSecretName)

	return kubernetes.NewK8sTLSProvider(clientset, f.cfg.Namespace, f.cfg.TLSSecretName), nil
}

func (f *TLSFactory) createMemoryProvider(ctx context.Context) (core.TLSProvider, error) {
	f.logger.Warn("Using a generated self-signed certificate; clients will not trust it")
	hosts := []string{"localhost"}
	if ip := net.ParseIP(f.cfg.Address); f.cfg.Address != "" && (ip == nil || !ip.IsUnspecified()) {
		hosts = append(hosts, f.cfg.Address)
	}
	certPEM, keyPEM, err := credentials.GenerateSelfSigned(credentials.KeyFormatPKCS8, hosts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}
	provider := memory.NewMemoryTLSProvider()
	if err := provider.Store(ctx, certPEM, keyPEM); err != nil {
		return nil, fmt.Errorf("failed to store self-signed certificate: %w", err)
	}
	return provider, nil
}

// Load fetches the identity from provider and warns when the leaf
// certificate is close to expiry.
func (f *TLSFactory) Load(ctx context.Context, provider core.TLSProvider) (*tls.Certificate, error) {
	cert, err := provider.GetCertificate(ctx)
	if err != nil {
		return nil, err
	}

	expiring, notAfter := CertificateExpiresWithin(cert, f.cfg.CertExpiryDays, time.Now())
	if expiring {
		f.logger.Warn("TLS certificate expires soon", "not_after", notAfter, "threshold_days", f.cfg.CertExpiryDays)
	}
	f.logger.Info("Certificate loaded and validated successfully", "not_after", notAfter)
	return cert, nil
}

// CertificateExpiresWithin reports whether the leaf of cert expires within
// thresholdDays of now.
func CertificateExpiresWithin(cert *tls.Certificate, thresholdDays int, now time.Time) (bool, time.Time) {
	if cert.Leaf == nil {
		return false, time.Time{}
	}
	threshold := now.AddDate(0, 0, thresholdDays)
	return cert.Leaf.NotAfter.Before(threshold), cert.Leaf.NotAfter
}
