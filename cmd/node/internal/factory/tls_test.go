package factory

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/config"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/credentials"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/storage/filesystem"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/storage/kubernetes"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestCreateFileProvider(t *testing.T) {
	certPEM, keyPEM, err := credentials.GenerateSelfSigned(credentials.KeyFormatPKCS1, "localhost")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg := config.Default()
	cfg.TLSCertFile = filepath.Join(dir, "cert.pem")
	cfg.TLSKeyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(cfg.TLSCertFile, certPEM, 0o644))
	require.NoError(t, os.WriteFile(cfg.TLSKeyFile, keyPEM, 0o600))

	f := NewTLSFactory(cfg, logger.Discard())
	provider, err := f.Create(context.Background(), nil)
	require.NoError(t, err)
	require.IsType(t, &filesystem.FileTLSProvider{}, provider)

	cert, err := f.Load(context.Background(), provider)
	require.NoError(t, err)
	require.NotNil(t, cert.Leaf)
}

func TestCreateFileProviderMissingKey(t *testing.T) {
	cfg := config.Default()
	cfg.TLSCertFile = filepath.Join(t.TempDir(), "cert.pem")
	cfg.TLSKeyFile = filepath.Join(t.TempDir(), "key.pem")

	f := NewTLSFactory(cfg, logger.Discard())
	provider, err := f.Create(context.Background(), nil)
	require.NoError(t, err)
	_, err = f.Load(context.Background(), provider)
	require.ErrorIs(t, err, credentials.ErrKeyNotFound)
}

func TestCreateKubernetesProvider(t *testing.T) {
	certPEM, keyPEM, err := credentials.GenerateSelfSigned(credentials.KeyFormatPKCS8, "localhost")
	require.NoError(t, err)
	clientset := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "node-tls", Namespace: "edge"},
		Type:       corev1.SecretTypeTLS,
		Data: map[string][]byte{
			corev1.TLSCertKey:       certPEM,
			corev1.TLSPrivateKeyKey: keyPEM,
		},
	})

	cfg := config.Default()
	cfg.TLSMode = config.TLSModeKubernetes
	cfg.TLSSecretName = "node-tls"
	cfg.Namespace = "edge"

	f := NewTLSFactory(cfg, logger.Discard())
	_, err = f.Create(context.Background(), nil)
	require.Error(t, err, "kubernetes mode needs a client")

	provider, err := f.Create(context.Background(), clientset)
	require.NoError(t, err)
	require.IsType(t, &kubernetes.K8sTLSProvider{}, provider)
	_, err = f.Load(context.Background(), provider)
	require.NoError(t, err)
}

func TestCreateMemoryProvider(t *testing.T) {
	cfg := config.Default()
	cfg.TLSMode = config.TLSModeMemory
	cfg.Address = "127.0.0.1"

	f := NewTLSFactory(cfg, logger.Discard())
	provider, err := f.Create(context.Background(), nil)
	require.NoError(t, err)
	cert, err := f.Load(context.Background(), provider)
	require.NoError(t, err)
	require.Contains(t, cert.Leaf.DNSNames, "localhost")
	require.Len(t, cert.Leaf.IPAddresses, 1)

	cfg.Address = "0.0.0.0"
	provider, err = f.Create(context.Background(), nil)
	require.NoError(t, err)
	cert, err = f.Load(context.Background(), provider)
	require.NoError(t, err)
	require.Empty(t, cert.Leaf.IPAddresses)
}

func TestCertificateExpiresWithin(t *testing.T) {
	certPEM, keyPEM, err := credentials.GenerateSelfSigned(credentials.KeyFormatPKCS8, "localhost")
	require.NoError(t, err)
	cert, err := credentials.Load(keyPEM, certPEM)
	require.NoError(t, err)

	now := time.Now()
	expiring, notAfter := CertificateExpiresWithin(cert, 30, now)
	require.False(t, expiring)
	require.Equal(t, cert.Leaf.NotAfter, notAfter)

	expiring, _ = CertificateExpiresWithin(cert, 30, now.AddDate(0, 11, 15))
	require.True(t, expiring)
}

func TestFactoryLogsToInjectedLogger(t *testing.T) {
	var out bytes.Buffer
	cfg := config.Default()
	cfg.TLSMode = config.TLSModeMemory

	f := NewTLSFactory(cfg, logger.New(logger.Options{Output: &out}))
	_, err := f.Create(context.Background(), nil)
	require.NoError(t, err)
	require.Contains(t, out.String(), "level=WARN")
	require.Contains(t, out.String(), "self-signed")
}
