package kubernetes

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/credentials"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// K8sTLSProvider reads the node identity from a kubernetes.io/tls Secret.
type K8sTLSProvider struct {
	clientset  kubernetes.Interface
	namespace  string
	secretName string
}

func NewK8sTLSProvider(clientset kubernetes.Interface, namespace, secretName string) *K8sTLSProvider {
	return &K8sTLSProvider{
		clientset:  clientset,
		namespace:  namespace,
		secretName: secretName,
	}
}

func (p *K8sTLSProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	secret, err := p.clientset.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, &credentials.NotFoundError{Role: credentials.RoleCertificate, Path: p.ref()}
		}
		return nil, fmt.Errorf("failed to get secret %s: %w", p.ref(), err)
	}

	keyBytes, ok := secret.Data[corev1.TLSPrivateKeyKey]
	if !ok {
		return nil, &credentials.NotFoundError{Role: credentials.RoleKey, Path: p.ref() + "#" + corev1.TLSPrivateKeyKey}
	}
	certBytes, ok := secret.Data[corev1.TLSCertKey]
	if !ok {
		return nil, &credentials.NotFoundError{Role: credentials.RoleCertificate, Path: p.ref() + "#" + corev1.TLSCertKey}
	}

	cert, err := credentials.Load(keyBytes, certBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse key pair from secret %s: %w", p.ref(), err)
	}
	return cert, nil
}

func (p *K8sTLSProvider) ref() string {
	return p.namespace + "/" + p.secretName
}
