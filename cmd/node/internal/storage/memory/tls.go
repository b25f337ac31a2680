package memory

import (
	"context"
	"crypto/tls"
	"os"
	"sync"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/credentials"
)

// MemoryTLSProvider is a simple in-memory implementation for development
type MemoryTLSProvider struct {
	cert *tls.Certificate
	mu   sync.RWMutex
}

func NewMemoryTLSProvider() *MemoryTLSProvider {
	return &MemoryTLSProvider{}
}

func (p *MemoryTLSProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cert == nil {
		return nil, os.ErrNotExist
	}
	return p.cert, nil
}

// Store parses and keeps a PEM key pair, replacing any previous one.
func (p *MemoryTLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	cert, err := credentials.Load(keyPEM, certPEM)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cert = cert
	return nil
}
