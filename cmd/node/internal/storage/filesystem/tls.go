package filesystem

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/credentials"
)

// FileTLSProvider loads a PEM key and certificate chain from disk.
type FileTLSProvider struct {
	CertFile string
	KeyFile  string
}

func NewFileTLSProvider(certFile, keyFile string) *FileTLSProvider {
	return &FileTLSProvider{
		CertFile: certFile,
		KeyFile:  keyFile,
	}
}

// GetCertificate reads and validates the key pair. A missing file yields a
// *credentials.NotFoundError naming its role.
func (p *FileTLSProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	keyPEM, err := readFile(p.KeyFile, credentials.RoleKey)
	if err != nil {
		return nil, err
	}
	key, err := credentials.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load key from %s: %w", p.KeyFile, err)
	}

	certPEM, err := readFile(p.CertFile, credentials.RoleCertificate)
	if err != nil {
		return nil, err
	}
	chain, err := credentials.ParseCertificateChain(certPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificates from %s: %w", p.CertFile, err)
	}

	cert, err := credentials.NewCertificate(chain, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load key pair from %s, %s: %w", p.CertFile, p.KeyFile, err)
	}
	return cert, nil
}

func readFile(path string, role credentials.Role) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &credentials.NotFoundError{Role: role, Path: path}
		}
		return nil, fmt.Errorf("failed to stat %s file: %w", role, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s file: %w", role, err)
	}
	return data, nil
}
