// Package credentials parses PEM-encoded TLS key material into a server identity.
//
// Private keys are read as PKCS#8 first and fall back to PKCS#1 (RSA) when no
// usable PKCS#8 key is present. Certificates are read as an ordered chain, leaf
// first, and the leaf must match the private key.
package credentials

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
)

// Role names which half of the key material an error refers to.
type Role string

const (
	RoleKey         Role = "key"
	RoleCertificate Role = "certificate"
)

var (
	ErrKeyNotFound         = errors.New("TLS key not found")
	ErrCertificateNotFound = errors.New("TLS certificate not found")
	ErrInvalidPrivateKey   = errors.New("invalid private key")
	ErrNoCertificates      = errors.New("no certificates found")
	ErrKeyMismatch         = errors.New("private key does not match certificate")
)

// NotFoundError reports a missing credential and the role it was meant to fill.
type NotFoundError struct {
	Role Role
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("TLS %s not found: %s", e.Role, e.Path)
}

// Is matches the role-specific sentinel and fs.ErrNotExist.
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case ErrKeyNotFound:
		return e.Role == RoleKey
	case ErrCertificateNotFound:
		return e.Role == RoleCertificate
	case fs.ErrNotExist:
		return true
	}
	return false
}

// ParsePrivateKey returns the first PKCS#8 key in keyPEM, or the first PKCS#1
// RSA key if no valid PKCS#8 key is found.
func ParsePrivateKey(keyPEM []byte) (crypto.Signer, error) {
	pkcs8Key, pkcs8Err := firstBlock(keyPEM, "PRIVATE KEY", x509.ParsePKCS8PrivateKey)
	if pkcs8Err == nil {
		if signer, ok := pkcs8Key.(crypto.Signer); ok {
			return signer, nil
		}
		pkcs8Err = fmt.Errorf("unsupported PKCS#8 key type %T", pkcs8Key)
	}

	key, err := firstBlock(keyPEM, "RSA PRIVATE KEY", func(der []byte) (any, error) {
		return x509.ParsePKCS1PrivateKey(der)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrivateKey, errors.Join(pkcs8Err, err))
	}
	return key.(crypto.Signer), nil
}

// firstBlock parses the first PEM block of the given type.
func firstBlock(data []byte, blockType string, parse func([]byte) (any, error)) (any, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("no %q block", blockType)
		}
		if block.Type == blockType {
			return parse(block.Bytes)
		}
	}
}

// ParseCertificateChain returns every certificate in certPEM as DER, in file order.
func ParseCertificateChain(certPEM []byte) ([][]byte, error) {
	var chain [][]byte
	for {
		var block *pem.Block
		block, certPEM = pem.Decode(certPEM)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("failed to parse certificate %d: %w", len(chain), err)
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return nil, ErrNoCertificates
	}
	return chain, nil
}

// NewCertificate pairs a chain with its private key. It fails when the leaf's
// public key does not belong to key.
func NewCertificate(chain [][]byte, key crypto.Signer) (*tls.Certificate, error) {
	if len(chain) == 0 {
		return nil, ErrNoCertificates
	}
	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(key.Public()) {
		return nil, fmt.Errorf("%w (leaf %q, %s)", ErrKeyMismatch, leaf.Subject.CommonName, leaf.PublicKeyAlgorithm)
	}

	return &tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// Load parses a key and certificate chain held in memory.
func Load(keyPEM, certPEM []byte) (*tls.Certificate, error) {
	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, err
	}
	chain, err := ParseCertificateChain(certPEM)
	if err != nil {
		return nil, err
	}
	return NewCertificate(chain, key)
}
