package credentials

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

// KeyFormat selects how a generated private key is encoded.
type KeyFormat int

const (
	// KeyFormatPKCS8 encodes an ECDSA P-256 key as "PRIVATE KEY".
	KeyFormatPKCS8 KeyFormat = iota
	// KeyFormatPKCS1 encodes a 2048-bit RSA key as "RSA PRIVATE KEY".
	KeyFormatPKCS1
)

// GenerateSelfSigned creates a self-signed server certificate for hosts, valid
// for one year. Hosts that parse as IP addresses become IP SANs.
func GenerateSelfSigned(format KeyFormat, hosts ...string) (certPEM, keyPEM []byte, err error) {
	var (
		signer  crypto.Signer
		keyDER  []byte
		pemType string
	)
	switch format {
	case KeyFormatPKCS1:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
		}
		signer, keyDER, pemType = priv, x509.MarshalPKCS1PrivateKey(priv), "RSA PRIVATE KEY"
	case KeyFormatPKCS8:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
		}
		keyDER, err = x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to encode private key: %w", err)
		}
		signer, pemType = priv, "PRIVATE KEY"
	default:
		return nil, nil, fmt.Errorf("unknown key format: %d", format)
	}

	serialNumber, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	tmpl := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"quido-node"}},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	if len(hosts) > 0 {
		tmpl.Subject.CommonName = hosts[0]
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, signer.Public(), signer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: keyDER})
	return certPEM, keyPEM, nil
}
