package main

import (
	"fmt"
	"os"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/credentials"

	"github.com/spf13/cobra"
)

var (
	flagGenerateKeyOut  string
	flagGenerateCertOut string
	flagGeneratePKCS1   bool
)

var commandGenerateTLSKeyPair = &cobra.Command{
	Use:   "tls-keypair <host>...",
	Short: "Generate a self-signed TLS key pair for development",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateTLSKeyPair(args)
	},
}

var commandGenerate = &cobra.Command{
	Use:   "generate",
	Short: "Generate things",
}

func init() {
	commandGenerateTLSKeyPair.Flags().StringVar(&flagGenerateKeyOut, "key-out", "key.pem", "private key output path")
	commandGenerateTLSKeyPair.Flags().StringVar(&flagGenerateCertOut, "cert-out", "cert.pem", "certificate output path")
	commandGenerateTLSKeyPair.Flags().BoolVar(&flagGeneratePKCS1, "pkcs1", false, "write an RSA PKCS#1 key instead of ECDSA PKCS#8")
	commandGenerate.AddCommand(commandGenerateTLSKeyPair)
	mainCommand.AddCommand(commandGenerate)
}

func generateTLSKeyPair(hosts []string) error {
	format := credentials.KeyFormatPKCS8
	if flagGeneratePKCS1 {
		format = credentials.KeyFormatPKCS1
	}
	certPEM, keyPEM, err := credentials.GenerateSelfSigned(format, hosts...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(flagGenerateKeyOut, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if err := os.WriteFile(flagGenerateCertOut, certPEM, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	return nil
}
