package main

import (
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"

	"github.com/spf13/cobra"
)

var configPath string

var mainCommand = &cobra.Command{
	Use:           "quido-node",
	Short:         "TLS edge node dispatching tunnel and HTTP/1.1 streams",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	addRunFlags(mainCommand)
}

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML configuration file")
	flags.StringP("address", "a", "", "IPv4 or IPv6 address to listen on")
	flags.Uint16P("port", "p", 0, "port to listen on")
	flags.String("tls-key", "", "path to the TLS private key (PKCS#8 or PKCS#1 PEM)")
	flags.String("tls-cert", "", "path to the TLS certificate chain (PEM)")
	flags.BoolP("verbose", "v", false, "log informational messages")
	flags.BoolP("color", "c", false, "colourise log levels")
	flags.Bool("debug", false, "log debug messages")
	flags.String("tls-mode", "", "certificate source: file, kubernetes or memory")
	flags.String("tls-secret", "", "kubernetes TLS secret name")
	flags.String("namespace", "", "kubernetes namespace of the TLS secret")
	flags.String("kubeconfig", "", "path to kubeconfig")
	flags.String("kube-context", "", "kubeconfig context")
	flags.String("health-port", "", "plaintext health listener port, empty to disable")
	flags.Duration("sniff-timeout", 0, "maximum wait for the first byte after the handshake")
	flags.Duration("handshake-timeout", 0, "maximum TLS handshake duration, 0 for none")
	flags.String("accept-errors", "", "accept error policy: fatal or retry")
}

func main() {
	if err := mainCommand.Execute(); err != nil {
		logger.Fatal("Quido node failed", "error", err)
	}
}
