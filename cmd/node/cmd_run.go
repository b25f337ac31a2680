package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hasirciogluhq/quido-node/cmd/node/internal/api"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/config"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/core"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/factory"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/logger"
	"github.com/hasirciogluhq/quido-node/cmd/node/internal/proxy/tunnel"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
)

// loadConfig layers flags explicitly set on cmd over the file and
// environment configuration.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	flags := cmd.Flags()
	var errs []error
	set := func(name string, apply func() error) {
		if flags.Changed(name) {
			if err := apply(); err != nil {
				errs = append(errs, fmt.Errorf("--%s: %w", name, err))
			}
		}
	}
	set("address", func() (err error) { cfg.Address, err = flags.GetString("address"); return })
	set("port", func() (err error) { cfg.Port, err = flags.GetUint16("port"); return })
	set("tls-key", func() (err error) { cfg.TLSKeyFile, err = flags.GetString("tls-key"); return })
	set("tls-cert", func() (err error) { cfg.TLSCertFile, err = flags.GetString("tls-cert"); return })
	set("verbose", func() (err error) { cfg.Verbose, err = flags.GetBool("verbose"); return })
	set("color", func() (err error) { cfg.Color, err = flags.GetBool("color"); return })
	set("debug", func() (err error) { cfg.Debug, err = flags.GetBool("debug"); return })
	set("tls-mode", func() error {
		mode, err := flags.GetString("tls-mode")
		cfg.TLSMode = config.ParseTLSMode(mode)
		return err
	})
	set("tls-secret", func() (err error) { cfg.TLSSecretName, err = flags.GetString("tls-secret"); return })
	set("namespace", func() (err error) { cfg.Namespace, err = flags.GetString("namespace"); return })
	set("kubeconfig", func() (err error) { cfg.KubeConfigPath, err = flags.GetString("kubeconfig"); return })
	set("kube-context", func() (err error) { cfg.KubeContext, err = flags.GetString("kube-context"); return })
	set("health-port", func() (err error) { cfg.HealthServerPort, err = flags.GetString("health-port"); return })
	set("sniff-timeout", func() (err error) { cfg.SniffTimeout, err = flags.GetDuration("sniff-timeout"); return })
	set("handshake-timeout", func() (err error) { cfg.HandshakeTimeout, err = flags.GetDuration("handshake-timeout"); return })
	set("accept-errors", func() error {
		policy, err := flags.GetString("accept-errors")
		cfg.AcceptErrorPolicy = config.AcceptErrorPolicy(policy)
		return err
	})
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Init(logger.Options{Verbose: cfg.Verbose, Debug: cfg.Debug, Color: cfg.Color})
	log.Info("Starting quido-node...",
		"address", cfg.ListenAddress(),
		"tls_mode", cfg.TLSMode,
		"accept_errors", cfg.AcceptErrorPolicy)

	var clientset kubernetes.Interface
	if cfg.TLSMode == config.TLSModeKubernetes {
		var err error
		clientset, err = factory.NewKubernetesClient(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to create kubernetes client: %w", err)
		}
	}

	tlsFactory := factory.NewTLSFactory(cfg, log)
	provider, err := tlsFactory.Create(ctx, clientset)
	if err != nil {
		return fmt.Errorf("failed to create TLS provider: %w", err)
	}
	identity, err := tlsFactory.Load(ctx, provider)
	if err != nil {
		return fmt.Errorf("failed to load TLS identity: %w", err)
	}

	var healthAddr string
	if cfg.HealthServerPort != "" {
		healthAddr = ":" + cfg.HealthServerPort
	}
	healthServer := api.NewHealthServer(healthAddr, log)

	server, err := core.New(ctx, core.Options{
		Address:           cfg.Address,
		Port:              cfg.Port,
		Identity:          identity,
		HTTP:              healthServer,
		Tunnel:            tunnel.Handler{},
		SniffTimeout:      cfg.SniffTimeout,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		RetryAcceptErrors: cfg.AcceptErrorPolicy == config.AcceptErrorsRetry,
		Logger:            log,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthServer.Run(gctx)
	})
	g.Go(func() error {
		return server.Serve(gctx)
	})

	healthServer.SetReady(true)
	log.Info("Quido node is ready to accept connections")

	err = g.Wait()
	log.Info("Quido node stopped")
	return err
}
