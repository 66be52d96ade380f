package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/guided-traffic/hdi-sample-data/internal/datakey"
	"github.com/guided-traffic/hdi-sample-data/internal/dks"
	"github.com/guided-traffic/hdi-sample-data/internal/monitoring"
)

func newServeDataKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-datakeys",
		Short: "Run a local data key service issuing and decrypting data keys",
		Args:  cobra.NoArgs,
		RunE:  runServeDataKeys,
	}

	flags := cmd.Flags()
	flags.String("bind-address", "0.0.0.0:8090", "address of the data key service")
	flags.Bool("monitoring", false, "serve Prometheus metrics on the monitoring address")
	flags.String("monitoring-address", ":9090", "address of the monitoring server")

	mustBind("dks.bind_address", flags.Lookup("bind-address"))
	mustBind("monitoring.enabled", flags.Lookup("monitoring"))
	mustBind("monitoring.bind_address", flags.Lookup("monitoring-address"))

	return cmd
}

func runServeDataKeys(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, closeKeys, err := datakey.NewLocalProviderFromConfig(ctx, &cfg.DKS.Keys)
	if err != nil {
		return err
	}
	defer closeKeys()

	logrus.WithFields(logrus.Fields{
		"address": cfg.DKS.BindAddress,
		"keyId":   provider.KeyID(),
	}).Info("Data key service configured")

	shutdownTimeout := time.Duration(cfg.ShutdownTimeout) * time.Second

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return dks.NewServer(&dks.Config{
			BindAddress:       cfg.DKS.BindAddress,
			LogHealthRequests: cfg.DKS.LogHealthRequests,
			ShutdownTimeout:   shutdownTimeout,
		}, provider).Start(ctx)
	})
	if cfg.Monitoring.Enabled {
		group.Go(func() error {
			return monitoring.NewServer(&monitoring.Config{
				BindAddress:     cfg.Monitoring.BindAddress,
				MetricsPath:     cfg.Monitoring.MetricsPath,
				ShutdownTimeout: shutdownTimeout,
			}).Start(ctx)
		})
	}

	return group.Wait()
}
