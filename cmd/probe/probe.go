package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rpcgate/internal/pkg/config"
	"rpcgate/internal/pkg/log"
	"rpcgate/internal/probe"
)

var errAllFailed = errors.New("no endpoint answered")

func rootCmd() *cobra.Command {
	var (
		logLevel string
		envFile  string
		method   string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Call one JSON-RPC method on every configured endpoint",
		Long: `Loads the gateway endpoint list and calls a method on every endpoint
concurrently, bypassing failover and cache.

Examples:
  probe --envFile .env
  probe --method eth_chainId --timeout 3s`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := log.Setup(logLevel); err != nil {
				return err
			}

			cfg, err := config.LoadFile[probe.Config](envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("method") {
				cfg.Probe.Method = method
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Probe.Timeout = timeout
			}
			if err = cfg.Probe.Validate(); err != nil {
				return err
			}
			targets, err := cfg.Gateway.Targets()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			results := probe.New(cfg.Probe.Method, cfg.Probe.Timeout).Run(ctx, targets)
			probe.Render(cmd.OutOrStdout(), cfg.Probe.Method, results)
			if probe.AllFailed(results) {
				return errAllFailed
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log", "warn", "log level [debug|info|warn|error]")
	cmd.Flags().StringVar(&envFile, "envFile", "", "path to .env file")
	cmd.Flags().StringVar(&method, "method", "eth_blockNumber", "JSON-RPC method to call")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "per endpoint timeout")

	return cmd
}

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		log.Logger.Probe.Error(err)
		os.Exit(1)
	}
}
