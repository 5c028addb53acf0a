package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datallboy/optolib/internal/app"
	"github.com/datallboy/optolib/internal/infra/config"
	"github.com/datallboy/optolib/internal/infra/logger"
)

var configPath string

func main() {
	// Cancelled on Ctrl+C so long-running commands can shut down cleanly
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "optolib",
		Short:        "Offline optometry e-book library",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(),
		newCatalogCmd(),
		newSearchCmd(),
		newDownloadCmd(),
		newLibraryCmd(),
		newRemoveCmd(),
		newClearCmd(),
		newVerifyCmd(),
	)
	return root
}

// bootstrap loads the config and wires the application. The caller owns the
// returned context and must Close it.
func bootstrap(ctx context.Context, quiet bool) (*app.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	// Interactive commands keep stdout for their own output
	stdout := cfg.Log.IncludeStdout && !quiet
	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}
	return a, nil
}

// withApp runs fn against a freshly wired application and tears it down afterwards.
func withApp(cmd *cobra.Command, quiet bool, fn func(ctx context.Context, a *app.Context) error) error {
	a, err := bootstrap(cmd.Context(), quiet)
	if err != nil {
		return err
	}
	defer func() {
		a.Close()
		a.Logger.Close()
	}()
	return fn(cmd.Context(), a)
}
