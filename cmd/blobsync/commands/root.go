// Package commands implements the blobsync CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/infra/config"
	"github.com/datallboy/blobsync/internal/infra/logger"
)

var (
	// Version information injected at build time.
	Version = "dev"

	// Global flags.
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "blobsync",
	Short: "Resumable block-based file sync against a blob store",
	Long: `blobsync moves a single file to or from a remote block blob store.

A path that exists locally is uploaded block by block and committed; a path
that does not exist is downloaded, resuming from the last run when one was
interrupted.

Use "blobsync [command] --help" for more information about a command.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "blobsync.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug|info|warn|error)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

// bootstrap loads the configuration and opens the logger shared by every
// command. The caller owns the returned context.
func bootstrap() (*app.Context, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return app.NewContext(cfg, log), nil
}
