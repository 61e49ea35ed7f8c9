package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wikidump/internal/config"
	"wikidump/internal/logging"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "wikidump",
		Short: "Download and unpack wiki dump archives",
		Long: `wikidump locates the latest complete dump for a wiki site,
downloads it with resume and checksum verification, and streams the
records out of the compressed archive one page at a time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")

	rootCmd.AddCommand(languagesCommand())
	rootCmd.AddCommand(downloadCommand())
	rootCmd.AddCommand(parseCommand())
	rootCmd.AddCommand(runCommand())
}

// setup loads configuration and builds the logger shared by all
// subcommands.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	// Cancelled when the user hits Ctrl+C, so every stage unwinds and
	// releases its connections and file handles.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
