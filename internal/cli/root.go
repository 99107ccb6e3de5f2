// Package cli provides the command-line interface for lumapix-cli.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lumapix/lumapix-cli/internal/logging"
	"github.com/lumapix/lumapix-cli/internal/version"
)

var (
	// Global flags
	cfgFile    string
	apiKey     string
	apiBaseURL string
	verbose    bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lumapix",
		Short: "Lumapix CLI - browse your photo library and run AI analysis",
		Long: `Lumapix CLI ` + version.Version + `
Companion client for the Lumapix photo library.

Browse folders and photos, submit photos for AI analysis, and track
analysis batches to completion. An interrupted session picks up an
in-flight batch automatically on the next run.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(-1) // zerolog.DebugLevel
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Lumapix API key (overrides config and env)")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "Lumapix API base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	// Create a context that can be cancelled by signals
	rootContext, cancelFunc = context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		for sig := range sigChan {
			// When the channel is closed sig is nil and the loop exits.
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\nReceived signal %v, cancelling...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newFoldersCmd())
	rootCmd.AddCommand(newPhotosCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return logger
}

// GetContext returns the signal-aware root context.
func GetContext() context.Context {
	if rootContext == nil {
		rootContext = context.Background()
	}
	return rootContext
}
