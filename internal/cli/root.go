// Package cli implements the imgctl command line tool.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/anime-shed/image-editor-go/internal/config"
	"github.com/anime-shed/image-editor-go/internal/logger"
)

func NewRootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "imgctl",
		Short: "Chat-driven image editing from the command line",
		Long: `imgctl interprets free-text edit commands and runs batch edits
against the image-processing backend.

Configuration is read from the environment and from a .env file when present.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			config.LoadDotEnv()

			// Keep stdout for command output
			logger.SetOutput(cmd.ErrOrStderr())
			if logLevel != "" {
				logger.SetLevel(logLevel)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); defaults to LOG_LEVEL")

	// Add subcommands
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newBatchCmd(&logLevel))
	cmd.AddCommand(newHistoryCmd())

	return cmd
}
