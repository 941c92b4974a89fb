// Package cli provides the command-line interface for voxchat.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/voxchat/internal/client"
	"github.com/raphaelgruber/voxchat/internal/config"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string
	token     string

	// Global config, logger and API client
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func() error
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "voxchat",
	Short: "Talk to speech models and compare them",
	Long: `Voxchat records an utterance, sends it to one of several speech models
through the voxchat server, keeps the conversation and tracks per-model
latency and scores.

Start the server with voxchat-server, issue yourself a token with
'voxchat token <name>' and export it as VOXCHAT_TOKEN.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		// Log to the file only: stderr belongs to the terminal UI.
		logger, closeLog = config.SetupFileLogger(cfg.LogFile, level)

		if serverURL == "" {
			serverURL = cfg.ServerURL
		}
		if token == "" {
			token = cfg.ClientToken
		}
		apiClient = client.New(client.Options{
			BaseURL:       serverURL,
			Token:         token,
			SubmitTimeout: cfg.SubmitTimeout,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $VOXCHAT_SERVER_URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (default $VOXCHAT_TOKEN)")

	// Add subcommands
	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(tokenCmd)
}

// requireOwner fails when no token identifies the user.
func requireOwner() (string, error) {
	owner := apiClient.Owner()
	if owner == "" {
		return "", fmt.Errorf("no token: run 'voxchat token <name>' and set VOXCHAT_TOKEN or pass --token")
	}
	return owner, nil
}
