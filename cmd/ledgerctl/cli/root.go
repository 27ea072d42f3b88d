package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
)

// NewRootCommand creates the ledgerctl command tree.
func NewRootCommand() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operator tooling for the voucher ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.LoadEnvFile(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading configuration")

	rootCmd.AddCommand(
		newRecurrenceCommand(),
		newAccountsCommand(),
		newJobsCommand(),
		newDBCommand(),
	)
	return rootCmd
}

// loadRuntime resolves configuration and a logger writing to the command's
// error stream.
func loadRuntime(cmd *cobra.Command) (*app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	if cfg.LogFormat == "json" {
		logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
	}
	return cfg, logger, nil
}
