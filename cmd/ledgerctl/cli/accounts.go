package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/internal/ledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

func newAccountsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage the chart of accounts",
	}
	cmd.AddCommand(newAccountsImportCommand())
	return cmd
}

func newAccountsImportCommand() *cobra.Command {
	var (
		companyID int64
		file      string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upsert accounts from a chart-of-accounts YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening chart: %w", err)
			}
			defer f.Close()

			accounts, err := ledger.ReadChart(f)
			if err != nil {
				return err
			}
			if dryRun {
				return printChart(cmd, accounts)
			}

			cfg, logger, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.New(ctx, cfg.PGDSN)
			if err != nil {
				return err
			}
			defer pool.Close()

			service := ledger.NewService(ledger.NewRepository(pool), ledger.Options{Logger: logger})
			n, err := service.ImportAccounts(ctx, companyID, accounts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d account(s) for company %d\n", n, companyID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&companyID, "company", 0, "company id (required)")
	cmd.Flags().StringVar(&file, "file", "", "path to the chart YAML (required)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and print the chart without writing")
	_ = cmd.MarkFlagRequired("company")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func printChart(cmd *cobra.Command, accounts []ledger.Account) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tSIDE\tPARENT\tROOT")
	for _, a := range accounts {
		side := "credit"
		if a.DebitNormal {
			side = "debit"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.Code, a.Name, side, dash(a.ParentCode), dash(a.RootCode))
	}
	fmt.Fprintf(tw, "%d account(s)\n", len(accounts))
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
