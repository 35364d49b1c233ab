package cmd

import (
	"context"
	"os"

	"bank-reconciliation-service/internal/importer"

	"github.com/spf13/cobra"
)

var importBankAccount string

var importCmd = &cobra.Command{
	Use:   "import <statement.csv>",
	Short: "Import a bank statement CSV as bank transactions",
	Long: `Import reads a bank statement CSV and creates one unreconciled bank
transaction per row. Required columns: date, deposit, withdrawal. Optional:
currency, description, reference_number, party_type, party, bank_party_name,
bank_party_iban. Invalid rows are skipped and reported; the rest of the file
still imports.

Example:
  reconciler import statement.csv --bank-account "HDFC - Main"`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importBankAccount, "bank-account", "", "bank account to import into (required)")
	importCmd.MarkFlagRequired("bank-account")
}

func runImport(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	app, err := buildApp()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer app.Close()

	file, err := os.Open(args[0])
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer file.Close()

	imp := importer.New(app.Store, app.Logger)
	result, err := imp.Import(context.Background(), file, importBankAccount)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	rowErrors := make([]error, 0, len(result.Errors))
	for _, rowErr := range result.Errors {
		rowErrors = append(rowErrors, rowErr.Err)
	}
	return app.Reporter.ImportSummary(result.Imported, result.Skipped, rowErrors)
}
