package cmd

import (
	"context"
	"os"
	"time"

	"bank-reconciliation-service/internal/ledger"
	apperrors "bank-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	autoBankAccount string
	autoFromDate    string
	autoToDate      string
)

var autoReconcileCmd = &cobra.Command{
	Use:   "auto-reconcile",
	Short: "Reconcile transactions with exact reference-number matches",
	Long: `Auto-reconcile walks the unreconciled transactions of a bank account
and reconciles each one whose reference number exactly matches a payment
entry or journal entry. Transactions without a reference number, or without
an exact match, are left untouched.

Examples:
  reconciler auto-reconcile --bank-account "HDFC - Main"
  reconciler auto-reconcile --bank-account "HDFC - Main" --from 2024-01-01 --to 2024-01-31`,
	RunE: runAutoReconcile,
}

func init() {
	rootCmd.AddCommand(autoReconcileCmd)

	autoReconcileCmd.Flags().StringVar(&autoBankAccount, "bank-account", "", "bank account to reconcile (required)")
	autoReconcileCmd.Flags().StringVar(&autoFromDate, "from", "", "start of the transaction date window (YYYY-MM-DD)")
	autoReconcileCmd.Flags().StringVar(&autoToDate, "to", "", "end of the transaction date window (YYYY-MM-DD)")
	autoReconcileCmd.MarkFlagRequired("bank-account")
}

func runAutoReconcile(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	dates, err := parseDateFilter(autoFromDate, autoToDate)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	app, err := buildApp()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer app.Close()

	result, err := app.Orchestrator.AutoReconcile(context.Background(), autoBankAccount, dates)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return app.Reporter.AutoReconcileAlert(result)
}

func parseDateFilter(from, to string) (ledger.DateFilter, error) {
	var filter ledger.DateFilter
	if from != "" {
		t, err := time.Parse(flagDateLayout, from)
		if err != nil {
			return filter, apperrors.ValidationError(apperrors.CodeInvalidData, "from", from)
		}
		filter.From = t
	}
	if to != "" {
		t, err := time.Parse(flagDateLayout, to)
		if err != nil {
			return filter, apperrors.ValidationError(apperrors.CodeInvalidData, "to", to)
		}
		filter.To = t
	}
	return filter, nil
}
