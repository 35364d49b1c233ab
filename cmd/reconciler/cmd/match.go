package cmd

import (
	"context"
	"os"
	"strings"
	"time"

	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"

	"github.com/spf13/cobra"
)

var (
	matchDocumentTypes    []string
	matchFromDate         string
	matchToDate           string
	matchUseReferenceDate bool
)

var matchCmd = &cobra.Command{
	Use:   "match <transaction-id>",
	Short: "List matching voucher candidates for a bank transaction",
	Long: `Match discovers accounting vouchers that could explain a bank
transaction and prints them ranked best-first.

Document types select which voucher kinds to search; modifier tokens tighten
the search:
  exact_match        only vouchers whose amount equals the transaction amount
  exact_party_match  only vouchers naming the transaction's counterparty
  unpaid_invoices    additionally offer outstanding invoices

Examples:
  reconciler match BTX-0001
  reconciler match BTX-0001 --document-types payment_entry,exact_match
  reconciler match BTX-0001 --from 2024-01-01 --to 2024-03-31`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringSliceVar(&matchDocumentTypes, "document-types", nil,
		"voucher kinds and modifiers to search (default: all kinds, loose)")
	matchCmd.Flags().StringVar(&matchFromDate, "from", "", "start of the date window (YYYY-MM-DD)")
	matchCmd.Flags().StringVar(&matchToDate, "to", "", "end of the date window (YYYY-MM-DD)")
	matchCmd.Flags().BoolVar(&matchUseReferenceDate, "by-reference-date", false,
		"apply the date window to voucher reference dates instead of posting dates")
}

func runMatch(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	app, err := buildApp()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer app.Close()

	window, err := parseDateWindow(matchFromDate, matchToDate, matchUseReferenceDate)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	ctx := context.Background()
	candidates, err := app.Orchestrator.GetLinkedPayments(ctx, args[0], matchDocumentTypes, window)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return app.Reporter.Candidates(args[0], candidates)
}

const flagDateLayout = "2006-01-02"

func parseDateWindow(from, to string, byReferenceDate bool) (models.DateWindow, error) {
	window := models.DateWindow{UseReferenceDate: byReferenceDate}

	parse := func(value, flag string) (time.Time, error) {
		if value == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(flagDateLayout, strings.TrimSpace(value))
		if err != nil {
			return time.Time{}, apperrors.ValidationError(apperrors.CodeInvalidData, flag, value)
		}
		return t, nil
	}

	fromDate, err := parse(from, "from")
	if err != nil {
		return window, err
	}
	toDate, err := parse(to, "to")
	if err != nil {
		return window, err
	}

	if byReferenceDate {
		window.FromReference = fromDate
		window.ToReference = toDate
	} else {
		window.From = fromDate
		window.To = toDate
	}
	return window, nil
}
