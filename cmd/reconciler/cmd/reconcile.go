package cmd

import (
	"context"
	"os"
	"strings"

	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var reconcileVouchers []string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <transaction-id>",
	Short: "Apply voucher allocations to a bank transaction",
	Long: `Reconcile records one or more voucher allocations against a bank
transaction, reducing its unallocated amount and updating its status.

Each --voucher takes the form "Doctype:Name:Amount", for example:
  reconciler reconcile BTX-0001 --voucher "Payment Entry:PAY-0001:150.00"
  reconciler reconcile BTX-0001 \
    --voucher "Sales Invoice:SINV-0042:90.00" \
    --voucher "Journal Entry:JRN-0007:60.00"`,
	Args: cobra.ExactArgs(1),
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringArrayVar(&reconcileVouchers, "voucher", nil,
		`voucher allocation as "Doctype:Name:Amount" (repeatable)`)
	reconcileCmd.MarkFlagRequired("voucher")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	handler := NewCLIErrorHandler()

	allocations, err := parseAllocations(reconcileVouchers)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	app, err := buildApp()
	if err != nil {
		os.Exit(handler.HandleError(err))
	}
	defer app.Close()

	tx, err := app.Orchestrator.ReconcileVouchers(context.Background(), args[0], allocations)
	if err != nil {
		os.Exit(handler.HandleError(err))
	}

	return app.Reporter.Transaction(tx)
}

func parseAllocations(specs []string) ([]models.Allocation, error) {
	allocations := make([]models.Allocation, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "voucher", spec).
				WithSuggestion(`use the form "Doctype:Name:Amount"`)
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, apperrors.ValidationError(apperrors.CodeInvalidAmount, "voucher", parts[2])
		}

		allocation := models.Allocation{
			DocType: models.VoucherKind(strings.TrimSpace(parts[0])),
			Name:    strings.TrimSpace(parts[1]),
			Amount:  amount,
		}
		if err := allocation.Validate(); err != nil {
			return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "voucher", err.Error())
		}
		allocations = append(allocations, allocation)
	}
	return allocations, nil
}
