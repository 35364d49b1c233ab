// Package reporter renders matching and reconciliation results for the CLI,
// as a readable table or as JSON for scripting.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"bank-reconciliation-service/internal/models"
	"bank-reconciliation-service/internal/reconciler"
)

// Format selects the output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Reporter writes results to a single destination in a fixed format.
type Reporter struct {
	w      io.Writer
	format Format
}

// New creates a reporter writing to w.
func New(w io.Writer, format Format) *Reporter {
	if format == "" {
		format = FormatText
	}
	return &Reporter{w: w, format: format}
}

// Candidates renders a ranked candidate list.
func (r *Reporter) Candidates(transactionID string, candidates []*models.VoucherCandidate) error {
	if r.format == FormatJSON {
		return r.writeJSON(map[string]interface{}{
			"transaction": transactionID,
			"candidates":  candidates,
		})
	}

	if len(candidates) == 0 {
		fmt.Fprintf(r.w, "No matching vouchers found for %s\n", transactionID)
		return nil
	}

	fmt.Fprintf(r.w, "Matching vouchers for %s:\n\n", transactionID)
	tw := tabwriter.NewWriter(r.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tDOCTYPE\tNAME\tAMOUNT\tREFERENCE\tPARTY\tMATCHED ON")
	for _, c := range candidates {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Rank, c.DocType, c.Name, c.PaidAmount.StringFixed(2),
			c.ReferenceNo, c.Party, strings.Join(matchedOn(c), ","))
	}
	return tw.Flush()
}

func matchedOn(c *models.VoucherCandidate) []string {
	var parts []string
	if c.ReferenceNumberMatch {
		parts = append(parts, "reference")
	}
	if c.AmountMatch {
		parts = append(parts, "amount")
	}
	if c.PartyMatch {
		parts = append(parts, "party")
	}
	if c.UnallocatedAmountMatch {
		parts = append(parts, "unallocated")
	}
	if c.NameInDescMatch {
		parts = append(parts, "description")
	}
	if len(parts) == 0 {
		parts = append(parts, "-")
	}
	return parts
}

// Transaction renders the post-reconciliation state of a bank transaction.
func (r *Reporter) Transaction(tx *models.BankTransaction) error {
	if r.format == FormatJSON {
		return r.writeJSON(tx)
	}
	fmt.Fprintf(r.w, "%s: %s (unallocated %s)\n",
		tx.ID, tx.Status, tx.UnallocatedAmount.StringFixed(2))
	return nil
}

// AutoReconcileAlert renders the summary line of an unattended batch run.
func (r *Reporter) AutoReconcileAlert(result *reconciler.AutoReconcileResult) error {
	if r.format == FormatJSON {
		return r.writeJSON(result)
	}
	fmt.Fprintln(r.w, AlertMessage(result))
	return nil
}

// AlertMessage builds the human summary of an auto-reconcile run, e.g.
// "3 Transactions Reconciled and 1 Transaction Partially Reconciled".
func AlertMessage(result *reconciler.AutoReconcileResult) string {
	var parts []string
	if n := len(result.Reconciled); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s Reconciled", n, pluralize(n, "Transaction")))
	}
	if n := len(result.PartiallyReconciled); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s Partially Reconciled", n, pluralize(n, "Transaction")))
	}
	if len(parts) == 0 {
		return "No matches occurred via auto reconciliation"
	}
	return strings.Join(parts, " and ")
}

func pluralize(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// ImportSummary renders the outcome of a statement import.
func (r *Reporter) ImportSummary(imported, skipped int, rowErrors []error) error {
	if r.format == FormatJSON {
		msgs := make([]string, len(rowErrors))
		for i, err := range rowErrors {
			msgs[i] = err.Error()
		}
		return r.writeJSON(map[string]interface{}{
			"imported": imported,
			"skipped":  skipped,
			"errors":   msgs,
		})
	}

	fmt.Fprintf(r.w, "Imported %d %s", imported, pluralize(imported, "transaction"))
	if skipped > 0 {
		fmt.Fprintf(r.w, ", skipped %d", skipped)
	}
	fmt.Fprintln(r.w)
	for _, err := range rowErrors {
		fmt.Fprintf(r.w, "  %v\n", err)
	}
	return nil
}

func (r *Reporter) writeJSON(v interface{}) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
