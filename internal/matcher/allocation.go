package matcher

import (
	"context"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/models"
)

// SubtractAllocations reduces each candidate's paid amount by the
// allocations already recorded against it at the given general-ledger
// account, so the amount offered reflects what is still available. A voucher
// partially consumed by another bank line is re-offered at its remainder.
//
// Amounts are not clamped at zero; a negative remainder signals an
// over-allocated voucher and is surfaced as-is.
func SubtractAllocations(ctx context.Context, store ledger.Store, glAccount string, candidates []*models.VoucherCandidate) error {
	for _, c := range candidates {
		totals, err := store.TotalAllocated(ctx, c.DocType, c.Name)
		if err != nil {
			return err
		}
		allocated, ok := totals[glAccount]
		if !ok || !allocated.IsPositive() {
			continue
		}
		c.PaidAmount = c.PaidAmount.Sub(allocated)
	}
	return nil
}
