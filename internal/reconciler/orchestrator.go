// Package reconciler coordinates the matching engine and the ledger store:
// candidate discovery for a transaction, applying allocations, unattended
// batch reconciliation, and creating new vouchers against transactions.
package reconciler

import (
	"context"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/matcher"
	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Orchestrator ties the matching engine to the ledger store.
type Orchestrator struct {
	store  ledger.Store
	engine *matcher.Engine
	log    logger.Logger
}

// New creates an orchestrator over the given store and engine.
func New(store ledger.Store, engine *matcher.Engine, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Orchestrator{
		store:  store,
		engine: engine,
		log:    log.WithComponent("reconciler"),
	}
}

// GetLinkedPayments returns the ranked voucher candidates for a bank
// transaction, with paid amounts reduced by allocations already recorded at
// the transaction's general-ledger account.
func (o *Orchestrator) GetLinkedPayments(ctx context.Context, transactionID string, tokens []string, window models.DateWindow) ([]*models.VoucherCandidate, error) {
	candidates, err := o.engine.FindCandidates(ctx, matcher.MatchRequest{
		TransactionID: transactionID,
		Tokens:        tokens,
		Window:        window,
	})
	if err != nil {
		return nil, err
	}

	glAccount, err := o.glAccountFor(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := matcher.SubtractAllocations(ctx, o.store, glAccount, candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

// ReconcileVouchers applies the given allocations to a bank transaction and
// returns its updated state.
func (o *Orchestrator) ReconcileVouchers(ctx context.Context, transactionID string, allocations []models.Allocation) (*models.BankTransaction, error) {
	if len(allocations) == 0 {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "allocations", nil)
	}

	tx, err := o.store.Reconcile(ctx, transactionID, allocations)
	if err != nil {
		return nil, err
	}

	o.log.WithFields(logger.Fields{
		"transaction": tx.ID,
		"status":      tx.Status.String(),
		"unallocated": tx.UnallocatedAmount.String(),
	}).Info("vouchers reconciled")
	return tx, nil
}

// AutoReconcileResult summarizes one unattended batch run.
type AutoReconcileResult struct {
	Reconciled          []string
	PartiallyReconciled []string
	Skipped             int
}

// AutoReconcile walks the unreconciled transactions of a bank account and
// reconciles each against its exact-reference payment and journal entry
// matches, best first. Transactions without a reference number, or without
// any match, are skipped silently. A hard reconcile failure stops the batch;
// transactions reconciled before the failure are not rolled back.
func (o *Orchestrator) AutoReconcile(ctx context.Context, bankAccount string, dates ledger.DateFilter) (*AutoReconcileResult, error) {
	transactions, err := o.store.BankTransactions(ctx, bankAccount, dates)
	if err != nil {
		return nil, err
	}

	ba, err := o.store.BankAccount(ctx, bankAccount)
	if err != nil {
		return nil, err
	}
	glAccount := ba.GLAccount

	result := &AutoReconcileResult{}
	for _, tx := range transactions {
		if tx.ReferenceNumber == "" {
			result.Skipped++
			continue
		}

		candidates, err := o.engine.FindCandidates(ctx, matcher.MatchRequest{
			TransactionID: tx.ID,
			Tokens:        []string{matcher.TokenPaymentEntry, matcher.TokenJournalEntry},
			AutoReconcile: true,
		})
		if err != nil {
			return nil, err
		}
		if err := matcher.SubtractAllocations(ctx, o.store, glAccount, candidates); err != nil {
			return nil, err
		}

		allocations := capAllocations(candidates, tx.UnallocatedAmount)
		if len(allocations) == 0 {
			result.Skipped++
			continue
		}

		before := tx.UnallocatedAmount
		updated, err := o.ReconcileVouchers(ctx, tx.ID, allocations)
		if err != nil {
			// A hard reconcile failure stops the batch; earlier
			// transactions stay reconciled.
			return nil, err
		}

		switch {
		case updated.Status == models.StatusReconciled:
			result.Reconciled = append(result.Reconciled, tx.ID)
		case !updated.UnallocatedAmount.Equal(before):
			result.PartiallyReconciled = append(result.PartiallyReconciled, tx.ID)
		default:
			result.Skipped++
		}
	}
	return result, nil
}

// capAllocations turns ranked candidates into allocations, best first, each
// taking its full remaining amount capped at what is left of the
// transaction. Candidates already fully consumed elsewhere are skipped.
func capAllocations(candidates []*models.VoucherCandidate, unallocated decimal.Decimal) []models.Allocation {
	var allocations []models.Allocation
	remaining := unallocated
	for _, c := range candidates {
		if !remaining.IsPositive() {
			break
		}
		if !c.PaidAmount.IsPositive() {
			continue
		}
		amount := decimal.Min(remaining, c.PaidAmount)
		allocations = append(allocations, models.Allocation{
			DocType: c.DocType,
			Name:    c.Name,
			Amount:  amount,
		})
		remaining = remaining.Sub(amount)
	}
	return allocations
}

func (o *Orchestrator) glAccountFor(ctx context.Context, transactionID string) (string, error) {
	tx, err := o.store.GetBankTransaction(ctx, transactionID)
	if err != nil {
		return "", err
	}
	ba, err := o.store.BankAccount(ctx, tx.BankAccount)
	if err != nil {
		return "", err
	}
	return ba.GLAccount, nil
}
