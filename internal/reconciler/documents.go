package reconciler

import (
	"context"
	"time"

	"bank-reconciliation-service/internal/ledger"
	"bank-reconciliation-service/internal/models"
	apperrors "bank-reconciliation-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEntryRequest describes a payment entry to create against a bank
// transaction. The direction, bank-side account and amount come from the
// transaction itself; the caller supplies the counter side.
type PaymentEntryRequest struct {
	TransactionID string
	PartyType     string
	Party         string
	// PartyAccount is the receivable or payable account of the counter leg.
	PartyAccount string
	PostingDate  time.Time
	ReferenceNo  string
	// Allocate reconciles the new entry against the transaction immediately.
	Allocate bool
}

// CreatePaymentEntry creates and submits a payment entry for a bank
// transaction, optionally reconciling it against the transaction in the same
// call. The entry amount is the transaction's unallocated remainder.
func (o *Orchestrator) CreatePaymentEntry(ctx context.Context, req PaymentEntryRequest) (*ledger.PaymentEntry, error) {
	tx, err := o.store.GetBankTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if !tx.UnallocatedAmount.IsPositive() {
		return nil, apperrors.ConflictError(apperrors.CodeAlreadyConsumed, tx.ID, nil)
	}
	ba, err := o.store.BankAccount(ctx, tx.BankAccount)
	if err != nil {
		return nil, err
	}
	acc, err := o.store.Account(ctx, ba.GLAccount)
	if err != nil {
		return nil, err
	}

	partyAcc, err := o.store.Account(ctx, req.PartyAccount)
	if err != nil {
		return nil, err
	}
	if partyAcc.IsReceivableOrPayable() && (req.PartyType == "" || req.Party == "") {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "party", nil).
			WithContext("account", req.PartyAccount)
	}

	postingDate := req.PostingDate
	if postingDate.IsZero() {
		postingDate = tx.Date
	}

	entry := &ledger.PaymentEntry{
		Name:          "PAY-" + uuid.NewString(),
		PostingDate:   postingDate,
		ReferenceNo:   req.ReferenceNo,
		ReferenceDate: tx.Date,
		PartyType:     req.PartyType,
		Party:         req.Party,
		PaidAmount:    tx.UnallocatedAmount,
		DocStatus:     models.DocStatusSubmitted,
	}
	if entry.ReferenceNo == "" {
		entry.ReferenceNo = tx.ReferenceNumber
	}
	if tx.IsDeposit() {
		entry.PaymentType = models.PaymentTypeReceive
		entry.PaidFrom = req.PartyAccount
		entry.PaidTo = ba.GLAccount
		entry.PaidFromCurrency = partyAcc.Currency
		entry.PaidToCurrency = acc.Currency
	} else {
		entry.PaymentType = models.PaymentTypePay
		entry.PaidFrom = ba.GLAccount
		entry.PaidTo = req.PartyAccount
		entry.PaidFromCurrency = acc.Currency
		entry.PaidToCurrency = partyAcc.Currency
	}

	if err := o.store.CreatePaymentEntry(ctx, entry); err != nil {
		return nil, err
	}

	if req.Allocate {
		if _, err := o.ReconcileVouchers(ctx, tx.ID, []models.Allocation{{
			DocType: models.KindPaymentEntry,
			Name:    entry.Name,
			Amount:  entry.PaidAmount,
		}}); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// JournalEntryRequest describes a journal entry to create against a bank
// transaction.
type JournalEntryRequest struct {
	TransactionID string
	// CounterAccount is the second leg; the bank-side leg is derived from
	// the transaction's bank account.
	CounterAccount string
	PartyType      string
	Party          string
	VoucherType    string
	PostingDate    time.Time
	ChequeNo       string
	Allocate       bool
}

// CreateJournalEntry creates and submits a balanced two-line journal entry
// for a bank transaction, optionally reconciling it immediately. Deposits
// debit the bank-facing account; withdrawals credit it.
func (o *Orchestrator) CreateJournalEntry(ctx context.Context, req JournalEntryRequest) (*ledger.JournalEntry, error) {
	tx, err := o.store.GetBankTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if !tx.UnallocatedAmount.IsPositive() {
		return nil, apperrors.ConflictError(apperrors.CodeAlreadyConsumed, tx.ID, nil)
	}
	ba, err := o.store.BankAccount(ctx, tx.BankAccount)
	if err != nil {
		return nil, err
	}
	acc, err := o.store.Account(ctx, ba.GLAccount)
	if err != nil {
		return nil, err
	}

	counter, err := o.store.Account(ctx, req.CounterAccount)
	if err != nil {
		return nil, err
	}
	if counter.IsReceivableOrPayable() && (req.PartyType == "" || req.Party == "") {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "party", nil).
			WithContext("account", req.CounterAccount)
	}

	postingDate := req.PostingDate
	if postingDate.IsZero() {
		postingDate = tx.Date
	}
	voucherType := req.VoucherType
	if voucherType == "" {
		voucherType = "Bank Entry"
	}
	chequeNo := req.ChequeNo
	if chequeNo == "" {
		chequeNo = tx.ReferenceNumber
	}

	amount := tx.UnallocatedAmount
	bankLine := ledger.JournalEntryLine{Account: ba.GLAccount, AccountCurrency: acc.Currency}
	counterLine := ledger.JournalEntryLine{
		Account:         req.CounterAccount,
		PartyType:       req.PartyType,
		Party:           req.Party,
		AccountCurrency: counter.Currency,
	}
	if tx.IsDeposit() {
		bankLine.Debit = amount
		counterLine.Credit = amount
	} else {
		bankLine.Credit = amount
		counterLine.Debit = amount
	}

	entry := &ledger.JournalEntry{
		Name:          "JRN-" + uuid.NewString(),
		VoucherType:   voucherType,
		PostingDate:   postingDate,
		ChequeNo:      chequeNo,
		ChequeDate:    tx.Date,
		PayToRecdFrom: req.Party,
		DocStatus:     models.DocStatusSubmitted,
		Lines:         []ledger.JournalEntryLine{bankLine, counterLine},
	}

	if err := o.store.CreateJournalEntry(ctx, entry); err != nil {
		return nil, err
	}

	if req.Allocate {
		if _, err := o.ReconcileVouchers(ctx, tx.ID, []models.Allocation{{
			DocType: models.KindJournalEntry,
			Name:    entry.Name,
			Amount:  amount,
		}}); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// SplitTransaction validates a proposed partial allocation amount against a
// transaction's remainder without applying it.
func (o *Orchestrator) SplitTransaction(ctx context.Context, transactionID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ValidationError(apperrors.CodeInvalidAmount, "amount", amount.String())
	}
	tx, err := o.store.GetBankTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if amount.GreaterThan(tx.UnallocatedAmount) {
		return apperrors.ConflictError(apperrors.CodeOverAllocated, transactionID, nil)
	}
	return nil
}
